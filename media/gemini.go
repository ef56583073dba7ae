package media

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini implements TextGenerator on the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini API client for apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("media: gemini api key is missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("media: create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) GenerateText(ctx context.Context, model string, p Prompt) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(p.UserMessage)}
	for _, img := range p.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var cfg *genai.GenerateContentConfig
	if p.SystemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{genai.NewPartFromText(p.SystemPrompt)},
			},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned no text", model)
	}
	return text, nil
}
