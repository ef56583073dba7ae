package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
	"google.golang.org/genai"
)

// DefaultFallbackModels are tried, in order, after the requested model.
var DefaultFallbackModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash-lite",
	"gemini-flash-latest",
	"gemini-2.0-flash",
}

// DefaultRateLimitWait is the pause after a rate-limited attempt.
const DefaultRateLimitWait = 5 * time.Second

// Image is an inline image part of a prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Prompt is one LLM request.
type Prompt struct {
	SystemPrompt string
	UserMessage  string
	Images       []Image
}

// TextGenerator produces text for a prompt with a named model.
type TextGenerator interface {
	GenerateText(ctx context.Context, model string, p Prompt) (string, error)
}

// TextOutput is the output of the LLM task.
type TextOutput struct {
	Text string `json:"text"`
}

// LLM runs the llm-run-gemini task.
type LLM struct {
	gen           TextGenerator
	fetcher       *Fetcher
	fallbacks     []string
	rateLimitWait time.Duration
	logger        *slog.Logger
}

// LLMOption configures an LLM.
type LLMOption func(*LLM)

func WithFallbackModels(models ...string) LLMOption {
	return func(l *LLM) { l.fallbacks = models }
}

func WithRateLimitWait(d time.Duration) LLMOption {
	return func(l *LLM) { l.rateLimitWait = d }
}

func WithLLMLogger(logger *slog.Logger) LLMOption {
	return func(l *LLM) { l.logger = logger }
}

func NewLLM(gen TextGenerator, fetcher *Fetcher, opts ...LLMOption) *LLM {
	l := &LLM{
		gen:           gen,
		fetcher:       fetcher,
		fallbacks:     DefaultFallbackModels,
		rateLimitWait: DefaultRateLimitWait,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fetcher == nil {
		l.fetcher = NewFetcher(nil)
	}
	return l
}

// Run decodes a task.LLMPayload, embeds its images and asks each candidate
// model in turn until one answers.
func (l *LLM) Run(ctx context.Context, payload []byte) (any, error) {
	var in task.LLMPayload
	if err := xjson.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(in.UserMessage) == "" {
		return nil, errors.New("userMessage is required")
	}

	p := Prompt{SystemPrompt: in.SystemPrompt, UserMessage: in.UserMessage}
	for _, u := range in.ImageURLs {
		if strings.TrimSpace(u) == "" {
			continue
		}
		data, mimeType, err := l.fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		p.Images = append(p.Images, Image{Data: data, MIMEType: mimeType})
	}

	var lastErr error
	for _, model := range l.candidates(in.Model) {
		text, err := l.gen.GenerateText(ctx, model, p)
		if err == nil {
			return TextOutput{Text: text}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		l.logger.Warn("model failed", "model", model, "error", err)

		if rateLimited(err) && l.rateLimitWait > 0 {
			t := time.NewTimer(l.rateLimitWait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, fmt.Errorf("all models failed. Last error: %w", lastErr)
}

// candidates lists the requested model first, then the fallbacks, without
// repeats.
func (l *LLM) candidates(requested string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append([]string{requested}, l.fallbacks...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func rateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	return strings.Contains(err.Error(), "429")
}
