package task

import (
	"strconv"
	"strings"

	"github.com/meikuraledutech/flow"
)

// DefaultLLMModel is used when an LLM node names no model.
const DefaultLLMModel = "gemini-2.5-flash"

// LLMPayload is the wire body of LLMTaskID.
type LLMPayload struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	UserMessage  string   `json:"userMessage"`
	ImageURLs    []string `json:"imageUrls,omitempty"`
}

// ExtractFramePayload is the wire body of ExtractFrameTaskID. Timestamp is
// seconds as a numeric string.
type ExtractFramePayload struct {
	VideoURL  string `json:"videoUrl"`
	Timestamp string `json:"timestamp"`
}

// Crop is a rectangle in percentages of the source dimensions.
type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CropImagePayload is the wire body of CropImageTaskID.
type CropImagePayload struct {
	ImageURL string `json:"imageUrl"`
	Crop     Crop   `json:"crop"`
}

// UploadPayload is the wire body of UploadTaskID. FileData is a data URL or
// a fetchable URL.
type UploadPayload struct {
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
}

// BuildPayload maps a node and its resolved inputs to a task. ok is false for
// node types that run without the backend.
func BuildPayload(n flow.Node, in flow.Inputs) (taskID string, payload any, ok bool, err error) {
	switch d := n.Data.(type) {
	case flow.LLMData:
		p, err := llmPayload(d, in)
		return LLMTaskID, p, true, err
	case flow.ExtractFrameData:
		p, err := extractFramePayload(d, in)
		return ExtractFrameTaskID, p, true, err
	case flow.CropImageData:
		p, err := cropImagePayload(d, in)
		return CropImageTaskID, p, true, err
	}
	return "", nil, false, nil
}

func llmPayload(d flow.LLMData, in flow.Inputs) (LLMPayload, error) {
	p := LLMPayload{
		Model:        firstNonEmpty(d.Model, DefaultLLMModel),
		SystemPrompt: firstNonEmpty(deref(in.SystemPrompt), d.SystemPrompt),
		UserMessage:  firstNonEmpty(deref(in.UserMessage), d.Prompt),
	}
	for _, u := range in.ImageURLs {
		if strings.TrimSpace(u) != "" {
			p.ImageURLs = append(p.ImageURLs, u)
		}
	}
	if strings.TrimSpace(p.UserMessage) == "" {
		return p, &InputError{Handle: "user", Reason: "no user message connected or set on the node"}
	}
	return p, nil
}

func extractFramePayload(d flow.ExtractFrameData, in flow.Inputs) (ExtractFramePayload, error) {
	p := ExtractFramePayload{
		VideoURL:  firstNonEmpty(deref(in.VideoURL), d.VideoURL),
		Timestamp: strings.TrimSpace(firstNonEmpty(deref(in.Timestamp), string(d.Timestamp), "0")),
	}
	return p, p.Validate()
}

// Validate reports a missing video or a timestamp that is not a
// non-negative number of seconds.
func (p ExtractFramePayload) Validate() error {
	if p.VideoURL == "" {
		return &InputError{Handle: "video-input", Reason: "no video connected or set on the node"}
	}
	ts, err := strconv.ParseFloat(p.Timestamp, 64)
	if err != nil || ts < 0 {
		return &InputError{Handle: "timestamp-input", Reason: "timestamp must be a non-negative number of seconds, got " + strconv.Quote(p.Timestamp)}
	}
	return nil
}

// cropImagePayload layers the rectangle: defaults, node data, config text,
// then the individual x/y/width/height handles.
func cropImagePayload(d flow.CropImageData, in flow.Inputs) (CropImagePayload, error) {
	p := CropImagePayload{
		ImageURL: firstNonEmpty(deref(in.ImageURL), d.ImageURL),
		Crop:     Crop{X: 0, Y: 0, Width: 100, Height: 100},
	}
	p.Crop.apply(d.X, d.Y, d.Width, d.Height)
	if in.ConfigText != nil {
		cfg := flow.ParseCropConfig(*in.ConfigText)
		p.Crop.apply(cfg.X, cfg.Y, cfg.Width, cfg.Height)
	}
	p.Crop.apply(in.X, in.Y, in.Width, in.Height)
	return p, p.Validate()
}

// Validate reports a missing image or a rectangle outside 0..100.
func (p CropImagePayload) Validate() error {
	if p.ImageURL == "" {
		return &InputError{Handle: "input", Reason: "no image connected or set on the node"}
	}
	return p.Crop.validate()
}

// Validate requires both fields.
func (p UploadPayload) Validate() error {
	if strings.TrimSpace(p.FileData) == "" {
		return &InputError{Handle: "fileData", Reason: "is required"}
	}
	if strings.TrimSpace(p.FileName) == "" {
		return &InputError{Handle: "fileName", Reason: "is required"}
	}
	return nil
}

func (c *Crop) apply(x, y, w, h *float64) {
	if x != nil {
		c.X = *x
	}
	if y != nil {
		c.Y = *y
	}
	if w != nil {
		c.Width = *w
	}
	if h != nil {
		c.Height = *h
	}
}

func (c Crop) validate() error {
	check := func(handle string, v float64, ok bool) error {
		if ok {
			return nil
		}
		return &InputError{Handle: handle, Reason: "out of range: " + strconv.FormatFloat(v, 'f', -1, 64)}
	}
	if err := check("x", c.X, c.X >= 0 && c.X < 100); err != nil {
		return err
	}
	if err := check("y", c.Y, c.Y >= 0 && c.Y < 100); err != nil {
		return err
	}
	if err := check("width", c.Width, c.Width > 0 && c.Width <= 100); err != nil {
		return err
	}
	return check("height", c.Height, c.Height > 0 && c.Height <= 100)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
