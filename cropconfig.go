package flow

import (
	"strings"

	"github.com/meikuraledutech/flow/internal/xjson"
)

// CropConfig holds the crop rectangle fields found in a config text. Fields
// absent from the text stay nil.
type CropConfig struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

func (c *CropConfig) field(key string) **float64 {
	switch key {
	case "x":
		return &c.X
	case "y":
		return &c.Y
	case "width":
		return &c.Width
	case "height":
		return &c.Height
	}
	return nil
}

// ParseCropConfig reads a crop rectangle from text. A JSON object is tried
// first; otherwise the text is read as "key: value" lines, skipping any line
// that does not parse.
func ParseCropConfig(text string) CropConfig {
	if c, ok := parseCropJSON(text); ok {
		return c
	}
	var c CropConfig
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			continue
		}
		dst := c.field(strings.ToLower(strings.TrimSpace(parts[0])))
		if dst == nil {
			continue
		}
		if f, ok := Number(parts[1]); ok {
			*dst = &f
		}
	}
	return c
}

func parseCropJSON(text string) (CropConfig, bool) {
	var obj map[string]any
	if err := xjson.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil || obj == nil {
		return CropConfig{}, false
	}
	var c CropConfig
	for k, v := range obj {
		dst := c.field(strings.ToLower(k))
		if dst == nil {
			continue
		}
		if f, ok := Number(v); ok {
			*dst = &f
		}
	}
	return c, true
}
