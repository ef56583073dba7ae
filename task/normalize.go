package task

import (
	"fmt"

	"github.com/meikuraledutech/flow/internal/xjson"
)

// urlKeys are checked in order when a completed job returns an object
// without a text field.
var urlKeys = []string{"imageUrl", "url", "secure_url", "image"}

// Normalize turns a job's output into the canonical node output: the text
// of an LLM result, else the first URL-like field, else a bare string, else
// the decoded payload unchanged. Empty output normalizes to nil.
func Normalize(raw xjson.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := xjson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("task: decode output: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	if s, ok := obj["text"].(string); ok {
		return s, nil
	}
	for _, k := range urlKeys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s, nil
		}
	}
	return obj, nil
}
