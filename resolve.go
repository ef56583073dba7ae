package flow

import (
	"strings"

	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/spf13/cast"
)

// Inputs is the value bundle resolved for one node. A nil field means no
// edge supplied it; the node applies its own default.
type Inputs struct {
	UserMessage  *string  `json:"userMessage,omitempty"`
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
	VideoURL     *string  `json:"videoUrl,omitempty"`
	ImageURL     *string  `json:"imageUrl,omitempty"`
	ImageURLs    []string `json:"imageUrls,omitempty"`
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Width        *float64 `json:"width,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Timestamp    *string  `json:"timestamp,omitempty"`
	ConfigText   *string  `json:"configText,omitempty"`
}

// imagesHandlePrefix marks the numbered image sockets of an LLM node.
const imagesHandlePrefix = "images-"

type binder func(in *Inputs, v any)

var handleBindings = map[string]binder{
	"user":            func(in *Inputs, v any) { in.UserMessage = textPtr(v) },
	"system":          func(in *Inputs, v any) { in.SystemPrompt = textPtr(v) },
	"video-input":     func(in *Inputs, v any) { in.VideoURL = textPtr(v) },
	"input":           func(in *Inputs, v any) { in.ImageURL = textPtr(v) },
	"timestamp-input": func(in *Inputs, v any) { in.Timestamp = textPtr(v) },
	"config-input":    func(in *Inputs, v any) { in.ConfigText = textPtr(v) },
	"x":               func(in *Inputs, v any) { setNumber(&in.X, v) },
	"y":               func(in *Inputs, v any) { setNumber(&in.Y, v) },
	"width":           func(in *Inputs, v any) { setNumber(&in.Width, v) },
	"height":          func(in *Inputs, v any) { setNumber(&in.Height, v) },
}

// Resolve collects the inputs of nodeID from its incoming edges. outputs holds
// an entry for every node that ran in this run, nil when it produced nothing.
// A source that ran contributes its entry; any other source contributes its
// static output. Sources with no value are skipped. Resolve never fails.
func Resolve(g *Graph, nodeID string, outputs map[string]any) Inputs {
	var in Inputs
	for _, e := range g.Incoming(nodeID) {
		v, ok := sourceValue(g, e.Source, outputs)
		if !ok {
			continue
		}
		if strings.HasPrefix(e.TargetHandle, imagesHandlePrefix) {
			if s := textPtr(v); s != nil {
				in.ImageURLs = append(in.ImageURLs, *s)
			}
			continue
		}
		if bind, ok := handleBindings[e.TargetHandle]; ok {
			bind(&in, v)
		}
	}
	return in
}

func sourceValue(g *Graph, id string, outputs map[string]any) (any, bool) {
	if v, ok := outputs[id]; ok {
		return v, v != nil
	}
	src, ok := g.Node(id)
	if !ok || src.Data == nil {
		return nil, false
	}
	return src.Data.StaticOutput()
}

// Text renders a resolved value as text: strings as is, scalars in their
// canonical form, anything else as JSON.
func Text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	b, err := xjson.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func textPtr(v any) *string {
	s := Text(v)
	return &s
}

func setNumber(dst **float64, v any) {
	if f, ok := Number(v); ok {
		*dst = &f
	}
}

// Number coerces a resolved value to a float. Text is trimmed and may carry a
// trailing percent sign.
func Number(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" {
			return 0, false
		}
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
