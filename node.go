package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meikuraledutech/flow/internal/xjson"
)

// NodeType is the editor's type string for a node.
type NodeType string

const (
	TypeText         NodeType = "textNode"
	TypeImage        NodeType = "imageNode"
	TypeVideo        NodeType = "videoNode"
	TypeLLM          NodeType = "llmNode"
	TypeCropImage    NodeType = "cropImageNode"
	TypeExtractFrame NodeType = "extractFrameNode"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeLLM, TypeCropImage, TypeExtractFrame:
		return true
	}
	return false
}

// Node is a typed vertex of a workflow graph. Data always matches Type.
type Node struct {
	ID   string
	Type NodeType
	Data NodeData
}

// NodeData is the typed payload of a node. The set of implementations is closed.
type NodeData interface {
	nodeType() NodeType
	// StaticOutput is the value the node offers downstream when it has not
	// run in the current run: an uploaded URL, literal text or a prior output.
	StaticOutput() (any, bool)
	label() string
}

// TextData holds a literal text box.
type TextData struct {
	Label string `json:"label,omitempty"`
}

// ImageData holds an uploaded image.
type ImageData struct {
	Label    string `json:"label,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// VideoData holds an uploaded video.
type VideoData struct {
	Label    string `json:"label,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// LLMData configures a language model call.
type LLMData struct {
	Label        string `json:"label,omitempty"`
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	Output       string `json:"output,omitempty"`
}

// CropImageData configures a crop. Rectangle fields are percentages of the
// source image; nil means "use the default".
type CropImageData struct {
	Label       string   `json:"label,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	OutputImage string   `json:"outputImage,omitempty"`
}

// ExtractFrameData configures a frame grab from a video.
type ExtractFrameData struct {
	Label       string       `json:"label,omitempty"`
	VideoURL    string       `json:"videoUrl,omitempty"`
	Timestamp   NumberString `json:"timestamp,omitempty"`
	OutputImage string       `json:"outputImage,omitempty"`
}

func (TextData) nodeType() NodeType         { return TypeText }
func (ImageData) nodeType() NodeType        { return TypeImage }
func (VideoData) nodeType() NodeType        { return TypeVideo }
func (LLMData) nodeType() NodeType          { return TypeLLM }
func (CropImageData) nodeType() NodeType    { return TypeCropImage }
func (ExtractFrameData) nodeType() NodeType { return TypeExtractFrame }

func (d TextData) label() string         { return d.Label }
func (d ImageData) label() string        { return d.Label }
func (d VideoData) label() string        { return d.Label }
func (d LLMData) label() string          { return d.Label }
func (d CropImageData) label() string    { return d.Label }
func (d ExtractFrameData) label() string { return d.Label }

func (d TextData) StaticOutput() (any, bool)         { return nonEmpty(d.Label) }
func (d ImageData) StaticOutput() (any, bool)        { return nonEmpty(d.ImageURL) }
func (d VideoData) StaticOutput() (any, bool)        { return nonEmpty(d.VideoURL) }
func (d LLMData) StaticOutput() (any, bool)          { return nonEmpty(d.Output) }
func (d CropImageData) StaticOutput() (any, bool)    { return nonEmpty(d.OutputImage) }
func (d ExtractFrameData) StaticOutput() (any, bool) { return nonEmpty(d.OutputImage) }

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

// Label returns the display label, falling back to the node type.
func (n Node) Label() string {
	if n.Data != nil {
		if l := n.Data.label(); l != "" {
			return l
		}
	}
	return string(n.Type)
}

// Remote reports whether executing the node dispatches work to the task backend.
func (n Node) Remote() bool {
	switch n.Type {
	case TypeLLM, TypeCropImage, TypeExtractFrame:
		return true
	}
	return false
}

// NewNode builds a node whose type is taken from data.
func NewNode(id string, data NodeData) Node {
	return Node{ID: id, Type: data.nodeType(), Data: data}
}

type nodeWire struct {
	ID   string           `json:"id"`
	Type NodeType         `json:"type"`
	Data xjson.RawMessage `json:"data,omitempty"`
}

// MarshalJSON writes the editor shape {id, type, data}.
func (n Node) MarshalJSON() ([]byte, error) {
	var data xjson.RawMessage
	if n.Data != nil {
		b, err := xjson.Marshal(n.Data)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return xjson.Marshal(nodeWire{ID: n.ID, Type: n.Type, Data: data})
}

// UnmarshalJSON decodes data into the payload type selected by "type".
// Unknown editor fields are ignored; unknown types are rejected.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeWire
	if err := xjson.Unmarshal(b, &w); err != nil {
		return err
	}
	data, err := decodeData(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("flow: node %q: %w", w.ID, err)
	}
	n.ID, n.Type, n.Data = w.ID, w.Type, data
	return nil
}

// DecodeNode rebuilds a node from its stored type and data columns.
func DecodeNode(id string, t NodeType, data []byte) (Node, error) {
	d, err := decodeData(t, data)
	if err != nil {
		return Node{}, fmt.Errorf("flow: node %q: %w", id, err)
	}
	return Node{ID: id, Type: t, Data: d}, nil
}

func decodeData(t NodeType, raw xjson.RawMessage) (NodeData, error) {
	var d NodeData
	switch t {
	case TypeText:
		d = &TextData{}
	case TypeImage:
		d = &ImageData{}
	case TypeVideo:
		d = &VideoData{}
	case TypeLLM:
		d = &LLMData{}
	case TypeCropImage:
		d = &CropImageData{}
	case TypeExtractFrame:
		d = &ExtractFrameData{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := xjson.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", t, err)
		}
	}
	// Store values, not pointers, so the snapshot cannot be mutated through Data.
	switch v := d.(type) {
	case *TextData:
		return *v, nil
	case *ImageData:
		return *v, nil
	case *VideoData:
		return *v, nil
	case *LLMData:
		return *v, nil
	case *CropImageData:
		return *v, nil
	case *ExtractFrameData:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
}

// NumberString is a numeric value the editor may send either as a JSON
// string or as a JSON number. It keeps the textual form.
type NumberString string

func (s *NumberString) UnmarshalJSON(b []byte) error {
	str := strings.TrimSpace(string(b))
	if str == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(str, `"`) {
		var v string
		if err := xjson.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = NumberString(strings.TrimSpace(v))
		return nil
	}
	if _, err := strconv.ParseFloat(str, 64); err != nil {
		return fmt.Errorf("flow: invalid number %s", str)
	}
	*s = NumberString(str)
	return nil
}
