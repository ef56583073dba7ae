// Package xjson is the single JSON import site of the module.
package xjson

import (
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// RawMessage stays compatible with encoding/json so pgx and fiber accept it as is.
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// MarshalRaw encodes v, returning nil for a nil value so callers can store SQL NULL.
func MarshalRaw(v any) (RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := gjson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawMessage(b), nil
}
