package session

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const bufferTag = "Buffer"

// Buffer is binary key material. It marshals to {"type":"Buffer","data":[..]}
// so credentials written by other session libraries stay readable, and it
// also accepts a plain base64 string when reading.
type Buffer []byte

type bufferJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func (b Buffer) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(bufferJSON{Type: bufferTag, Data: data})
}

func (b *Buffer) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*b = nil
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("buffer: invalid base64: %w", err)
		}
		*b = decoded
		return nil
	}

	var wrapped bufferJSON
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	if wrapped.Type != bufferTag {
		return fmt.Errorf("buffer: unexpected type %q", wrapped.Type)
	}
	out, err := bytesFromInts(wrapped.Data)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

func bytesFromInts(data []int) ([]byte, error) {
	out := make([]byte, len(data))
	for i, v := range data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("buffer: byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// EncodeBuffers returns a copy of v where every []byte / Buffer inside maps
// and slices is replaced by its tagged form, ready for json.Marshal.
func EncodeBuffers(v any) any {
	switch t := v.(type) {
	case []byte:
		return tagged(t)
	case Buffer:
		return tagged(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = EncodeBuffers(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = EncodeBuffers(inner)
		}
		return out
	}
	return v
}

func tagged(b []byte) map[string]any {
	data := make([]any, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return map[string]any{"type": bufferTag, "data": data}
}

// ReviveBuffers is the inverse of EncodeBuffers for trees decoded into
// map[string]any: every {"type":"Buffer","data":[...]} becomes a []byte.
func ReviveBuffers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if b, ok := asBuffer(t); ok {
			return b
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = ReviveBuffers(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = ReviveBuffers(inner)
		}
		return out
	}
	return v
}

func asBuffer(m map[string]any) ([]byte, bool) {
	if len(m) != 2 || m["type"] != bufferTag {
		return nil, false
	}
	list, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(list))
	for i, item := range list {
		n, ok := item.(float64)
		if !ok || n < 0 || n > 255 {
			return nil, false
		}
		out[i] = byte(n)
	}
	return out, true
}

// MarshalValue and UnmarshalValue are the serialize/deserialize pair used for
// opaque key material.
func MarshalValue(v any) ([]byte, error) {
	return json.Marshal(EncodeBuffers(v))
}

func UnmarshalValue(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return ReviveBuffers(v), nil
}
