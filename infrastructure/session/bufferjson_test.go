package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_MarshalsAsTaggedObject(t *testing.T) {
	raw, err := json.Marshal(Buffer{1, 2, 255})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Buffer","data":[1,2,255]}`, string(raw))

	var back Buffer
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, Buffer{1, 2, 255}, back)
}

func TestBuffer_AcceptsBase64(t *testing.T) {
	var b Buffer
	require.NoError(t, json.Unmarshal([]byte(`"AQL/"`), &b))
	assert.Equal(t, Buffer{1, 2, 255}, b)
}

func TestBuffer_RejectsWrongTag(t *testing.T) {
	var b Buffer
	assert.Error(t, json.Unmarshal([]byte(`{"type":"Uint8Array","data":[1]}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"Buffer","data":[256]}`), &b))
}

func TestMarshalValue_RoundTripsNestedBuffers(t *testing.T) {
	in := map[string]any{
		"keyPair": map[string]any{
			"public":  []byte{9, 8, 7},
			"private": []byte{1},
		},
		"keyId":  float64(42),
		"chains": []any{[]byte{5}, "x"},
	}

	raw, err := MarshalValue(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `{"data":[9,8,7],"type":"Buffer"}`)

	out, err := UnmarshalValue(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
