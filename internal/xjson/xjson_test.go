package xjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIndent(t *testing.T) {
	out, err := MarshalIndent(map[string]any{"runId": "r1", "outputs": map[string]any{"llm": "hi"}}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"outputs\": {\n    \"llm\": \"hi\"\n  },\n  \"runId\": \"r1\"\n}", string(out))
}

func TestMarshalRawNil(t *testing.T) {
	raw, err := MarshalRaw(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}
