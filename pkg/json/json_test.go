package json

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalArray(t *testing.T) {
	out, err := MarshalArray([]map[string]interface{}{{"a": 1}, {"b": "<x>"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1},{"b":"<x>"}]`, string(out))
	assert.Contains(t, string(out), "<x>")

	out, err = MarshalArray(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestMarshalLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarshalLines(&buf, []map[string]interface{}{{"a": 1}, {"a": 2}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"a":2}`, lines[1])
}

func TestDecoderUseNumber(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, NewDecoder(strings.NewReader(`{"n":12345678901234567}`), true).Decode(&v))
	assert.Equal(t, "12345678901234567", v["n"].(interface{ String() string }).String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}
