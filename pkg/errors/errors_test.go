package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeUpstream, "boom")
	outer := Wrap(inner, ErrorTypeConfig, "outer")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.Equal(t, "configuration: outer: upstream_operation: boom", outer.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConfig, "nothing"))
}

func TestIsTypeWalksChain(t *testing.T) {
	base := New(ErrorTypeCredentialsNotFound, "no such credential")
	wrapped := Wrap(base, ErrorTypeUpstream, "extract failed")

	assert.True(t, IsType(wrapped, ErrorTypeUpstream))
	assert.True(t, IsType(wrapped, ErrorTypeCredentialsNotFound))
	assert.False(t, IsType(wrapped, ErrorTypeTimeout))
	assert.True(t, IsFatal(wrapped))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorTypeHalted, TypeOf(New(ErrorTypeHalted, "stop")))
}

func TestWithDetail(t *testing.T) {
	err := Newf(ErrorTypeValidation, "bad value %d", 3).WithDetail("field", "limit")
	assert.Equal(t, "bad value 3", err.Message)
	assert.Equal(t, "limit", err.Details["field"])
}
