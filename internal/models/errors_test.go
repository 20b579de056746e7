package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "StreamOpenFailure", ErrorKindStreamOpen.String())
	assert.Equal(t, "StreamReadFailure", ErrorKindStreamRead.String())
	assert.Equal(t, "RenderFailure", ErrorKindRender.String())
	assert.Equal(t, "StoreUnavailable", ErrorKindStoreUnavailable.String())
	assert.Equal(t, "Canceled", ErrorKindCanceled.String())
	assert.Equal(t, "Unknown", ErrorKind(42).String())
}

func TestTurnError_WrapsCause(t *testing.T) {
	err := NewCanceledError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "[Canceled] turn canceled: context canceled", err.Error())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	inner := NewStreamReadError("connection reset", errors.New("EOF"))
	wrapped := fmt.Errorf("turn abc: %w", inner)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrorKindStreamRead, kind)
	assert.True(t, IsKind(wrapped, ErrorKindStreamRead))
	assert.False(t, IsKind(wrapped, ErrorKindRender))
}

func TestKindOf_PlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	assert.False(t, ok)
	assert.False(t, IsKind(nil, ErrorKindRender))
}

func TestTurnError_NoCause(t *testing.T) {
	err := NewTurnError(ErrorKindStoreUnavailable, "no history store configured", nil)
	assert.Equal(t, "[StoreUnavailable] no history store configured", err.Error())
	assert.Nil(t, err.Unwrap())
}
