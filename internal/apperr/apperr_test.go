package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	base := New(NotFound, "trade not found")
	wrapped := fmt.Errorf("loading trade: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, Forbidden))
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	err := errors.New("disk on fire")

	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "An internal error occurred", Message(err))
	assert.False(t, Is(nil, Internal))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("signature is invalid")
	err := Wrap(InvalidToken, "invalid token", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid token", Message(err))
	assert.Equal(t, "invalid token: signature is invalid", err.Error())
}
