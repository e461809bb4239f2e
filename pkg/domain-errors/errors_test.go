package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("wrap preserves cause for errors.Is", func(t *testing.T) {
		cause := errors.New("db down")
		err := Wrap(cause, CodeInternal, "failed to load application")

		assert.True(t, HasCode(err, CodeInternal))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load application", MessageOf(err))
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("outermost code wins through fmt wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "document not found")
		err := fmt.Errorf("reupload: %w", inner)

		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.Equal(t, "internal error", MessageOf(errors.New("boom")))
	})

	t.Run("retryable codes", func(t *testing.T) {
		assert.True(t, IsRetryable(New(CodeStaleVersion, "stale")))
		assert.False(t, IsRetryable(New(CodeConflict, "duplicate")))
	})
}
