package domainerrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("finds nested code through wraps", func(t *testing.T) {
		inner := New(CodeConflict, "duplicate vote")
		outer := Wrap(inner, CodeInternal, "cast failed")
		assert.True(t, HasCode(outer, CodeConflict))
		assert.True(t, HasCode(outer, CodeInternal))
		assert.False(t, HasCode(outer, CodeNotFound))
	})

	t.Run("finds code behind fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeForbidden, "membership not approved"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestRateLimited(t *testing.T) {
	err := fmt.Errorf("vote: %w", RateLimited("vote quota exceeded", 42*time.Second))

	retry, ok := RetryAfterOf(err)
	assert.True(t, ok)
	assert.Equal(t, 42*time.Second, retry)
	assert.True(t, Is(err, CodeRateLimited))

	_, ok = RetryAfterOf(New(CodeValidation, "bad"))
	assert.False(t, ok)
}
