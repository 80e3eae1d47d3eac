package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	plain := New(CodeNotReady, "connection not yet open")
	assert.Equal(t, "NOT_READY: connection not yet open", plain.Error())

	wrapped := Wrap(errors.New("dial tcp: refused"), CodeConnection, "dial failed")
	assert.Equal(t, "CONNECTION: dial failed: dial tcp: refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(cause, CodeStorageQuery, "insert failed")

	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, errors.Unwrap(New(CodeInternal, "no cause")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(errors.New("locked"), CodeStorageQuery, "write failed")))
	assert.False(t, IsRetryable(Wrap(errors.New("bad cursor"), CodeInvalidCursor, "parse failed")))
	assert.False(t, IsRetryable(errors.New("foreign error")))
	assert.False(t, IsRetryable(nil))

	// The hint survives further wrapping.
	outer := fmt.Errorf("operation failed: %w", WrapRetryable(errors.New("locked"), CodeStorageQuery, "write failed"))
	assert.True(t, IsRetryable(outer))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeInvalidCursor, GetCode(New(CodeInvalidCursor, "bad token")))
	assert.Equal(t, CodeInternal, GetCode(errors.New("foreign error")))

	outer := fmt.Errorf("wrapped: %w", New(CodeRateLimit, "too many requests"))
	assert.Equal(t, CodeRateLimit, GetCode(outer))
}
