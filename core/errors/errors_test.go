package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("underlying socket error")
	err := NewConnectionFailed("tcp://127.0.0.1:50505", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.Is(err, cause))

	var other *Error
	assert.True(t, errors.As(err, &other))
	assert.Equal(t, CodeConnectionFailed, other.Code)
}

func TestWithContextChains(t *testing.T) {
	err := New(CodeJobNotFound, "job missing", nil).WithContext("job_id", "abc")
	assert.Equal(t, "abc", err.Context["job_id"])
}

func TestIsRetryableAndIsPermanent(t *testing.T) {
	retryable := NewConnectionFailed("tcp://host:1", nil)
	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsPermanent(retryable))

	permanent := NewProtocolViolation("result for unassigned job", nil)
	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsRetryable(permanent))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsPermanent(nil))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(CodeTimeout, "request timed out", cause)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "TIMEOUT")
}
