package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New(ErrorTypeTransientUI, "element %q not visible", "Filename")
	assert.Equal(t, `transient_ui error: element "Filename" not visible`, err.Error())

	withCode := NewWithCode(ErrorTypeServerError, 503, "upstream unavailable")
	assert.Equal(t, "server_error error (code 503): upstream unavailable", withCode.Error())
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{
		ErrorTypeTransientUI,
		ErrorTypeNetwork,
		ErrorTypeRateLimit,
		ErrorTypeServerError,
	}
	for _, et := range retryable {
		assert.True(t, IsRetryable(et), "expected %s to be retryable", et)
	}

	terminal := []ErrorType{
		ErrorTypeExtractionFatal,
		ErrorTypeDuplicateLoop,
		ErrorTypeStoreConflict,
		ErrorTypeSession,
		ErrorTypeAuth,
		ErrorTypeNotFound,
		ErrorTypeParsing,
		ErrorTypeUnknown,
	}
	for _, et := range terminal {
		assert.False(t, IsRetryable(et), "expected %s not to be retryable", et)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(500))
	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(200))
}
