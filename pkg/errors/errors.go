package errors

import "fmt"

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// ErrorTypeTransientUI means an element was not rendered yet; retry within bounds.
	ErrorTypeTransientUI ErrorType = "transient_ui"
	// ErrorTypeExtractionFatal means a required field was unobtainable after retries;
	// the current item/album is aborted, not the process.
	ErrorTypeExtractionFatal ErrorType = "extraction_fatal"
	// ErrorTypeDuplicateLoop is the heuristic end-of-album signal; it ends the walk
	// normally and is not a true failure.
	ErrorTypeDuplicateLoop ErrorType = "duplicate_loop"
	// ErrorTypeStoreConflict is a duplicate key on insert, absorbed as a skip.
	ErrorTypeStoreConflict ErrorType = "store_conflict"
	// ErrorTypeSession is a browser navigation/connection failure, propagated so
	// the caller can move on to the next album.
	ErrorTypeSession ErrorType = "session"

	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a typed error with optional code information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error
func New(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewWithCode creates a typed error carrying an HTTP status code
func NewWithCode(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransientUI, ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeExtractionFatal, ErrorTypeDuplicateLoop, ErrorTypeStoreConflict,
		ErrorTypeSession, ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
