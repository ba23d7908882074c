package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for the name detection worker
 *
 * Only ErrorInputUnreadable is fatal to a detection request. Extractor,
 * token, and store errors are absorbed at their boundary and surface only
 * through reduced confidence or a failed learn result.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Detection errors
	ErrorInputUnreadable  ErrorCode = "INPUT_UNREADABLE"
	ErrorMalformedToken   ErrorCode = "MALFORMED_TOKEN"
	ErrorExtractorFailed  ErrorCode = "EXTRACTOR_FAILED"
	ErrorExtractorTimeout ErrorCode = "EXTRACTOR_TIMEOUT"

	// Persistence errors
	ErrorStoreIO        ErrorCode = "STORE_IO_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"

	// Network errors
	ErrorAPICallFailed ErrorCode = "API_CALL_FAILED"
)

// DetectionError represents a structured worker error
type DetectionError struct {
	Code      ErrorCode
	Message   string
	ImageRef  string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *DetectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DetectionError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error aborts the whole detection request
func (e *DetectionError) Fatal() bool {
	return e.Code == ErrorInputUnreadable
}

// Factory functions for common errors

func NewInputUnreadableError(imageRef string, cause error) *DetectionError {
	return &DetectionError{
		Code:      ErrorInputUnreadable,
		Message:   fmt.Sprintf("Image reference missing or unreadable: %s", imageRef),
		ImageRef:  imageRef,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewExtractorFailedError(source string, cause error) *DetectionError {
	return &DetectionError{
		Code:      ErrorExtractorFailed,
		Message:   fmt.Sprintf("Extractor failed: %s", source),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": source,
		},
		Cause: cause,
	}
}

func NewExtractorTimeoutError(source string, timeout time.Duration) *DetectionError {
	return &DetectionError{
		Code:      ErrorExtractorTimeout,
		Message:   fmt.Sprintf("Extractor %s timed out after %v", source, timeout),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source":  source,
			"timeout": timeout.String(),
		},
	}
}

func NewStoreIOError(op, path string, cause error) *DetectionError {
	return &DetectionError{
		Code:      ErrorStoreIO,
		Message:   fmt.Sprintf("Prior store operation failed: %s", op),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
			"path":      path,
		},
		Cause: cause,
	}
}

func NewDatabaseFailedError(op string, cause error) *DetectionError {
	return &DetectionError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("Database operation failed: %s", op),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *DetectionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
