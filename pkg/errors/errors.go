// Package errors provides the structured error taxonomy shared by the query
// engine, its collaborators and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Missing or invalid backend credentials or endpoint.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// Backend rejected the credentials.
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	// Timeout or connection failure. Retryable by the caller.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// Malformed or non-numeric stored attribute.
	ErrCodeData ErrorCode = "DATA_ERROR"
	// Handler-level failure while executing a query plan.
	ErrCodeQueryExecution ErrorCode = "QUERY_EXECUTION_FAILED"
	// Request rejected before reaching the engine.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	// Anything the classifiers above could not place.
	ErrCodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so sentinel values
// such as ErrBackendUnavailable work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after attaching a metadata key.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrConfiguration      = &StandardError{Code: ErrCodeConfiguration}
	ErrAuthentication     = &StandardError{Code: ErrCodeAuthentication}
	ErrBackendUnavailable = &StandardError{Code: ErrCodeBackendUnavailable}
	ErrData               = &StandardError{Code: ErrCodeData}
	ErrQueryExecution     = &StandardError{Code: ErrCodeQueryExecution}
	ErrValidation         = &StandardError{Code: ErrCodeValidation}
)

func newError(code ErrorCode, message string, retryable bool, cause error) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

func NewConfigurationError(message string, cause error) *StandardError {
	return newError(ErrCodeConfiguration, message, false, cause)
}

func NewAuthenticationError(message string, cause error) *StandardError {
	return newError(ErrCodeAuthentication, message, false, cause)
}

func NewBackendUnavailableError(message string, cause error) *StandardError {
	return newError(ErrCodeBackendUnavailable, message, true, cause)
}

func NewDataError(message string, cause error) *StandardError {
	return newError(ErrCodeData, message, false, cause)
}

func NewQueryExecutionError(message string, cause error) *StandardError {
	return newError(ErrCodeQueryExecution, message, false, cause)
}

func NewValidationError(message string) *StandardError {
	return newError(ErrCodeValidation, message, false, nil)
}

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeUnknown
}

// IsRetryable reports whether err is marked retryable anywhere in its chain.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

func IsConfiguration(err error) bool      { return stderrors.Is(err, ErrConfiguration) }
func IsAuthentication(err error) bool     { return stderrors.Is(err, ErrAuthentication) }
func IsBackendUnavailable(err error) bool { return stderrors.Is(err, ErrBackendUnavailable) }
func IsData(err error) bool               { return stderrors.Is(err, ErrData) }
func IsQueryExecution(err error) bool     { return stderrors.Is(err, ErrQueryExecution) }
func IsValidation(err error) bool         { return stderrors.Is(err, ErrValidation) }
