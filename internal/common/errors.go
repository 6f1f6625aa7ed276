package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors. Quota denial and duplicate detection are normal
// outcomes surfaced as values elsewhere; these sentinels cover the fault paths.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrUnreadableInput  = errors.New("unreadable input")
	ErrSchemaViolation  = errors.New("schema violation")
	ErrEncryptionFault  = errors.New("encryption fault")
	ErrStorageFault     = errors.New("storage fault")
)

// NewAppError builds an AppError wrapping cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether the error is a transient upstream/storage
// condition. Schema and encryption faults are never retryable.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrSchemaViolation),
		errors.Is(err, ErrEncryptionFault),
		errors.Is(err, ErrUnreadableInput),
		errors.Is(err, ErrInvalidInput):
		return false
	case errors.Is(err, ErrExtractionFailed), errors.Is(err, ErrStorageFault):
		return true
	}
	return false
}
