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

// Error codes for pipeline failures. Most of these are recovered at a
// narrower scope (field, record, extractor) and surface as diagnostics
// or validation violations rather than returned errors.
const (
	CodeClassificationUncertain = "CLASSIFICATION_UNCERTAIN"
	CodeExtractorUnavailable    = "EXTRACTOR_UNAVAILABLE"
	CodeExtractorTimeout        = "EXTRACTOR_TIMEOUT"
	CodeUnparseableField        = "UNPARSEABLE_FIELD"
	CodeDisputedField           = "DISPUTED_FIELD"
	CodeEmptyExtraction         = "EMPTY_EXTRACTION"
	CodeConfigError             = "CONFIG_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// ErrEmptyExtraction is the single fatal statement-level failure:
	// no extractor produced any candidate for the document.
	ErrEmptyExtraction = errors.New("no extractor produced any candidates")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf extracts the application error code, or empty for foreign
// errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
