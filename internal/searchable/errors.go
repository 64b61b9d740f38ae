package searchable

import (
	"errors"
	"fmt"
)

// Common transform errors
var (
	// ErrInvalidInput is returned when the OCR result cannot be parsed or normalized.
	ErrInvalidInput = errors.New("invalid OCR input")

	// ErrInvalidPDF is returned when the document is not a readable PDF.
	ErrInvalidPDF = errors.New("invalid PDF document")

	// ErrDocumentTooLarge is returned when the PDF exceeds the configured size limit.
	ErrDocumentTooLarge = errors.New("PDF document too large")

	// ErrTransformFailed is returned when compositing or writing the output fails.
	ErrTransformFailed = errors.New("searchable PDF transform failed")
)

// TransformError wraps errors with the transform step that failed.
type TransformError struct {
	// Op is the operation that failed (e.g., "Transform", "TransformVisionJSON").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("searchable: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("searchable: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *TransformError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTransformError creates a new TransformError.
func NewTransformError(op string, err error, details string) *TransformError {
	return &TransformError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapTransformError wraps an error as a TransformError if it isn't already one.
func WrapTransformError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var transformErr *TransformError
	if errors.As(err, &transformErr) {
		return err // Already wrapped
	}

	return NewTransformError(op, err, details)
}

// classify tags err with sentinel while keeping the cause matchable.
func classify(op string, sentinel, err error, details string) error {
	return NewTransformError(op, fmt.Errorf("%w: %w", sentinel, err), details)
}
