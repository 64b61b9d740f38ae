package compositor

import (
	"errors"
	"fmt"
)

// Common compositor errors
var (
	// ErrDocumentIO is returned when the PDF cannot be read, modified or written.
	ErrDocumentIO = errors.New("PDF document I/O failed")

	// ErrPageOutOfRange is returned for page indices outside the document.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// CompositeError wraps errors with the operation that failed.
type CompositeError struct {
	// Op is the operation that failed (e.g., "Open", "OpenPrepend").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *CompositeError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("compositor: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("compositor: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CompositeError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *CompositeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewCompositeError creates a new CompositeError.
func NewCompositeError(op string, err error, details string) *CompositeError {
	return &CompositeError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapCompositeError wraps an error as a CompositeError if it isn't already one.
func WrapCompositeError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var compErr *CompositeError
	if errors.As(err, &compErr) {
		return err // Already wrapped
	}

	return NewCompositeError(op, err, details)
}

// documentIOError marks a pdfcpu failure as a document I/O error.
func documentIOError(op string, err error, details string) error {
	return NewCompositeError(op, fmt.Errorf("%w: %v", ErrDocumentIO, err), details)
}
