package fontsize

import (
	"errors"
	"fmt"
)

// Solver and metrics errors
var (
	// ErrEmptyText is returned for words without any characters.
	ErrEmptyText = errors.New("text is empty")

	// ErrZeroWidth is returned when the text has no positive reference width.
	ErrZeroWidth = errors.New("text has zero reference width")

	// ErrInvalidTarget is returned when the target width is zero or negative.
	ErrInvalidTarget = errors.New("target width must be positive")

	// ErrSizeUnderflow is returned when the solved size truncates to zero.
	ErrSizeUnderflow = errors.New("font size truncates to zero")

	// ErrNoConvergence is returned when the iterative search hits its iteration cap.
	ErrNoConvergence = errors.New("font size search did not converge")

	// ErrUnencodable is returned in strict mode for runes outside the font encoding.
	ErrUnencodable = errors.New("text contains characters outside the font encoding")

	// ErrUnknownFont is returned for font names without built-in metrics.
	ErrUnknownFont = errors.New("unknown font")

	// ErrInvalidConfig is returned for unusable solver settings.
	ErrInvalidConfig = errors.New("invalid font size configuration")
)

// SolveError reports why no font size could be computed for a piece of text.
type SolveError struct {
	// Text is the word the solver was asked to fit.
	Text string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	return fmt.Sprintf("fontsize: cannot solve %q: %v", e.Text, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *SolveError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *SolveError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newSolveError(text string, err error) error {
	var solveErr *SolveError
	if errors.As(err, &solveErr) {
		return err
	}
	return &SolveError{Text: text, Err: err}
}
