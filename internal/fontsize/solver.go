// Package fontsize computes the font size at which a word's glyph run is as
// wide as its OCR bounding box.
//
// Widths are linear in the font size: rendered = referenceWidth / 1000 * size,
// where referenceWidth is the sum of per-character widths in 1000-unit glyph
// space. The DirectSolver inverts that formula, the IterativeSolver walks
// towards the target in fixed steps and treats the metrics as a black box.
package fontsize

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Solver strategies
const (
	StrategyDirect    = "direct"
	StrategyIterative = "iterative"
)

var thousand = decimal.NewFromInt(1000)

// Solver computes a strictly positive font size for text so that its rendered
// width matches targetWidth.
type Solver interface {
	Solve(text string, targetWidth decimal.Decimal) (decimal.Decimal, error)
}

// Config selects and tunes a solver.
type Config struct {
	Strategy      string
	Initial       decimal.Decimal // iterative starting size
	Step          decimal.Decimal // iterative step
	Precision     int32           // decimals kept, truncated
	MaxIterations int
}

// DefaultConfig returns the reference behavior: direct solving, two decimals.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyDirect,
		Initial:       decimal.NewFromInt(12),
		Step:          decimal.RequireFromString("0.25"),
		Precision:     2,
		MaxIterations: 100000,
	}
}

// New builds the solver named by cfg.Strategy.
func New(cfg Config, metrics Metrics) (Solver, error) {
	if metrics == nil {
		return nil, fmt.Errorf("%w: metrics are required", ErrInvalidConfig)
	}
	if cfg.Precision < 0 {
		return nil, fmt.Errorf("%w: precision must not be negative", ErrInvalidConfig)
	}

	switch cfg.Strategy {
	case StrategyDirect, "":
		return &DirectSolver{Metrics: metrics, Precision: cfg.Precision}, nil
	case StrategyIterative:
		if !cfg.Initial.IsPositive() || !cfg.Step.IsPositive() || cfg.MaxIterations <= 0 {
			return nil, fmt.Errorf("%w: initial size, step and iteration cap must be positive", ErrInvalidConfig)
		}
		return &IterativeSolver{
			Metrics:       metrics,
			Initial:       cfg.Initial,
			Step:          cfg.Step,
			Precision:     cfg.Precision,
			MaxIterations: cfg.MaxIterations,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
}

// referenceWidth runs the checks shared by both solvers and returns the
// positive reference width of text.
func referenceWidth(metrics Metrics, text string, target decimal.Decimal) (decimal.Decimal, error) {
	if text == "" {
		return decimal.Zero, newSolveError(text, ErrEmptyText)
	}
	if !target.IsPositive() {
		return decimal.Zero, newSolveError(text, ErrInvalidTarget)
	}

	ref, err := metrics.ReferenceWidth(text)
	if err != nil {
		return decimal.Zero, newSolveError(text, err)
	}
	if !ref.IsPositive() {
		return decimal.Zero, newSolveError(text, ErrZeroWidth)
	}

	return ref, nil
}

// RenderedWidth is the width of text at size given its reference width.
func RenderedWidth(ref, size decimal.Decimal) decimal.Decimal {
	return ref.Mul(size).Div(thousand)
}

// DirectSolver computes target * 1000 / referenceWidth, truncated to Precision decimals.
type DirectSolver struct {
	Metrics   Metrics
	Precision int32
}

// Solve implements Solver.
func (s *DirectSolver) Solve(text string, targetWidth decimal.Decimal) (decimal.Decimal, error) {
	ref, err := referenceWidth(s.Metrics, text, targetWidth)
	if err != nil {
		return decimal.Zero, err
	}

	// QuoRem yields the quotient truncated to Precision decimals.
	size, _ := targetWidth.Mul(thousand).QuoRem(ref, s.Precision)
	if !size.IsPositive() {
		return decimal.Zero, newSolveError(text, ErrSizeUnderflow)
	}

	return size, nil
}

// IterativeSolver starts at Initial and moves by Step until the rendered width
// crosses the target. Oversized text shrinks until it fits, undersized text
// grows until it reaches the target.
type IterativeSolver struct {
	Metrics       Metrics
	Initial       decimal.Decimal
	Step          decimal.Decimal
	Precision     int32
	MaxIterations int
}

// Solve implements Solver.
func (s *IterativeSolver) Solve(text string, targetWidth decimal.Decimal) (decimal.Decimal, error) {
	ref, err := referenceWidth(s.Metrics, text, targetWidth)
	if err != nil {
		return decimal.Zero, err
	}

	// Comparing ref*size with target*1000 keeps every step exact.
	scaledTarget := targetWidth.Mul(thousand)
	size := s.Initial
	iterations := 0

	if ref.Mul(size).GreaterThan(scaledTarget) {
		for ref.Mul(size).GreaterThan(scaledTarget) {
			if iterations >= s.MaxIterations {
				return decimal.Zero, newSolveError(text, fmt.Errorf("%w after %d iterations", ErrNoConvergence, iterations))
			}
			next := size.Sub(s.Step)
			if !next.IsPositive() {
				// Never step down to zero: keep the smallest positive size.
				break
			}
			size = next
			iterations++
		}
	} else {
		for ref.Mul(size).LessThan(scaledTarget) {
			if iterations >= s.MaxIterations {
				return decimal.Zero, newSolveError(text, fmt.Errorf("%w after %d iterations", ErrNoConvergence, iterations))
			}
			size = size.Add(s.Step)
			iterations++
		}
	}

	size = size.Truncate(s.Precision)
	if !size.IsPositive() {
		return decimal.Zero, newSolveError(text, ErrSizeUnderflow)
	}

	return size, nil
}
