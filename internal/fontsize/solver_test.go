package fontsize

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flat gives every character a width of 500 units.
var flat = WidthTable{Default: 500}

func TestDirectSolverKnownValue(t *testing.T) {
	solver := &DirectSolver{Metrics: flat, Precision: 2}

	size, err := solver.Solve("TEST", d("100"))
	require.NoError(t, err)

	assert.Equal(t, "50.00", size.StringFixed(2))
}

func TestDirectSolverTruncates(t *testing.T) {
	solver := &DirectSolver{Metrics: flat, Precision: 2}

	// 100 * 1000 / 1500 = 66.666...
	size, err := solver.Solve("abc", d("100"))
	require.NoError(t, err)
	assert.True(t, d("66.66").Equal(size), "got %s", size)

	// 0.3 * 1000 / 1500 = 0.2
	size, err = solver.Solve("abc", d("0.3"))
	require.NoError(t, err)
	assert.True(t, d("0.2").Equal(size), "got %s", size)
}

func TestDirectSolverHelvetica(t *testing.T) {
	helvetica, err := NewCoreFont(DefaultFont, '?')
	require.NoError(t, err)

	ref, err := helvetica.ReferenceWidth("TEST")
	require.NoError(t, err)
	assert.Equal(t, int64(611+667+667+611), ref.IntPart())

	solver := &DirectSolver{Metrics: helvetica, Precision: 2}
	size, err := solver.Solve("TEST", d("100"))
	require.NoError(t, err)

	// 100000 / 2556 = 39.123...
	assert.True(t, d("39.12").Equal(size), "got %s", size)
}

func TestSolversRejectDegenerateInput(t *testing.T) {
	zero := WidthTable{Widths: map[rune]int{' ': 0}, Default: 500}
	solvers := map[string]Solver{
		"direct":    &DirectSolver{Metrics: zero, Precision: 2},
		"iterative": mustIterative(t, zero),
	}

	tests := []struct {
		name   string
		text   string
		target string
		want   error
	}{
		{name: "empty text", text: "", target: "100", want: ErrEmptyText},
		{name: "zero width text", text: "   ", target: "100", want: ErrZeroWidth},
		{name: "zero target", text: "abc", target: "0", want: ErrInvalidTarget},
		{name: "negative target", text: "abc", target: "-5", want: ErrInvalidTarget},
	}

	for solverName, solver := range solvers {
		for _, tt := range tests {
			t.Run(solverName+"/"+tt.name, func(t *testing.T) {
				size, err := solver.Solve(tt.text, d(tt.target))
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
				assert.True(t, size.IsZero())

				var solveErr *SolveError
				require.True(t, errors.As(err, &solveErr))
				assert.Equal(t, tt.text, solveErr.Text)
			})
		}
	}
}

func TestDirectSolverUnderflow(t *testing.T) {
	solver := &DirectSolver{Metrics: flat, Precision: 2}

	_, err := solver.Solve("abcdefghij", d("0.01"))
	assert.ErrorIs(t, err, ErrSizeUnderflow)
}

func mustIterative(t *testing.T, metrics Metrics) Solver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Strategy = StrategyIterative
	solver, err := New(cfg, metrics)
	require.NoError(t, err)
	return solver
}

func TestIterativeSolver(t *testing.T) {
	solver := mustIterative(t, flat)

	tests := []struct {
		name   string
		text   string
		target string
		want   string
	}{
		// 4 chars * 500 = 2000 units: rendered = 2 * size.
		{name: "exact fit", text: "TEST", target: "24", want: "12"},
		{name: "grows to reach target", text: "TEST", target: "100", want: "50"},
		{name: "grows past target", text: "TEST", target: "100.1", want: "50.25"},
		{name: "shrinks until it fits", text: "TEST", target: "10.3", want: "5"},
		{name: "smallest size", text: "TEST", target: "0.01", want: "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := solver.Solve(tt.text, d(tt.target))
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(size), "got %s, want %s", size, tt.want)
		})
	}
}

func TestIterativeSolverIterationCap(t *testing.T) {
	solver := &IterativeSolver{
		Metrics:       flat,
		Initial:       d("12"),
		Step:          d("0.25"),
		Precision:     2,
		MaxIterations: 10,
	}

	_, err := solver.Solve("TEST", d("1000"))
	assert.ErrorIs(t, err, ErrNoConvergence)

	// Ten steps are enough to reach 14.5.
	size, err := solver.Solve("TEST", d("29"))
	require.NoError(t, err)
	assert.True(t, d("14.5").Equal(size), "got %s", size)
}

// Re-rendering the solved size must land within one step (iterative) or one
// rounding unit (direct) of the target.
func TestSolvedSizeReproducesTarget(t *testing.T) {
	helvetica, err := NewCoreFont(DefaultFont, '?')
	require.NoError(t, err)

	direct := &DirectSolver{Metrics: helvetica, Precision: 2}
	iterative := mustIterative(t, helvetica)
	step := d("0.25")
	unit := d("0.01")

	texts := []string{"a", "Invoice", "Rechnungsnummer", "Größe", "1.234,56", "WWW", "iii", "—"}
	targets := []string{"0.5", "3", "17.25", "42", "120.125", "599.999"}

	for _, text := range texts {
		ref, err := helvetica.ReferenceWidth(text)
		require.NoError(t, err)

		for _, target := range targets {
			want := d(target)

			size, err := direct.Solve(text, want)
			if errors.Is(err, ErrSizeUnderflow) {
				continue
			}
			require.NoError(t, err, "%q at %s", text, target)
			assert.True(t, size.IsPositive())
			gap := want.Sub(RenderedWidth(ref, size))
			assert.False(t, gap.IsNegative(), "direct never overshoots: %q at %s", text, target)
			assert.True(t, gap.LessThanOrEqual(RenderedWidth(ref, unit)), "direct %q at %s: gap %s", text, target, gap)

			size, err = iterative.Solve(text, want)
			require.NoError(t, err, "%q at %s", text, target)
			assert.True(t, size.IsPositive())
			gap = RenderedWidth(ref, size).Sub(want).Abs()
			assert.True(t, gap.LessThanOrEqual(RenderedWidth(ref, step)), "iterative %q at %s: gap %s", text, target, gap)
		}
	}
}

func TestNew(t *testing.T) {
	solver, err := New(DefaultConfig(), flat)
	require.NoError(t, err)
	assert.IsType(t, &DirectSolver{}, solver)

	cfg := DefaultConfig()
	cfg.Strategy = StrategyIterative
	solver, err = New(cfg, flat)
	require.NoError(t, err)
	assert.IsType(t, &IterativeSolver{}, solver)

	invalid := []func(*Config){
		func(c *Config) { c.Strategy = "bisect" },
		func(c *Config) { c.Precision = -1 },
		func(c *Config) { c.Strategy = StrategyIterative; c.Step = decimal.Zero },
		func(c *Config) { c.Strategy = StrategyIterative; c.Initial = d("-1") },
		func(c *Config) { c.Strategy = StrategyIterative; c.MaxIterations = 0 },
	}
	for i, mutate := range invalid {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := New(cfg, flat)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}

	_, err = New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
