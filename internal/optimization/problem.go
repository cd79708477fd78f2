package optimization

import "fmt"

// BoxProblem is a Problem defined by explicit bounds and an objective function.
type BoxProblem struct {
	name      string
	lower     []float64
	upper     []float64
	objective ObjectiveFunction
}

// NewBoxProblem creates a problem over the box [lower, upper].
// The bounds are copied; the objective must be safe to call concurrently if the
// problem is shared across concurrent searches.
func NewBoxProblem(name string, lower, upper []float64, objective ObjectiveFunction) (*BoxProblem, error) {
	const op = "NewBoxProblem"

	if objective == nil {
		return nil, WrapErrorf(ErrInvalidProblem, "objective function is required").
			WithOperation(op).WithComponent("problem")
	}
	if len(lower) != len(upper) {
		return nil, WrapErrorf(ErrInvalidProblem, "bounds length mismatch: lower has %d entries, upper has %d",
			len(lower), len(upper)).WithOperation(op).WithComponent("problem")
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, WrapErrorf(ErrInvalidProblem, "lower bound %v exceeds upper bound %v at dimension %d",
				lower[i], upper[i], i).WithOperation(op).WithComponent("problem")
		}
	}

	return &BoxProblem{
		name:      name,
		lower:     append([]float64(nil), lower...),
		upper:     append([]float64(nil), upper...),
		objective: objective,
	}, nil
}

// Name returns the problem name
func (p *BoxProblem) Name() string { return p.name }

// Dimension returns the number of decision variables
func (p *BoxProblem) Dimension() int { return len(p.lower) }

// LowerBounds returns a copy of the lower bounds
func (p *BoxProblem) LowerBounds() []float64 { return append([]float64(nil), p.lower...) }

// UpperBounds returns a copy of the upper bounds
func (p *BoxProblem) UpperBounds() []float64 { return append([]float64(nil), p.upper...) }

// Evaluate computes the objective value at x
func (p *BoxProblem) Evaluate(x []float64) (float64, error) {
	if len(x) != len(p.lower) {
		return 0, WrapErrorf(ErrDimensionMismatch, "point has %d components, problem has %d", len(x), len(p.lower)).
			WithOperation("Evaluate").WithComponent("problem")
	}
	return p.objective(x)
}

// String implements fmt.Stringer
func (p *BoxProblem) String() string {
	return fmt.Sprintf("%s(dim=%d)", p.name, len(p.lower))
}

// Contains reports whether x lies inside the closed box of p.
func Contains(p Problem, x []float64) bool {
	lower, upper := p.LowerBounds(), p.UpperBounds()
	if len(x) != len(lower) {
		return false
	}
	for i, v := range x {
		if v < lower[i] || v > upper[i] {
			return false
		}
	}
	return true
}
