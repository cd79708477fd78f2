// Package simplex adapts gonum's derivative-free Nelder-Mead method to the
// optimization.Algorithm interface, as a deterministic local refinement step.
package simplex

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/annealer/internal/optimization"
)

const component = "nelder_mead"

// Name is the algorithm identifier used in logs and API payloads.
const Name = "nelder-mead"

// Config contains configuration for the Nelder-Mead strategy
type Config struct {
	// MaxEvaluations bounds the number of objective evaluations
	MaxEvaluations int

	// SimplexSize is the initial simplex edge as a fraction of the box width
	SimplexSize float64

	// Tolerance is the absolute and relative function convergence threshold
	Tolerance float64
}

// DefaultConfig returns the standard settings used for refinement
func DefaultConfig(maxEvaluations int) Config {
	return Config{
		MaxEvaluations: maxEvaluations,
		SimplexSize:    0.2,
		Tolerance:      1e-8,
	}
}

// NelderMead is a bound-respecting Nelder-Mead local search.
type NelderMead struct {
	config Config
	logger *zap.Logger
}

var _ optimization.Algorithm = (*NelderMead)(nil)

// New validates cfg and creates the strategy. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) (*NelderMead, error) {
	if cfg.MaxEvaluations < 1 {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidConfiguration,
			"max evaluations must be positive, got %d", cfg.MaxEvaluations).
			WithOperation("New").WithComponent(component)
	}
	if !(cfg.SimplexSize > 0) {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidConfiguration,
			"simplex size must be positive, got %v", cfg.SimplexSize).
			WithOperation("New").WithComponent(component)
	}
	if cfg.Tolerance < 0 {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidConfiguration,
			"tolerance must be non-negative, got %v", cfg.Tolerance).
			WithOperation("New").WithComponent(component)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NelderMead{config: cfg, logger: logger.Named(component)}, nil
}

// Name implements optimization.Algorithm
func (nm *NelderMead) Name() string { return Name }

// Evolve refines the first individual of pop. The search is deterministic, so
// rng is not consumed. Points proposed outside the box are clamped before
// evaluation, and the result is never worse than the seed.
func (nm *NelderMead) Evolve(pop *optimization.Population, _ optimization.RandomSource) (*optimization.Population, error) {
	const op = "Evolve"

	problem := pop.Problem()
	if pop.Len() == 0 {
		return optimization.NewPopulation(problem), nil
	}

	dim := problem.Dimension()
	if dim == 0 {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidProblem, "problem dimension cannot be zero").
			WithOperation(op).WithComponent(component)
	}
	seed := pop.At(0)
	if seed.Dimension() != dim {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"seed individual has %d components, problem has %d", seed.Dimension(), dim).
			WithOperation(op).WithComponent(component)
	}

	lower, upper := problem.LowerBounds(), problem.UpperBounds()
	var evalErr error
	clamped := make([]float64, dim)

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			for i := range x {
				clamped[i] = math.Max(lower[i], math.Min(x[i], upper[i]))
			}
			f, err := problem.Evaluate(clamped)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return f
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: nm.config.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   nm.config.Tolerance,
			Relative:   nm.config.Tolerance,
			Iterations: 100,
		},
	}

	width := 0.0
	for i := range lower {
		width = math.Max(width, upper[i]-lower[i])
	}
	method := &optimize.NelderMead{
		Reflection:  1.0,
		Expansion:   2.0,
		Contraction: 0.5,
		Shrink:      0.5,
		SimplexSize: nm.config.SimplexSize * width,
	}

	result, err := optimize.Minimize(p, seed.DecisionVector(), settings, method)
	if evalErr != nil {
		return nil, evalErr
	}

	out := optimization.NewPopulation(problem)
	if result == nil || len(result.X) != dim {
		nm.logger.Debug("Nelder-Mead terminated without a result", zap.Error(err))
		out.Append(seed)
		return out, nil
	}
	if err != nil {
		nm.logger.Debug("Nelder-Mead reported an error, keeping best location", zap.Error(err))
	}

	x := make([]float64, dim)
	for i := range x {
		x[i] = math.Max(lower[i], math.Min(result.X[i], upper[i]))
	}

	nm.logger.Debug("Nelder-Mead finished",
		zap.String("status", result.Status.String()),
		zap.Int("evaluations", result.Stats.FuncEvaluations),
		zap.Float64("seed_fitness", seed.Fitness()),
		zap.Float64("final_fitness", result.F),
	)

	if result.F < seed.Fitness() {
		out.Append(optimization.NewIndividual(x, seed.Velocity(), result.F))
	} else {
		out.Append(seed)
	}
	return out, nil
}
