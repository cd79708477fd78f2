// Package annealing implements adaptive-step simulated annealing for
// box-constrained minimization. Each run starts from the first individual of a
// population, perturbs one coordinate at a time and tunes a per-dimension step
// so that roughly half of the moves are accepted.
package annealing

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/annealer/internal/optimization"
)

const component = "adaptive_annealing"

// Name is the algorithm identifier used in logs and API payloads.
const Name = "asa"

// Progress describes the search state at the end of an outer iteration.
type Progress struct {
	// Iteration is the zero-based index of the completed outer iteration
	Iteration int
	// Iterations is the total number of outer iterations in the run
	Iterations int
	// Temperature is the temperature after this iteration's cooling step
	Temperature float64
	// Fitness is the fitness of the currently accepted point
	Fitness float64
	// Evaluations is the cumulative number of objective evaluations
	Evaluations int
	// MeanStep is the mean of the per-dimension steps
	MeanStep float64
}

// Observer receives progress after each outer iteration.
type Observer func(Progress)

// Option configures an Annealer.
type Option func(*Annealer)

// WithLogger sets the logger used for run-level diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Annealer) {
		if logger != nil {
			a.logger = logger.Named(component)
		}
	}
}

// WithObserver registers fn to be called after every outer iteration.
func WithObserver(fn Observer) Option {
	return func(a *Annealer) {
		a.observer = fn
	}
}

// Annealer is the adaptive simulated annealing strategy. It holds only
// immutable configuration; every call to Evolve keeps its state on the stack.
type Annealer struct {
	config   Config
	logger   *zap.Logger
	observer Observer
}

var _ optimization.Algorithm = (*Annealer)(nil)

// New validates cfg and creates an Annealer.
func New(cfg Config, opts ...Option) (*Annealer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Annealer{
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewDefault creates an Annealer with the default repeat counts and initial step.
func NewDefault(budget int, startTemperature, endTemperature float64, opts ...Option) (*Annealer, error) {
	return New(DefaultConfig(budget, startTemperature, endTemperature), opts...)
}

// Name implements optimization.Algorithm
func (a *Annealer) Name() string { return Name }

// Config returns the configuration in effect
func (a *Annealer) Config() Config { return a.config }

// Evolve searches around the first individual of pop and returns a new
// population holding one individual that is never worse than that seed.
// An empty population yields an empty population. Errors returned by the
// objective abort the run and are returned unchanged.
func (a *Annealer) Evolve(pop *optimization.Population, rng optimization.RandomSource) (*optimization.Population, error) {
	const op = "Evolve"

	problem := pop.Problem()
	if pop.Len() == 0 {
		return optimization.NewPopulation(problem), nil
	}

	lower, upper := problem.LowerBounds(), problem.UpperBounds()
	dim := problem.Dimension()
	if dim == 0 {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidProblem, "problem dimension cannot be zero").
			WithOperation(op).WithComponent(component)
	}

	cfg := a.config
	outer := cfg.OuterIterations(dim)
	if outer == 0 {
		return nil, optimization.WrapErrorf(optimization.ErrInsufficientBudget,
			"budget %d is below the %d evaluations needed for one cooling step (temperature repeats %d, range repeats %d, dimension %d)",
			cfg.Budget, cfg.EvaluationsPerIteration(dim), cfg.TemperatureRepeats, cfg.RangeRepeats, dim).
			WithOperation(op).WithComponent(component)
	}

	seed := pop.At(0)
	if seed.Dimension() != dim {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"seed individual has %d components, problem has %d", seed.Dimension(), dim).
			WithOperation(op).WithComponent(component)
	}

	coolingFactor := CoolingFactor(cfg.StartTemperature, cfg.EndTemperature, outer)

	// accepted holds the committed point, trial the scratch copy that is evaluated.
	accepted := seed.DecisionVector()
	trial := seed.DecisionVector()
	acceptedFitness := seed.Fitness()

	step := make([]float64, dim)
	for i := range step {
		step[i] = cfg.InitialStep
	}
	acceptCount := make([]int, dim)
	temperature := cfg.StartTemperature
	evaluations := 0

	a.logger.Debug("Starting annealing run",
		zap.Int("dimension", dim),
		zap.Int("outer_iterations", outer),
		zap.Float64("cooling_factor", coolingFactor),
		zap.Float64("seed_fitness", acceptedFitness),
	)

	for iter := 0; iter < outer; iter++ {
		for t := 0; t < cfg.TemperatureRepeats; t++ {
			for r := 0; r < cfg.RangeRepeats; r++ {
				start := int(rng.Float64() * float64(dim))
				if start >= dim {
					start = dim - 1
				}
				for k := 0; k < dim; k++ {
					i := (start + k) % dim

					trial[i] = accepted[i] + (2*rng.Float64()-1)*step[i]*(upper[i]-lower[i])
					if trial[i] < lower[i] || trial[i] > upper[i] {
						trial[i] = accepted[i]
						continue
					}

					f, err := problem.Evaluate(trial)
					if err != nil {
						return nil, err
					}
					evaluations++

					if f < acceptedFitness || math.Exp((acceptedFitness-f)/temperature) > rng.Float64() {
						accepted[i] = trial[i]
						acceptedFitness = f
						acceptCount[i]++
					} else {
						trial[i] = accepted[i]
					}
				}
			}
			adaptStep(step, acceptCount, cfg.RangeRepeats, cfg.InitialStep)
		}
		temperature *= coolingFactor

		if a.observer != nil {
			a.observer(Progress{
				Iteration:   iter,
				Iterations:  outer,
				Temperature: temperature,
				Fitness:     acceptedFitness,
				Evaluations: evaluations,
				MeanStep:    mean(step),
			})
		}
	}

	a.logger.Debug("Annealing run finished",
		zap.Int("evaluations", evaluations),
		zap.Float64("final_temperature", temperature),
		zap.Float64("seed_fitness", seed.Fitness()),
		zap.Float64("final_fitness", acceptedFitness),
	)

	result := optimization.NewPopulation(problem)
	if acceptedFitness < seed.Fitness() {
		result.Append(optimization.NewIndividual(accepted, seed.Velocity(), acceptedFitness))
	} else {
		result.Append(seed)
	}
	return result, nil
}
