package server

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/annealer/internal/config"
	"github.com/copyleftdev/annealer/internal/optimization"
	"github.com/copyleftdev/annealer/internal/optimization/annealing"
	"github.com/copyleftdev/annealer/internal/optimization/problem"
	"github.com/copyleftdev/annealer/internal/optimization/simplex"
)

// StartRequest describes a new optimization job. Omitted schedule fields take
// the server defaults from configuration.
type StartRequest struct {
	Problem      string    `json:"problem"`
	Dimension    int       `json:"dimension"`
	Algorithm    string    `json:"algorithm,omitempty"`
	InitialPoint []float64 `json:"initial_point,omitempty"`

	Budget             *int     `json:"budget,omitempty"`
	TemperatureRepeats *int     `json:"temperature_repeats,omitempty"`
	RangeRepeats       *int     `json:"range_repeats,omitempty"`
	StartTemperature   *float64 `json:"start_temperature,omitempty"`
	EndTemperature     *float64 `json:"end_temperature,omitempty"`
	InitialStep        *float64 `json:"initial_step,omitempty"`

	Seed    *int64 `json:"seed,omitempty"`
	Islands int    `json:"islands,omitempty"`
}

// job is a validated StartRequest ready to run.
type job struct {
	algorithm optimization.Algorithm
	problem   *problem.Counter
	seed      int64
	islands   int
	initial   []float64
}

func invalidParams(format string, args ...interface{}) error {
	return optimization.WrapErrorf(optimization.ErrInvalidConfiguration, format, args...).
		WithOperation("StartRequest").WithComponent("server")
}

// build validates the request against cfg and prepares the job.
func (req *StartRequest) build(cfg *config.Config, logger *zap.Logger) (*job, error) {
	if req.Problem == "" {
		return nil, invalidParams("problem is required")
	}
	dim := req.Dimension
	if dim == 0 && len(req.InitialPoint) > 0 {
		dim = len(req.InitialPoint)
	}
	if limit := cfg.Optimization.MaxDimension; dim > limit || len(req.InitialPoint) > limit {
		return nil, invalidParams("dimension must not exceed %d", limit)
	}
	p, err := problem.Lookup(req.Problem, dim)
	if err != nil {
		return nil, err
	}
	if req.InitialPoint != nil {
		if len(req.InitialPoint) != dim {
			return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
				"initial point has %d components, problem has %d", len(req.InitialPoint), dim).
				WithOperation("StartRequest").WithComponent("server")
		}
		if !optimization.Contains(p, req.InitialPoint) {
			return nil, invalidParams("initial point lies outside the problem bounds")
		}
	}

	islands := req.Islands
	if islands == 0 {
		islands = cfg.Optimization.Islands
	}
	if islands < 1 {
		return nil, invalidParams("islands must be positive, got %d", islands)
	}
	if islands > cfg.Optimization.MaxIslands {
		return nil, invalidParams("islands must not exceed %d, got %d", cfg.Optimization.MaxIslands, islands)
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	ac := req.annealingConfig(cfg)
	var alg optimization.Algorithm
	switch req.Algorithm {
	case "", annealing.Name:
		a, err := annealing.New(ac, annealing.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if a.Config().OuterIterations(dim) == 0 {
			return nil, optimization.WrapErrorf(optimization.ErrInsufficientBudget,
				"budget %d cannot cover one cooling step of %d evaluations",
				ac.Budget, a.Config().EvaluationsPerIteration(dim)).
				WithOperation("StartRequest").WithComponent("server")
		}
		alg = a
	case simplex.Name:
		nm, err := simplex.New(simplex.DefaultConfig(ac.Budget), logger)
		if err != nil {
			return nil, err
		}
		alg = nm
	default:
		return nil, invalidParams("unknown algorithm %q", req.Algorithm)
	}

	return &job{
		algorithm: alg,
		problem:   problem.Counting(p),
		seed:      seed,
		islands:   islands,
		initial:   req.InitialPoint,
	}, nil
}

func (req *StartRequest) annealingConfig(cfg *config.Config) annealing.Config {
	ac := cfg.AnnealingConfig()
	if req.Budget != nil {
		ac.Budget = *req.Budget
	}
	if req.TemperatureRepeats != nil {
		ac.TemperatureRepeats = *req.TemperatureRepeats
	}
	if req.RangeRepeats != nil {
		ac.RangeRepeats = *req.RangeRepeats
	}
	if req.StartTemperature != nil {
		ac.StartTemperature = *req.StartTemperature
	}
	if req.EndTemperature != nil {
		ac.EndTemperature = *req.EndTemperature
	}
	if req.InitialStep != nil {
		ac.InitialStep = *req.InitialStep
	}
	return ac
}

// seedPopulation returns the starting population: the requested point, or one
// individual sampled from the job's random stream.
func (j *job) seedPopulation() (*optimization.Population, error) {
	if j.initial != nil {
		return optimization.SeedPopulation(j.problem, j.initial)
	}
	pop := optimization.NewPopulation(j.problem)
	if err := pop.Initialize(1, rand.New(rand.NewSource(j.seed-1))); err != nil {
		return nil, err
	}
	return pop, nil
}
