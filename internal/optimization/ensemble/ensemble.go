// Package ensemble runs independent restarts of one search strategy in
// parallel, each island with its own random stream, and keeps the best result.
package ensemble

import (
	"context"
	"math/rand"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/annealer/internal/optimization"
)

// Options configures an ensemble run
type Options struct {
	// Islands is the number of independent searches; values below 1 mean 1
	Islands int

	// Seed is the base seed; island i uses Seed+i
	Seed int64

	// MaxGoroutines bounds concurrency; values below 1 mean GOMAXPROCS
	MaxGoroutines int

	// OnIsland is called from the island's goroutine when it finishes successfully.
	// It must be safe for concurrent use.
	OnIsland func(Island)

	// Logger receives per-island diagnostics; nil disables logging
	Logger *zap.Logger
}

// Island is the outcome of one independent search.
type Island struct {
	Index   int
	Seed    int64
	Best    *optimization.Individual
	Fitness float64
}

// Result aggregates all islands of a run.
type Result struct {
	// Best is a one-individual population holding the best island result,
	// or an empty population if the input was empty
	Best *optimization.Population

	// Islands holds per-island outcomes in index order
	Islands []Island

	// Mean and StdDev summarize the island fitness values
	Mean   float64
	StdDev float64
}

// Run evolves pop with alg on every island and returns the aggregate.
// The first island error cancels the remaining islands and is returned.
// Islands not yet started when ctx is cancelled are skipped and ctx.Err() is returned.
func Run(ctx context.Context, alg optimization.Algorithm, pop *optimization.Population, opts Options) (*Result, error) {
	islands := opts.Islands
	if islands < 1 {
		islands = 1
	}
	workers := opts.MaxGoroutines
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ensemble")

	if pop.Len() == 0 {
		return &Result{Best: optimization.NewPopulation(pop.Problem())}, nil
	}

	results := make([]Island, islands)

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(workers).
		WithCancelOnError().
		WithFirstError()

	for i := 0; i < islands; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			seed := opts.Seed + int64(i)
			out, err := alg.Evolve(pop, rand.New(rand.NewSource(seed)))
			if err != nil {
				logger.Debug("Island failed", zap.Int("island", i), zap.Error(err))
				return err
			}

			best := out.At(0)
			results[i] = Island{Index: i, Seed: seed, Best: best, Fitness: best.Fitness()}
			logger.Debug("Island finished",
				zap.Int("island", i),
				zap.String("algorithm", alg.Name()),
				zap.Float64("fitness", best.Fitness()),
			)
			if opts.OnIsland != nil {
				opts.OnIsland(results[i])
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return summarize(pop.Problem(), results), nil
}

func summarize(problem optimization.Problem, islands []Island) *Result {
	fitness := make([]float64, len(islands))
	bestIdx := 0
	for i, is := range islands {
		fitness[i] = is.Fitness
		if is.Fitness < islands[bestIdx].Fitness {
			bestIdx = i
		}
	}

	res := &Result{
		Best:    optimization.NewPopulation(problem),
		Islands: islands,
	}
	res.Best.Append(islands[bestIdx].Best)

	if len(fitness) > 1 {
		res.Mean, res.StdDev = stat.MeanStdDev(fitness, nil)
	} else {
		res.Mean = fitness[0]
	}
	return res
}
