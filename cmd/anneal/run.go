package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/copyleftdev/annealer/internal/config"
	"github.com/copyleftdev/annealer/internal/optimization"
	"github.com/copyleftdev/annealer/internal/optimization/annealing"
	"github.com/copyleftdev/annealer/internal/optimization/ensemble"
	"github.com/copyleftdev/annealer/internal/optimization/problem"
	"github.com/copyleftdev/annealer/internal/optimization/simplex"
)

type runOptions struct {
	problem            string
	dim                int
	algorithm          string
	budget             int
	temperatureRepeats int
	rangeRepeats       int
	startTemperature   float64
	endTemperature     float64
	initialStep        float64
	initialPoint       []float64
	seed               int64
	islands            int
	workers            int
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a benchmark problem",
	Long: `Runs one optimization of a built-in benchmark and prints the best point found.
With --islands greater than one, independent searches run in parallel from the
same starting point and the best result is reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runOptimization(ctx, cmd, runOpts)
	},
}

func init() {
	bindRunFlags(runCmd.Flags(), &runOpts, envConfig)
	rootCmd.AddCommand(runCmd)
}

// bindRunFlags registers the run flags on f with defaults taken from cfg.
func bindRunFlags(f *pflag.FlagSet, o *runOptions, cfg *config.Config) {
	ac := cfg.AnnealingConfig()
	f.StringVar(&o.problem, "problem", "sphere", "Benchmark problem (see 'anneal problems')")
	f.IntVar(&o.dim, "dim", 2, "Problem dimension")
	f.StringVar(&o.algorithm, "algorithm", annealing.Name, "Search strategy: asa or nelder-mead")
	f.IntVar(&o.budget, "budget", ac.Budget, "Objective evaluation budget per island")
	f.IntVar(&o.temperatureRepeats, "temperature-repeats", ac.TemperatureRepeats, "Step adaptations per temperature")
	f.IntVar(&o.rangeRepeats, "range-repeats", ac.RangeRepeats, "Sweeps per step adaptation")
	f.Float64Var(&o.startTemperature, "ts", ac.StartTemperature, "Start temperature")
	f.Float64Var(&o.endTemperature, "tf", ac.EndTemperature, "End temperature")
	f.Float64Var(&o.initialStep, "step", ac.InitialStep, "Initial and maximum step as a fraction of the bound width")
	f.Float64SliceVar(&o.initialPoint, "x0", nil, "Starting point; sampled uniformly when omitted")
	f.Int64Var(&o.seed, "seed", 0, "Random seed; 0 picks one from the clock")
	f.IntVar(&o.islands, "islands", cfg.Optimization.Islands, "Independent searches")
	f.IntVar(&o.workers, "workers", cfg.Optimization.WorkerCount, "Maximum concurrent islands")
}

func (o runOptions) algorithmFor() (optimization.Algorithm, error) {
	switch o.algorithm {
	case annealing.Name:
		return annealing.New(annealing.Config{
			Budget:             o.budget,
			TemperatureRepeats: o.temperatureRepeats,
			RangeRepeats:       o.rangeRepeats,
			StartTemperature:   o.startTemperature,
			EndTemperature:     o.endTemperature,
			InitialStep:        o.initialStep,
		}, annealing.WithLogger(zapLogger))
	case simplex.Name:
		return simplex.New(simplex.DefaultConfig(o.budget), zapLogger)
	default:
		return nil, fmt.Errorf("unknown algorithm: %s", o.algorithm)
	}
}

func runOptimization(ctx context.Context, cmd *cobra.Command, o runOptions) error {
	dim := o.dim
	if len(o.initialPoint) > 0 {
		dim = len(o.initialPoint)
	}
	p, err := problem.Lookup(o.problem, dim)
	if err != nil {
		return err
	}
	counter := problem.Counting(p)

	alg, err := o.algorithmFor()
	if err != nil {
		return err
	}

	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var pop *optimization.Population
	if len(o.initialPoint) > 0 {
		pop, err = optimization.SeedPopulation(counter, o.initialPoint)
	} else {
		pop = optimization.NewPopulation(counter)
		err = pop.Initialize(1, rand.New(rand.NewSource(seed-1)))
	}
	if err != nil {
		return err
	}
	seedFitness := pop.At(0).Fitness()

	logger.Info("Starting optimization", map[string]interface{}{
		"problem":      p.String(),
		"algorithm":    alg.Name(),
		"islands":      o.islands,
		"seed":         seed,
		"seed_fitness": seedFitness,
	})

	start := time.Now()
	res, err := ensemble.Run(ctx, alg, pop, ensemble.Options{
		Islands:       o.islands,
		Seed:          seed,
		MaxGoroutines: o.workers,
		Logger:        zapLogger,
	})
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	elapsed := time.Since(start)

	best := res.Best.At(0)
	logger.Info("Optimization complete", map[string]interface{}{
		"elapsed_ms":   elapsed.Milliseconds(),
		"seed_fitness": seedFitness,
		"best_fitness": best.Fitness(),
		"evaluations":  counter.Evaluations(),
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "problem:     %s\n", p)
	fmt.Fprintf(out, "algorithm:   %s\n", alg.Name())
	fmt.Fprintf(out, "seed:        %d\n", seed)
	fmt.Fprintf(out, "fitness:     %.6g -> %.6g\n", seedFitness, best.Fitness())
	fmt.Fprintf(out, "x:           %v\n", best.DecisionVector())
	fmt.Fprintf(out, "evaluations: %d\n", counter.Evaluations())
	if len(res.Islands) > 1 {
		fmt.Fprintf(out, "islands:     %d (mean %.6g, stddev %.6g)\n", len(res.Islands), res.Mean, res.StdDev)
	}
	return nil
}
