package annealing

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/annealer/internal/optimization"
	"github.com/copyleftdev/annealer/internal/optimization/problem"
)

// scriptedSource replays a fixed stream of uniform draws.
type scriptedSource struct {
	t     *testing.T
	draws []float64
	next  int
}

func (s *scriptedSource) Float64() float64 {
	s.t.Helper()
	require.Less(s.t, s.next, len(s.draws), "random stream exhausted")
	v := s.draws[s.next]
	s.next++
	return v
}

func sphereProblem(t *testing.T, dim int, lo, hi float64) *optimization.BoxProblem {
	t.Helper()
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range lower {
		lower[i], upper[i] = lo, hi
	}
	p, err := optimization.NewBoxProblem("sphere", lower, upper, func(x []float64) (float64, error) {
		return floats.Dot(x, x), nil
	})
	require.NoError(t, err)
	return p
}

func seeded(t *testing.T, p optimization.Problem, x ...float64) *optimization.Population {
	t.Helper()
	pop, err := optimization.SeedPopulation(p, x)
	require.NoError(t, err)
	return pop
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: DefaultConfig(1000, 1, 0.01)},
		{name: "zero budget is valid", config: DefaultConfig(0, 1, 0.01)},
		{name: "zero repeats take defaults", config: Config{Budget: 10, StartTemperature: 2, EndTemperature: 1}},
		{name: "negative budget", config: DefaultConfig(-1, 1, 0.01), wantErr: true},
		{name: "zero start temperature", config: DefaultConfig(100, 0, 0.01), wantErr: true},
		{name: "negative start temperature", config: DefaultConfig(100, -1, 0.01), wantErr: true},
		{name: "zero end temperature", config: DefaultConfig(100, 1, 0), wantErr: true},
		{name: "negative end temperature", config: DefaultConfig(100, 1, -0.5), wantErr: true},
		{name: "equal temperatures", config: DefaultConfig(100, 1, 1), wantErr: true},
		{name: "inverted temperatures", config: DefaultConfig(100, 0.01, 1), wantErr: true},
		{name: "NaN start temperature", config: DefaultConfig(100, math.NaN(), 0.01), wantErr: true},
		{name: "NaN end temperature", config: DefaultConfig(100, 1, math.NaN()), wantErr: true},
		{
			name:    "negative range repeats",
			config:  Config{Budget: 10, RangeRepeats: -1, StartTemperature: 2, EndTemperature: 1},
			wantErr: true,
		},
		{
			name:    "negative temperature repeats",
			config:  Config{Budget: 10, TemperatureRepeats: -3, StartTemperature: 2, EndTemperature: 1},
			wantErr: true,
		},
		{
			name:    "negative initial step",
			config:  Config{Budget: 10, InitialStep: -0.5, StartTemperature: 2, EndTemperature: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, optimization.ErrInvalidConfiguration)
				assert.Nil(t, a)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, a)
			assert.Equal(t, Name, a.Name())
			assert.GreaterOrEqual(t, a.Config().TemperatureRepeats, 1)
			assert.GreaterOrEqual(t, a.Config().RangeRepeats, 1)
			assert.Greater(t, a.Config().InitialStep, 0.0)
		})
	}
}

func TestNewDefault(t *testing.T) {
	a, err := NewDefault(500, 10, 0.1)
	require.NoError(t, err)

	cfg := a.Config()
	assert.Equal(t, 500, cfg.Budget)
	assert.Equal(t, DefaultTemperatureRepeats, cfg.TemperatureRepeats)
	assert.Equal(t, DefaultRangeRepeats, cfg.RangeRepeats)
	assert.Equal(t, DefaultInitialStep, cfg.InitialStep)
}

func TestEvolveEmptyPopulation(t *testing.T) {
	a, err := NewDefault(1000, 1, 0.01)
	require.NoError(t, err)

	p := sphereProblem(t, 3, -1, 1)
	out, err := a.Evolve(optimization.NewPopulation(p), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Same(t, p, out.Problem())
}

func TestEvolveEmptyPopulationSkipsValidation(t *testing.T) {
	// A zero budget would fail on any non-empty population.
	a, err := NewDefault(0, 1, 0.01)
	require.NoError(t, err)

	out, err := a.Evolve(optimization.NewPopulation(sphereProblem(t, 0, 0, 0)), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestEvolveZeroDimension(t *testing.T) {
	a, err := NewDefault(1000, 1, 0.01)
	require.NoError(t, err)

	p := sphereProblem(t, 0, 0, 0)
	pop := optimization.NewPopulation(p)
	pop.Append(optimization.NewIndividual(nil, nil, 0))

	_, err = a.Evolve(pop, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, optimization.ErrInvalidProblem)
}

func TestEvolveInsufficientBudget(t *testing.T) {
	const dim = 2
	cfg := DefaultConfig(0, 1, 0.01)
	perIteration := cfg.TemperatureRepeats * cfg.RangeRepeats * dim

	tests := []struct {
		name    string
		budget  int
		wantErr bool
	}{
		{name: "zero budget", budget: 0, wantErr: true},
		{name: "one short of a cooling step", budget: perIteration - 1, wantErr: true},
		{name: "exactly one cooling step", budget: perIteration},
		{name: "just under two cooling steps", budget: 2*perIteration - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.Budget = tt.budget
			a, err := New(cfg)
			require.NoError(t, err)

			_, err = a.Evolve(seeded(t, sphereProblem(t, dim, -5, 5), 1, 1), rand.New(rand.NewSource(7)))
			if tt.wantErr {
				assert.ErrorIs(t, err, optimization.ErrInsufficientBudget)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEvolveInsufficientBudgetScalesWithRepeats(t *testing.T) {
	cfg := Config{
		Budget:             3*7*4 - 1,
		TemperatureRepeats: 3,
		RangeRepeats:       7,
		StartTemperature:   5,
		EndTemperature:     0.5,
	}
	a, err := New(cfg)
	require.NoError(t, err)

	_, err = a.Evolve(seeded(t, sphereProblem(t, 4, -1, 1), 0.5, 0.5, 0.5, 0.5), rand.New(rand.NewSource(3)))
	assert.ErrorIs(t, err, optimization.ErrInsufficientBudget)
}

func TestEvolveInsufficientBudgetHugeRepeats(t *testing.T) {
	cfg := Config{
		Budget:             100,
		TemperatureRepeats: 1<<62 + 1,
		RangeRepeats:       4,
		StartTemperature:   5,
		EndTemperature:     0.5,
	}
	a, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, math.MaxInt, a.Config().EvaluationsPerIteration(1))
	assert.Equal(t, 0, a.Config().OuterIterations(1))

	_, err = a.Evolve(seeded(t, sphereProblem(t, 1, -1, 1), 0.5), rand.New(rand.NewSource(3)))
	assert.ErrorIs(t, err, optimization.ErrInsufficientBudget)
}

func TestOuterIterations(t *testing.T) {
	cfg := Config{Budget: 1000, TemperatureRepeats: 3, RangeRepeats: 7}
	for dim := 1; dim <= 12; dim++ {
		assert.Equal(t, 1000/(3*7*dim), cfg.OuterIterations(dim), "dim %d", dim)
		assert.Equal(t, 3*7*dim, cfg.EvaluationsPerIteration(dim))
	}
	assert.Equal(t, 0, cfg.OuterIterations(0))
	assert.Equal(t, 0, cfg.EvaluationsPerIteration(0))
}

func TestEvolveDimensionMismatch(t *testing.T) {
	a, err := NewDefault(10000, 1, 0.01)
	require.NoError(t, err)

	p := sphereProblem(t, 2, -5, 5)
	pop := optimization.NewPopulation(p)
	pop.Append(optimization.NewIndividual([]float64{1, 2, 3}, nil, 14))

	_, err = a.Evolve(pop, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)

	optErr, ok := optimization.IsOptimizationError(err)
	require.True(t, ok)
	assert.Equal(t, component, optErr.Component)
	assert.Equal(t, "Evolve", optErr.Op)
}

func TestEvolveNeverWorseAndInBounds(t *testing.T) {
	problems := []struct {
		name string
		dim  int
	}{
		{name: "sphere", dim: 3},
		{name: "rastrigin", dim: 4},
		{name: "rosenbrock", dim: 2},
		{name: "dejong", dim: 5},
		{name: "schwefel", dim: 3},
	}

	for _, pp := range problems {
		t.Run(pp.name, func(t *testing.T) {
			p, err := problem.Lookup(pp.name, pp.dim)
			require.NoError(t, err)

			a, err := New(Config{
				Budget:           pp.dim * 20 * 30,
				StartTemperature: 10,
				EndTemperature:   0.01,
			})
			require.NoError(t, err)

			for s := int64(0); s < 10; s++ {
				rng := rand.New(rand.NewSource(s))
				pop := optimization.NewPopulation(p)
				require.NoError(t, pop.Initialize(1, rng))
				seed := pop.At(0)

				out, err := a.Evolve(pop, rng)
				require.NoError(t, err)
				require.Equal(t, 1, out.Len())

				best := out.At(0)
				assert.LessOrEqual(t, best.Fitness(), seed.Fitness())
				assert.True(t, optimization.Contains(p, best.DecisionVector()), "result %v outside bounds", best.DecisionVector())

				// The reported fitness must match the returned point.
				f, err := p.Evaluate(best.DecisionVector())
				require.NoError(t, err)
				assert.Equal(t, f, best.Fitness())
			}
		})
	}
}

func TestEvolveDeterministic(t *testing.T) {
	a, err := NewDefault(20*3*40, 5, 0.001)
	require.NoError(t, err)

	p, err := problem.Lookup("rastrigin", 3)
	require.NoError(t, err)
	pop := seeded(t, p, 3.1, -2.2, 4.0)

	first, err := a.Evolve(pop, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	second, err := a.Evolve(pop, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	assert.Equal(t, first.At(0).DecisionVector(), second.At(0).DecisionVector())
	assert.Equal(t, math.Float64bits(first.At(0).Fitness()), math.Float64bits(second.At(0).Fitness()))
}

func TestEvolveSphereScenario(t *testing.T) {
	a, err := NewDefault(20*2*50, 1.0, 0.01)
	require.NoError(t, err)
	require.GreaterOrEqual(t, a.Config().OuterIterations(2), 20)

	p := sphereProblem(t, 2, -5, 5)
	pop := seeded(t, p, 4.0, 4.0)
	require.Equal(t, 32.0, pop.At(0).Fitness())

	origin := []float64{0, 0}
	seedDistance := floats.Distance(pop.At(0).DecisionVector(), origin, 2)

	const runs = 50
	improved := 0
	for s := int64(0); s < runs; s++ {
		out, err := a.Evolve(pop, rand.New(rand.NewSource(s)))
		require.NoError(t, err)

		best := out.At(0)
		if best.Fitness() < 32.0 && floats.Distance(best.DecisionVector(), origin, 2) < seedDistance {
			improved++
		}
	}
	assert.GreaterOrEqual(t, improved, runs-1, "expected nearly every run to improve on the seed")
}

func TestEvolveDoesNotMutateInput(t *testing.T) {
	a, err := NewDefault(20*2*10, 1.0, 0.01)
	require.NoError(t, err)

	p := sphereProblem(t, 2, -5, 5)
	pop := optimization.NewPopulation(p)
	seed := optimization.NewIndividual([]float64{3, -3}, []float64{0.5, -0.5}, 18)
	pop.Append(seed)

	out, err := a.Evolve(pop, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	assert.Equal(t, 1, pop.Len())
	assert.Same(t, seed, pop.At(0))
	assert.Equal(t, []float64{3, -3}, seed.DecisionVector())
	assert.Equal(t, 18.0, seed.Fitness())
	assert.NotSame(t, pop, out)

	// Velocity is carried through untouched.
	assert.Equal(t, []float64{0.5, -0.5}, out.At(0).Velocity())
}

func TestEvolveReturnsSeedWithoutImprovement(t *testing.T) {
	a, err := NewDefault(20*2*5, 1.0, 0.01)
	require.NoError(t, err)

	p, err := optimization.NewBoxProblem("flat", []float64{-1, -1}, []float64{1, 1}, func([]float64) (float64, error) {
		return 7, nil
	})
	require.NoError(t, err)
	pop := seeded(t, p, 0.2, 0.3)

	out, err := a.Evolve(pop, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Same(t, pop.At(0), out.At(0))
}

func TestEvolveObjectiveErrorPropagates(t *testing.T) {
	errBoom := errors.New("objective exploded")
	calls := 0

	p, err := optimization.NewBoxProblem("fragile", []float64{-1}, []float64{1}, func(x []float64) (float64, error) {
		calls++
		if calls > 3 {
			return 0, errBoom
		}
		return x[0] * x[0], nil
	})
	require.NoError(t, err)
	pop := seeded(t, p, 0.5)

	a, err := NewDefault(1000, 1, 0.01)
	require.NoError(t, err)

	out, err := a.Evolve(pop, rand.New(rand.NewSource(2)))
	assert.Nil(t, out)
	assert.Equal(t, errBoom, err)
}

func TestEvolveEvaluationBound(t *testing.T) {
	cfg := Config{
		Budget:             2*5*3*12 + 7,
		TemperatureRepeats: 2,
		RangeRepeats:       5,
		StartTemperature:   3,
		EndTemperature:     0.03,
	}
	a, err := New(cfg)
	require.NoError(t, err)

	counted := problem.Counting(sphereProblem(t, 3, -2, 2))
	pop := seeded(t, counted, 1, 1, 1)
	counted.Reset()

	_, err = a.Evolve(pop, rand.New(rand.NewSource(8)))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.OuterIterations(3))
	assert.LessOrEqual(t, counted.Evaluations(), int64(12*2*5*3))
	assert.Greater(t, counted.Evaluations(), int64(0))
}

func TestEvolveProgress(t *testing.T) {
	var progress []Progress
	a, err := New(Config{
		Budget:             4 * 10 * 2 * 25,
		TemperatureRepeats: 4,
		RangeRepeats:       10,
		StartTemperature:   2,
		EndTemperature:     0.002,
		InitialStep:        0.5,
	}, WithObserver(func(p Progress) { progress = append(progress, p) }))
	require.NoError(t, err)

	_, err = a.Evolve(seeded(t, sphereProblem(t, 2, -5, 5), 2, -2), rand.New(rand.NewSource(21)))
	require.NoError(t, err)
	require.Len(t, progress, 25)

	prevTemp := 2.0
	prevEvals := 0
	for i, p := range progress {
		assert.Equal(t, i, p.Iteration)
		assert.Equal(t, 25, p.Iterations)
		assert.Less(t, p.Temperature, prevTemp, "temperature must decrease every outer iteration")
		assert.GreaterOrEqual(t, p.Evaluations, prevEvals)
		assert.LessOrEqual(t, p.MeanStep, 0.5)
		assert.Greater(t, p.MeanStep, 0.0)
		prevTemp = p.Temperature
		prevEvals = p.Evaluations
	}
	assert.InEpsilon(t, 0.002, progress[len(progress)-1].Temperature, 1e-9)
}

func TestEvolveObserverDoesNotChangeResult(t *testing.T) {
	cfg := DefaultConfig(20*2*15, 1, 0.01)
	plain, err := New(cfg)
	require.NoError(t, err)
	observed, err := New(cfg, WithObserver(func(Progress) {}))
	require.NoError(t, err)

	pop := seeded(t, sphereProblem(t, 2, -5, 5), -3, 4)
	a, err := plain.Evolve(pop, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	b, err := observed.Evolve(pop, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	assert.Equal(t, a.At(0).DecisionVector(), b.At(0).DecisionVector())
	assert.Equal(t, a.At(0).Fitness(), b.At(0).Fitness())
}

func TestEvolveScriptedStream(t *testing.T) {
	// One dimension, one sweep, one cooling step: the stream is fully accounted for.
	cfg := Config{Budget: 1, TemperatureRepeats: 1, RangeRepeats: 1, StartTemperature: 100, EndTemperature: 1}

	t.Run("improving move is accepted", func(t *testing.T) {
		var last Progress
		a, err := New(cfg, WithObserver(func(p Progress) { last = p }))
		require.NoError(t, err)

		// start index, then r = 2*0.25-1 = -0.5 so trial = 5 - 0.5*1*10 = 0
		src := &scriptedSource{t: t, draws: []float64{0.7, 0.25}}
		out, err := a.Evolve(seeded(t, sphereProblem(t, 1, 0, 10), 5), src)
		require.NoError(t, err)

		assert.Equal(t, 2, src.next)
		assert.Equal(t, []float64{0}, out.At(0).DecisionVector())
		assert.Equal(t, 0.0, out.At(0).Fitness())
		assert.Equal(t, 1, last.Evaluations)
		// Full acceptance triples the step, which is then capped at the initial step.
		assert.Equal(t, 1.0, last.MeanStep)
	})

	t.Run("infeasible move is discarded without evaluation", func(t *testing.T) {
		var last Progress
		a, err := New(cfg, WithObserver(func(p Progress) { last = p }))
		require.NoError(t, err)

		// r = 0.8, trial = 5 + 8 = 13 > 10
		src := &scriptedSource{t: t, draws: []float64{0.1, 0.9}}
		pop := seeded(t, sphereProblem(t, 1, 0, 10), 5)
		out, err := a.Evolve(pop, src)
		require.NoError(t, err)

		assert.Equal(t, 2, src.next)
		assert.Same(t, pop.At(0), out.At(0))
		assert.Equal(t, 0, last.Evaluations)
		assert.InDelta(t, 1.0/3.0, last.MeanStep, 1e-15)
	})

	t.Run("worse move accepted by the Boltzmann test", func(t *testing.T) {
		var last Progress
		a, err := New(cfg, WithObserver(func(p Progress) { last = p }))
		require.NoError(t, err)

		// r = 0.2, trial = 3, f = 9; p = exp(-8/100) ~ 0.923 > 0.5
		src := &scriptedSource{t: t, draws: []float64{0.0, 0.6, 0.5}}
		pop := seeded(t, sphereProblem(t, 1, 0, 10), 1)
		out, err := a.Evolve(pop, src)
		require.NoError(t, err)

		assert.Equal(t, 3, src.next)
		assert.InDelta(t, 9.0, last.Fitness, 1e-12)
		// The accepted point is worse than the seed, so the seed is returned.
		assert.Same(t, pop.At(0), out.At(0))
	})

	t.Run("worse move rejected by the Boltzmann test", func(t *testing.T) {
		var last Progress
		a, err := New(cfg, WithObserver(func(p Progress) { last = p }))
		require.NoError(t, err)

		src := &scriptedSource{t: t, draws: []float64{0.0, 0.6, 0.95}}
		out, err := a.Evolve(seeded(t, sphereProblem(t, 1, 0, 10), 1), src)
		require.NoError(t, err)

		assert.Equal(t, 3, src.next)
		assert.Equal(t, 1.0, last.Fitness)
		assert.Equal(t, 1, last.Evaluations)
		assert.Equal(t, []float64{1}, out.At(0).DecisionVector())
	})
}

func TestEvolveConcurrentRunsShareConfig(t *testing.T) {
	a, err := NewDefault(20*3*20, 2, 0.01)
	require.NoError(t, err)

	p, err := problem.Lookup("ackley", 3)
	require.NoError(t, err)
	pop := seeded(t, p, 10, -10, 5)

	const workers = 8
	want := make([]*optimization.Individual, workers)
	for i := range want {
		out, err := a.Evolve(pop, rand.New(rand.NewSource(int64(i))))
		require.NoError(t, err)
		want[i] = out.At(0)
	}

	got := make([]*optimization.Individual, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := a.Evolve(pop, rand.New(rand.NewSource(int64(i))))
			errs[i] = err
			if err == nil {
				got[i] = out.At(0)
			}
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		assert.Equal(t, want[i].DecisionVector(), got[i].DecisionVector())
		assert.Equal(t, want[i].Fitness(), got[i].Fitness())
	}
}
