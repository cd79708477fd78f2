package problem

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/annealer/internal/optimization"
)

func TestBenchmarkMinima(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{name: "sphere", x: []float64{0, 0, 0}, want: 0},
		{name: "dejong", x: []float64{0, 0}, want: 0},
		{name: "rastrigin", x: []float64{0, 0, 0, 0}, want: 0},
		{name: "rosenbrock", x: []float64{1, 1, 1}, want: 0},
		{name: "ackley", x: []float64{0, 0}, want: 0},
		{name: "schwefel", x: []float64{420.9687, 420.9687}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name, len(tt.x))
			require.NoError(t, err)

			got, err := p.Evaluate(tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestBenchmarkValues(t *testing.T) {
	assert.Equal(t, 14.0, Sphere([]float64{1, 2, 3}))
	assert.InDelta(t, math.Sin(1)+4*math.Sin(2), DeJong([]float64{1, 2}), 1e-12)
	assert.InDelta(t, 2.0, Rastrigin([]float64{1, 1}), 1e-12)
	assert.Equal(t, 101.0, Rosenbrock([]float64{0, 1}))
	assert.Equal(t, 100.0, Rosenbrock([]float64{1, 0}))
}

func TestLookup(t *testing.T) {
	p, err := Lookup("sphere", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Dimension())
	assert.Equal(t, "sphere-4", p.Name())
	assert.Equal(t, []float64{-5.12, -5.12, -5.12, -5.12}, p.LowerBounds())
	assert.Equal(t, []float64{5.12, 5.12, 5.12, 5.12}, p.UpperBounds())

	_, err = Lookup("nope", 2)
	assert.ErrorIs(t, err, optimization.ErrInvalidProblem)

	_, err = Lookup("rosenbrock", 1)
	assert.ErrorIs(t, err, optimization.ErrInvalidProblem)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{"ackley", "dejong", "rastrigin", "rosenbrock", "schwefel", "sphere"}, names)
	for _, name := range names {
		b, ok := Get(name)
		require.True(t, ok)
		assert.Equal(t, name, b.Name)
		assert.Less(t, b.Lower, b.Upper)
	}
}

func TestCounting(t *testing.T) {
	p, err := Lookup("sphere", 2)
	require.NoError(t, err)

	c := Counting(p)
	assert.Equal(t, 2, c.Dimension())

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				_, err := c.Evaluate([]float64{rng.Float64(), rng.Float64()})
				assert.NoError(t, err)
			}
		}(int64(w))
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), c.Evaluations())

	c.Reset()
	assert.Equal(t, int64(0), c.Evaluations())

	// Failed evaluations are counted too.
	_, err = c.Evaluate([]float64{1})
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)
	assert.Equal(t, int64(1), c.Evaluations())
}
