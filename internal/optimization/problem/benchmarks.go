// Package problem provides standard box-constrained benchmark problems and
// problem decorators.
package problem

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/annealer/internal/optimization"
)

// Benchmark describes a scalable test function with uniform bounds.
type Benchmark struct {
	Name      string
	Lower     float64
	Upper     float64
	Objective func(x []float64) float64
	// MinDimension is the smallest dimension the function is defined for
	MinDimension int
}

var benchmarks = map[string]Benchmark{
	"sphere": {
		Name: "sphere", Lower: -5.12, Upper: 5.12, MinDimension: 1,
		Objective: Sphere,
	},
	"dejong": {
		Name: "dejong", Lower: -5.12, Upper: 5.12, MinDimension: 1,
		Objective: DeJong,
	},
	"rastrigin": {
		Name: "rastrigin", Lower: -5.12, Upper: 5.12, MinDimension: 1,
		Objective: Rastrigin,
	},
	"rosenbrock": {
		Name: "rosenbrock", Lower: -5, Upper: 10, MinDimension: 2,
		Objective: Rosenbrock,
	},
	"ackley": {
		Name: "ackley", Lower: -32.768, Upper: 32.768, MinDimension: 1,
		Objective: Ackley,
	},
	"schwefel": {
		Name: "schwefel", Lower: -500, Upper: 500, MinDimension: 1,
		Objective: Schwefel,
	},
}

// Names returns the registered benchmark names in sorted order
func Names() []string {
	names := make([]string, 0, len(benchmarks))
	for name := range benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the benchmark registered under name
func Get(name string) (Benchmark, bool) {
	b, ok := benchmarks[name]
	return b, ok
}

// Lookup builds the named benchmark problem in dim dimensions.
func Lookup(name string, dim int) (*optimization.BoxProblem, error) {
	b, ok := benchmarks[name]
	if !ok {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidProblem, "unknown problem %q", name).
			WithOperation("Lookup").WithComponent("problem")
	}
	return b.Problem(dim)
}

// Problem instantiates the benchmark in dim dimensions.
func (b Benchmark) Problem(dim int) (*optimization.BoxProblem, error) {
	if dim < b.MinDimension {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidProblem,
			"%s needs at least %d dimensions, got %d", b.Name, b.MinDimension, dim).
			WithOperation("Problem").WithComponent("problem")
	}

	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range lower {
		lower[i], upper[i] = b.Lower, b.Upper
	}

	objective := b.Objective
	return optimization.NewBoxProblem(fmt.Sprintf("%s-%d", b.Name, dim), lower, upper, func(x []float64) (float64, error) {
		return objective(x), nil
	})
}

// Sphere computes sum(x_i^2)
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// DeJong computes sum(sin(x_i) * x_i^2)
func DeJong(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += math.Sin(v) * v * v
	}
	return sum
}

// Rastrigin computes 10n + sum(x_i^2 - 10cos(2 pi x_i))
func Rastrigin(x []float64) float64 {
	const a = 10.0
	sum := a * float64(len(x))
	for _, v := range x {
		sum += v*v - a*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock computes sum(100(x_{i+1} - x_i^2)^2 + (1 - x_i)^2)
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		d := x[i+1] - x[i]*x[i]
		e := 1 - x[i]
		sum += 100*d*d + e*e
	}
	return sum
}

// Ackley computes the Ackley function with a=20, b=0.2, c=2pi
func Ackley(x []float64) float64 {
	n := float64(len(x))
	sumSq := floats.Dot(x, x)
	sumCos := 0.0
	for _, v := range x {
		sumCos += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20 + math.E
}

// Schwefel computes 418.9829n - sum(x_i sin(sqrt|x_i|))
func Schwefel(x []float64) float64 {
	sum := 418.9828872724338 * float64(len(x))
	for _, v := range x {
		sum -= v * math.Sin(math.Sqrt(math.Abs(v)))
	}
	return sum
}
