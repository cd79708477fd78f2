package optimization

// Algorithm is a search strategy that evolves a population into an improved one.
// Implementations must not mutate the input population or its individuals.
type Algorithm interface {
	// Name identifies the strategy in logs, metrics and API payloads
	Name() string

	// Evolve runs one search over pop and returns a freshly constructed population.
	// rng is owned by the caller for the duration of the call and must not be
	// shared with concurrently running searches.
	Evolve(pop *Population, rng RandomSource) (*Population, error)
}

// RandomSource yields uniformly distributed reals in [0, 1).
// *math/rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// ObjectiveFunction defines the function to be minimized
type ObjectiveFunction func([]float64) (float64, error)

// Problem is a box-constrained single-objective minimization problem.
type Problem interface {
	// Dimension returns the number of decision variables
	Dimension() int

	// LowerBounds returns the per-dimension lower bounds
	LowerBounds() []float64

	// UpperBounds returns the per-dimension upper bounds
	UpperBounds() []float64

	// Evaluate computes the objective value at x
	Evaluate(x []float64) (float64, error)
}

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64 `json:"parameters"`
	Value      float64   `json:"value"`
}
