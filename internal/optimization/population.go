package optimization

import (
	"gonum.org/v1/gonum/floats"
)

// Individual is a candidate solution. It is immutable by convention: the
// constructor copies its inputs and the accessors return copies.
type Individual struct {
	decision []float64
	velocity []float64
	fitness  float64
}

// NewIndividual creates an individual holding copies of x and v.
func NewIndividual(x, v []float64, fitness float64) *Individual {
	return &Individual{
		decision: append([]float64(nil), x...),
		velocity: append([]float64(nil), v...),
		fitness:  fitness,
	}
}

// DecisionVector returns a copy of the decision vector
func (ind *Individual) DecisionVector() []float64 {
	return append([]float64(nil), ind.decision...)
}

// Velocity returns a copy of the velocity vector
func (ind *Individual) Velocity() []float64 {
	return append([]float64(nil), ind.velocity...)
}

// Fitness returns the objective value
func (ind *Individual) Fitness() float64 {
	return ind.fitness
}

// Dimension returns the length of the decision vector
func (ind *Individual) Dimension() int {
	return len(ind.decision)
}

// Solution returns the individual as a Solution value.
func (ind *Individual) Solution() *Solution {
	return &Solution{
		Parameters: ind.DecisionVector(),
		Value:      ind.fitness,
	}
}

// Population is an ordered set of individuals bound to one problem.
type Population struct {
	problem     Problem
	individuals []*Individual
}

// NewPopulation creates an empty population for problem
func NewPopulation(problem Problem) *Population {
	return &Population{problem: problem}
}

// Problem returns the problem the population is bound to
func (p *Population) Problem() Problem {
	return p.problem
}

// Len returns the number of individuals
func (p *Population) Len() int {
	return len(p.individuals)
}

// At returns the individual at index i. It panics if i is out of range.
func (p *Population) At(i int) *Individual {
	return p.individuals[i]
}

// Append adds ind to the end of the population.
func (p *Population) Append(ind *Individual) {
	p.individuals = append(p.individuals, ind)
}

// Best returns the individual with the lowest fitness, or nil for an empty population.
// Ties resolve to the lowest index.
func (p *Population) Best() *Individual {
	if len(p.individuals) == 0 {
		return nil
	}
	fitness := make([]float64, len(p.individuals))
	for i, ind := range p.individuals {
		fitness[i] = ind.fitness
	}
	return p.individuals[floats.MinIdx(fitness)]
}

// Initialize appends n individuals sampled uniformly inside the problem box and
// evaluated with the problem objective. Velocities are zero vectors.
func (p *Population) Initialize(n int, rng RandomSource) error {
	lower, upper := p.problem.LowerBounds(), p.problem.UpperBounds()
	dim := len(lower)

	for k := 0; k < n; k++ {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
		}
		f, err := p.problem.Evaluate(x)
		if err != nil {
			return err
		}
		p.individuals = append(p.individuals, &Individual{
			decision: x,
			velocity: make([]float64, dim),
			fitness:  f,
		})
	}
	return nil
}

// SeedPopulation returns a one-individual population starting at x, evaluated on problem.
func SeedPopulation(problem Problem, x []float64) (*Population, error) {
	f, err := problem.Evaluate(x)
	if err != nil {
		return nil, err
	}
	pop := NewPopulation(problem)
	pop.Append(NewIndividual(x, make([]float64, len(x)), f))
	return pop, nil
}
