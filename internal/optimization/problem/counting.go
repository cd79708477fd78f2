package problem

import (
	"sync/atomic"

	"github.com/copyleftdev/annealer/internal/optimization"
)

// Counter decorates a Problem and counts objective evaluations.
// It is safe for concurrent use if the wrapped problem is.
type Counter struct {
	optimization.Problem
	evaluations atomic.Int64
}

// Counting wraps p in a Counter
func Counting(p optimization.Problem) *Counter {
	return &Counter{Problem: p}
}

// Evaluate forwards to the wrapped problem and increments the counter,
// whether or not the evaluation succeeds.
func (c *Counter) Evaluate(x []float64) (float64, error) {
	c.evaluations.Add(1)
	return c.Problem.Evaluate(x)
}

// Evaluations returns the number of evaluations so far
func (c *Counter) Evaluations() int64 {
	return c.evaluations.Load()
}

// Reset sets the counter back to zero
func (c *Counter) Reset() {
	c.evaluations.Store(0)
}
