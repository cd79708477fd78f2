package annealing

import (
	"math"

	"github.com/copyleftdev/annealer/internal/optimization"
)

const (
	// DefaultTemperatureRepeats is the number of step adaptations per temperature.
	DefaultTemperatureRepeats = 1
	// DefaultRangeRepeats is the number of full coordinate sweeps between step adaptations.
	DefaultRangeRepeats = 20
	// DefaultInitialStep is the starting step as a fraction of each dimension's range.
	DefaultInitialStep = 1.0
)

// Config holds the search parameters. A Config is never modified by the search
// and may be shared by any number of concurrent runs.
type Config struct {
	// Budget is the total number of objective evaluations the schedule is sized for
	Budget int

	// TemperatureRepeats is the number of step adaptations performed at each temperature
	TemperatureRepeats int

	// RangeRepeats is the number of coordinate sweeps between two step adaptations
	RangeRepeats int

	// StartTemperature is the initial temperature
	StartTemperature float64

	// EndTemperature is the temperature reached after the last cooling step
	EndTemperature float64

	// InitialStep is the initial and maximum step, as a fraction of (upper - lower)
	InitialStep float64
}

// DefaultConfig returns a configuration with the default repeat counts and step.
func DefaultConfig(budget int, startTemperature, endTemperature float64) Config {
	return Config{
		Budget:             budget,
		TemperatureRepeats: DefaultTemperatureRepeats,
		RangeRepeats:       DefaultRangeRepeats,
		StartTemperature:   startTemperature,
		EndTemperature:     endTemperature,
		InitialStep:        DefaultInitialStep,
	}
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.TemperatureRepeats == 0 {
		c.TemperatureRepeats = DefaultTemperatureRepeats
	}
	if c.RangeRepeats == 0 {
		c.RangeRepeats = DefaultRangeRepeats
	}
	if c.InitialStep == 0 {
		c.InitialStep = DefaultInitialStep
	}
	return c
}

// Validate checks the configuration and returns an ErrInvalidConfiguration error
// describing the first problem found.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return optimization.WrapErrorf(optimization.ErrInvalidConfiguration, format, args...).
			WithOperation("Config.Validate").WithComponent(component)
	}

	if c.Budget < 0 {
		return invalid("evaluation budget must be non-negative, got %d", c.Budget)
	}
	if !(c.StartTemperature > 0) || !(c.EndTemperature > 0) {
		return invalid("temperatures must be positive, got start=%v end=%v", c.StartTemperature, c.EndTemperature)
	}
	if !(c.StartTemperature > c.EndTemperature) {
		return invalid("start temperature %v must exceed end temperature %v", c.StartTemperature, c.EndTemperature)
	}
	if c.TemperatureRepeats < 1 {
		return invalid("temperature repeats must be at least 1, got %d", c.TemperatureRepeats)
	}
	if c.RangeRepeats < 1 {
		return invalid("range repeats must be at least 1, got %d", c.RangeRepeats)
	}
	if !(c.InitialStep > 0) {
		return invalid("initial step must be positive, got %v", c.InitialStep)
	}
	return nil
}

// EvaluationsPerIteration returns the worst-case number of objective evaluations in
// one outer iteration for a problem of the given dimension, saturating at
// math.MaxInt.
func (c Config) EvaluationsPerIteration(dim int) int {
	if c.TemperatureRepeats <= 0 || c.RangeRepeats <= 0 || dim <= 0 {
		return 0
	}
	per := c.TemperatureRepeats
	for _, f := range []int{c.RangeRepeats, dim} {
		if per > math.MaxInt/f {
			return math.MaxInt
		}
		per *= f
	}
	return per
}

// OuterIterations returns the number of cooling steps the budget supports for a
// problem of the given dimension. Dividing one factor at a time gives the same
// floor as dividing by the product and cannot overflow.
func (c Config) OuterIterations(dim int) int {
	if c.Budget <= 0 || c.TemperatureRepeats <= 0 || c.RangeRepeats <= 0 || dim <= 0 {
		return 0
	}
	return c.Budget / dim / c.RangeRepeats / c.TemperatureRepeats
}
