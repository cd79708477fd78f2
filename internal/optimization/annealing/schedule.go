package annealing

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Acceptance-ratio band the step controller steers towards. Outside the band
// the step grows or shrinks by at most a factor of three per adjustment.
const (
	highAcceptance = 0.6
	lowAcceptance  = 0.4

	// scale normalises the distance from the band edge: 1-highAcceptance == lowAcceptance-0.
	scale = 0.4
)

// CoolingFactor returns the geometric ratio that takes the temperature from
// start to end in exactly steps multiplications.
func CoolingFactor(start, end float64, steps int) float64 {
	return math.Pow(end/start, 1/float64(steps))
}

// adaptStep rescales each step from the acceptance ratio observed over the last
// rangeRepeats sweeps, resets the counters and caps every step at maxStep.
func adaptStep(step []float64, acceptCount []int, rangeRepeats int, maxStep float64) {
	for i := range step {
		ratio := float64(acceptCount[i]) / float64(rangeRepeats)
		acceptCount[i] = 0

		if ratio > highAcceptance {
			step[i] *= 1 + 2*(ratio-highAcceptance)/scale
		} else if ratio < lowAcceptance {
			step[i] /= 1 + 2*((lowAcceptance-ratio)/scale)
		}

		if step[i] > maxStep {
			step[i] = maxStep
		}
	}
}

func mean(x []float64) float64 {
	return stat.Mean(x, nil)
}
