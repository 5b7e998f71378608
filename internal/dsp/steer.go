package dsp

import (
	"math"
	"math/cmplx"
	"math/rand"
)

// RandomWeights fills dst with unit-magnitude weights whose phases are
// drawn independently and uniformly from [0, 2π). Every channel gets a
// fresh draw each call, so repeated cycles sample the array response
// without any known geometry.
func RandomWeights(rng *rand.Rand, dst []complex64) {
	for i := range dst {
		phase := rng.Float64() * 2 * math.Pi
		dst[i] = complex64(cmplx.Exp(complex(0, phase)))
	}
}

// SteerPhase returns the steering phase (radians) for array element k at
// the given spacing (in wavelengths) and steering angle theta (radians
// off boresight).
func SteerPhase(spacingWavelength, theta float64, k int) float64 {
	return 2 * math.Pi * spacingWavelength * float64(k) * math.Sin(theta)
}

// SteerWeights fills dst with uniform-linear-array weights pointing the
// beam at theta. Element 0 is the phase reference.
func SteerWeights(dst []complex64, spacingWavelength, theta float64) {
	for k := range dst {
		dst[k] = complex64(cmplx.Exp(complex(0, SteerPhase(spacingWavelength, theta, k))))
	}
}

// PhaseToTheta inverts SteerPhase for adjacent elements: given the
// per-element phase increment it returns the steering angle, clamping the
// argument into the arcsine domain.
func PhaseToTheta(phase, spacingWavelength float64) float64 {
	if spacingWavelength == 0 {
		return 0
	}
	arg := phase / (2 * math.Pi * spacingWavelength)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	return math.Asin(arg)
}

// Sweep maps a monotonically increasing cycle counter onto a repeating
// scan of steering angles. The mapping is pure, so concurrent workers
// processing different cycles agree on the angle for each cycle.
type Sweep struct {
	Start float64 // radians
	End   float64 // radians
	Steps int
}

// NewSweep builds a sweep over [start, end] with the given number of
// steps. Fewer than two steps pins the sweep to start.
func NewSweep(start, end float64, steps int) Sweep {
	if steps < 1 {
		steps = 1
	}
	return Sweep{Start: start, End: end, Steps: steps}
}

// Theta returns the steering angle for the given cycle index.
func (s Sweep) Theta(cycle uint64) float64 {
	if s.Steps <= 1 {
		return s.Start
	}
	step := cycle % uint64(s.Steps)
	return s.Start + (s.End-s.Start)*float64(step)/float64(s.Steps-1)
}
