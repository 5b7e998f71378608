package dsp

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
)

func TestRandomWeightsUnitMagnitude(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dst := make([]complex64, 8)
	for cycle := 0; cycle < 50; cycle++ {
		RandomWeights(rng, dst)
		for k, w := range dst {
			mag := cmplx.Abs(complex128(w))
			if math.Abs(mag-1) > 1e-6 {
				t.Fatalf("cycle %d channel %d: |w|=%.9f", cycle, k, mag)
			}
		}
	}
}

func TestRandomWeightsIndependentPhases(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dst := make([]complex64, 8)
	RandomWeights(rng, dst)

	equal := 0
	for k := 1; k < len(dst); k++ {
		if dst[k] == dst[0] {
			equal++
		}
	}
	if equal == len(dst)-1 {
		t.Fatalf("all channels drew the same phase")
	}
}

func TestRandomWeightsDeterministicPerSeed(t *testing.T) {
	a := make([]complex64, 4)
	b := make([]complex64, 4)
	RandomWeights(rand.New(rand.NewSource(42)), a)
	RandomWeights(rand.New(rand.NewSource(42)), b)
	for k := range a {
		if a[k] != b[k] {
			t.Fatalf("channel %d: same seed produced %v and %v", k, a[k], b[k])
		}
	}
}

func TestSteerWeightsPhase(t *testing.T) {
	const spacing = 0.5
	const theta = 0.35
	dst := make([]complex64, 6)
	SteerWeights(dst, spacing, theta)

	for k, w := range dst {
		want := cmplx.Exp(complex(0, 2*math.Pi*spacing*float64(k)*math.Sin(theta)))
		if cmplx.Abs(complex128(w)-want) > 1e-6 {
			t.Fatalf("channel %d: weight %v, want %v", k, w, want)
		}
	}
	if dst[0] != 1 {
		t.Fatalf("element 0 must be the phase reference, got %v", dst[0])
	}
}

func TestPhaseToThetaRoundTrip(t *testing.T) {
	const spacing = 0.5
	for _, theta := range []float64{-1.2, -0.35, 0, 0.35, 1.2} {
		phase := SteerPhase(spacing, theta, 1)
		if got := PhaseToTheta(phase, spacing); math.Abs(got-theta) > 1e-9 {
			t.Fatalf("theta %.3f round-tripped to %.3f", theta, got)
		}
	}
}

// TestSteeredBeamResponse injects a plane wave from a known angle and
// checks that steering onto it sums coherently while steering onto an
// array null attenuates it.
func TestSteeredBeamResponse(t *testing.T) {
	const (
		spacing  = 0.5
		channels = 4
		samples  = 256
	)

	tests := []struct {
		name        string
		sourceTheta float64
		steerTheta  float64
		minMag      float64
		maxMag      float64
	}{
		{"on_target_boresight", 0, 0, 3.9, 4.1},
		{"on_target_offset", 0.35, 0.35, 3.9, 4.1},
		// sin(steer) - sin(source) = 0.5 puts the 4-element array in a null.
		{"null_boresight", 0, math.Asin(0.5), 0, 0.4},
		{"null_offset", 0.35, math.Asin(math.Sin(0.35) + 0.5), 0, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chans := make([][]complex64, channels)
			for k := range chans {
				chans[k] = make([]complex64, samples)
				arrival := cmplx.Exp(complex(0, -SteerPhase(spacing, tt.sourceTheta, k)))
				for i := 0; i < samples; i++ {
					tone := cmplx.Exp(complex(0, 2*math.Pi*0.1*float64(i)))
					chans[k][i] = complex64(tone * arrival)
				}
			}

			weights := make([]complex64, channels)
			SteerWeights(weights, spacing, tt.steerTheta)

			composite := make([]complex64, samples)
			mags := make([]float64, samples)
			WeightedSum(composite, weights, chans)
			Magnitudes(mags, composite)

			var mean float64
			for _, m := range mags {
				mean += m
			}
			mean /= float64(samples)

			if mean < tt.minMag || mean > tt.maxMag {
				t.Fatalf("mean magnitude %.3f outside [%.2f, %.2f]", mean, tt.minMag, tt.maxMag)
			}
		})
	}
}

func TestSweepTheta(t *testing.T) {
	s := NewSweep(-math.Pi/2, math.Pi/2, 5)

	if got := s.Theta(0); math.Abs(got+math.Pi/2) > 1e-12 {
		t.Fatalf("step 0: got %.6f", got)
	}
	if got := s.Theta(2); math.Abs(got) > 1e-12 {
		t.Fatalf("midpoint: got %.6f", got)
	}
	if got := s.Theta(4); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("last step: got %.6f", got)
	}
	if got := s.Theta(5); math.Abs(got+math.Pi/2) > 1e-12 {
		t.Fatalf("wrap: got %.6f", got)
	}

	single := NewSweep(0.1, 0.9, 1)
	if got := single.Theta(3); got != 0.1 {
		t.Fatalf("single-step sweep: got %.6f", got)
	}
}
