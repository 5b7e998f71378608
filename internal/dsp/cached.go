package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CachedDSP holds a reusable FFT plan and analysis window for one
// snapshot length. Inputs of any other length take the plain path.
type CachedDSP struct {
	mu     sync.Mutex
	window []float64
	sum    float64
	size   int
	fft    *fourier.CmplxFFT
}

// NewCachedDSP builds the plan and window for the given length.
func NewCachedDSP(size int) *CachedDSP {
	window := Hamming(size)
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return &CachedDSP{
		window: window,
		sum:    sum,
		size:   size,
		fft:    fourier.NewCmplxFFT(size),
	}
}

// FFTAndDBFS windows and transforms the samples, returning the centered
// spectrum and its dBFS magnitudes. The plan is shared under a lock, so
// concurrent callers serialize on the transform.
func (c *CachedDSP) FFTAndDBFS(samples []complex64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	if len(samples) != c.size {
		return FFTAndDBFS(samples)
	}

	windowed := ApplyWindow(samples, c.window)

	c.mu.Lock()
	fft := c.fft.Coefficients(nil, windowed)
	c.mu.Unlock()

	for i := range fft {
		fft[i] /= complex(c.sum, 0)
	}

	shifted := FFTShift(fft)
	dbfs := make([]float64, len(shifted))
	for i, v := range shifted {
		mag := cmplx.Abs(v)
		if mag == 0 {
			dbfs[i] = -math.Inf(1)
			continue
		}
		dbfs[i] = 20 * math.Log10(mag/fullScale)
	}
	return shifted, dbfs
}
