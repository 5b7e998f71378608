package dsp

import "math"

// WeightedSum combines the per-channel sample streams into dst using one
// complex weight per channel: dst[i] = Σ_k weights[k]·channels[k][i].
// The sum runs over min(len(dst), shortest channel) samples and returns
// that count. Written as a channel-major pass so the inner loop stays
// auto-vectorisable.
func WeightedSum(dst []complex64, weights []complex64, channels [][]complex64) int {
	n := len(dst)
	for _, ch := range channels {
		if len(ch) < n {
			n = len(ch)
		}
	}
	if len(channels) == 0 || n == 0 {
		return 0
	}

	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	for k, ch := range channels {
		if k >= len(weights) {
			break
		}
		w := weights[k]
		for i := 0; i < n; i++ {
			dst[i] += w * ch[i]
		}
	}
	return n
}

// Magnitudes writes |src[i]| into dst for min(len(dst), len(src)) samples
// and returns that count.
func Magnitudes(dst []float64, src []complex64) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		re := float64(real(src[i]))
		im := float64(imag(src[i]))
		dst[i] = math.Sqrt(re*re + im*im)
	}
	return n
}
