package dsp

import "math"

// BandReport summarizes one spectral snapshot of the composite stream.
type BandReport struct {
	PeakDBFS   float64
	PeakBin    int
	NoiseFloor float64 // dBFS, guard bins around the peak excluded
	SNR        float64 // dB
}

// Probe produces periodic BandReports from composite samples. It reuses
// one FFT plan and window, so snapshots stay cheap enough to take from
// the monitoring path.
type Probe struct {
	cached *CachedDSP
}

// NewProbe creates a probe for snapshots of the given length.
func NewProbe(size int) *Probe {
	return &Probe{cached: NewCachedDSP(size)}
}

// Analyze computes the band report for one snapshot. ok is false when the
// snapshot is empty or contains no finite bins.
func (p *Probe) Analyze(samples []complex64) (BandReport, bool) {
	_, dbfs := p.cached.FFTAndDBFS(samples)
	if len(dbfs) == 0 {
		return BandReport{}, false
	}

	peak, bin, ok := peakInBand(dbfs, 0, len(dbfs))
	if !ok {
		return BandReport{}, false
	}
	noise, ok := noiseFloor(dbfs, 0, len(dbfs), bin)
	if !ok {
		return BandReport{}, false
	}

	snr := peak - noise
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		snr = 0
	}
	return BandReport{PeakDBFS: peak, PeakBin: bin, NoiseFloor: noise, SNR: snr}, true
}

// binRange clamps [start,end) to [0,n). An empty interval returns (0,0).
func binRange(n, start, end int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > n {
		end = n
	}
	if start >= end {
		return 0, 0
	}
	return start, end
}

// peakInBand returns the maximum value of db in [start,end).
func peakInBand(db []float64, start, end int) (peak float64, bin int, ok bool) {
	s, e := binRange(len(db), start, end)
	if s == e {
		return 0, 0, false
	}
	peak = -math.MaxFloat64
	for i := s; i < e; i++ {
		if db[i] > peak {
			peak = db[i]
			bin = i
		}
	}
	if peak == -math.MaxFloat64 {
		return 0, bin, false
	}
	return peak, bin, true
}

// noiseFloor averages db over [start,end) excluding a one-bin guard on
// each side of the signal bin so the estimate is not biased by the peak.
func noiseFloor(db []float64, start, end, signalBin int) (float64, bool) {
	s, e := binRange(len(db), start, end)
	if s == e {
		return 0, false
	}

	var sum float64
	var count int
	for i := s; i < e; i++ {
		if i == signalBin || i == signalBin-1 || i == signalBin+1 {
			continue
		}
		v := db[i]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
