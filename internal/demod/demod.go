// Package demod lifts Mode S frames out of a magnitude stream. The
// scanner is an explicit state machine: it searches for the four-pulse
// preamble, locks the pulse levels and quiet zones, extracts PPM bits
// at two samples per bit, and emits one candidate per accepted start
// position. Parity checking is not its job; every plausible candidate
// goes downstream.
package demod

import (
	"math"

	"github.com/rjboer/beam1090/internal/modes"
)

type state int

const (
	stateSearching state = iota
	stateBitSync
	stateExtracting
	stateDone
)

const (
	// defaultAmbiguityDelta marks a bit ambiguous when its two samples
	// differ by less than this. Magnitudes are normalized to ±1 full
	// scale.
	defaultAmbiguityDelta = 0.004

	// defaultMinContrast rejects a candidate whose average per-bit
	// sample contrast is below this. Pure noise rarely sustains a
	// consistent pulse train across a whole frame.
	defaultMinContrast = 0.01

	// scanWindow is the room a start position needs: preamble plus a
	// long frame. Frames starting closer to the buffer end are left
	// for the next capture.
	scanWindow = modes.PreambleSamples + modes.LongFrameBits*modes.SamplesPerBit
)

// Confidence grades how cleanly a candidate's bits were read.
type Confidence int

const (
	// Confirmed means every bit resolved from its own two samples.
	Confirmed Confidence = iota
	// Tentative means at least one bit was inherited from its neighbor.
	Tentative
)

func (c Confidence) String() string {
	if c == Confirmed {
		return "confirmed"
	}
	return "tentative"
}

// Candidate is one possible frame lifted from the stream. Payload bits
// are the scanner's best guess; Ambiguous counts bits that had to be
// inherited from their neighbor instead of read cleanly.
type Candidate struct {
	Start     int
	Payload   []byte
	Score     float64
	Ambiguous int
}

// Confidence reports whether every bit was read cleanly. The ambiguous
// count stays available for finer scoring.
func (c Candidate) Confidence() Confidence {
	if c.Ambiguous > 0 {
		return Tentative
	}
	return Confirmed
}

// Config adjusts the scanner thresholds. Zero values select defaults.
type Config struct {
	AmbiguityDelta float64
	MinContrast    float64
}

// Demodulator scans magnitude buffers for downlink frames. It keeps
// per-scan state, so each worker owns its own instance.
type Demodulator struct {
	cfg   Config
	pos   int
	state state
	score float64
	found Candidate
}

// New returns a scanner with the given thresholds.
func New(cfg Config) *Demodulator {
	if cfg.AmbiguityDelta <= 0 {
		cfg.AmbiguityDelta = defaultAmbiguityDelta
	}
	if cfg.MinContrast <= 0 {
		cfg.MinContrast = defaultMinContrast
	}
	return &Demodulator{cfg: cfg}
}

// Scan walks the whole buffer and returns every candidate frame. Start
// positions advance one sample at a time, so overlapping detections are
// possible; the parity check downstream separates them.
func (d *Demodulator) Scan(mags []float64) []Candidate {
	d.pos = 0
	d.state = stateSearching

	var out []Candidate
	for {
		switch d.state {
		case stateSearching:
			if d.pos+scanWindow > len(mags) {
				return out
			}
			if preambleAt(mags, d.pos) {
				d.state = stateBitSync
			} else {
				d.pos++
			}

		case stateBitSync:
			score, ok := d.sync(mags)
			if !ok {
				d.state = stateSearching
				d.pos++
				break
			}
			d.score = score
			d.state = stateExtracting

		case stateExtracting:
			cand, ok := d.extract(mags)
			if !ok {
				d.state = stateSearching
				d.pos++
				break
			}
			d.found = cand
			d.state = stateDone

		case stateDone:
			out = append(out, d.found)
			d.state = stateSearching
			d.pos++
		}
	}
}

// preambleAt applies the relational shape test for the four preamble
// pulses at offsets 0, 2, 7 and 9.
func preambleAt(m []float64, j int) bool {
	return m[j] > m[j+1] &&
		m[j+1] < m[j+2] &&
		m[j+2] > m[j+3] &&
		m[j+3] < m[j] &&
		m[j+4] < m[j] &&
		m[j+5] < m[j] &&
		m[j+6] < m[j] &&
		m[j+7] > m[j+8] &&
		m[j+8] < m[j+9] &&
		m[j+9] > m[j+6]
}

// sync confirms the pulse structure around the preamble: the gaps
// inside it and the first two bit periods after it must stay below the
// pulse level. It returns the preamble edge score.
func (d *Demodulator) sync(m []float64) (float64, bool) {
	j := d.pos
	high := (m[j] + m[j+2] + m[j+7] + m[j+9]) / 6
	if m[j+4] >= high || m[j+5] >= high || m[j+6] >= high {
		return 0, false
	}
	if m[j+11] >= high || m[j+12] >= high || m[j+13] >= high || m[j+14] >= high {
		return 0, false
	}

	score := (m[j] - m[j+1]) + (m[j+2] - m[j+3]) + (m[j+7] - m[j+6]) + (m[j+9] - m[j+8])
	return score, true
}

// extract reads PPM bits after the preamble. The first byte's downlink
// format decides whether 56 or 112 bits follow. A bit whose samples are
// nearly equal inherits its predecessor and is counted as ambiguous
// rather than discarded.
func (d *Demodulator) extract(m []float64) (Candidate, bool) {
	data := m[d.pos+modes.PreambleSamples:]

	var raw [modes.LongFrameBits]uint8
	nbits := modes.LongFrameBits
	ambiguous := 0
	contrast := 0.0

	for i := 0; i < nbits; i++ {
		first := data[i*modes.SamplesPerBit]
		second := data[i*modes.SamplesPerBit+1]
		delta := math.Abs(first - second)
		contrast += delta

		switch {
		case delta < d.cfg.AmbiguityDelta && i > 0:
			raw[i] = raw[i-1]
			ambiguous++
		case first > second:
			raw[i] = 1
		default:
			raw[i] = 0
		}

		if i == 7 {
			df := raw[0]<<4 | raw[1]<<3 | raw[2]<<2 | raw[3]<<1 | raw[4]
			nbits = modes.FrameBits(df)
		}
	}

	if contrast/float64(nbits) < d.cfg.MinContrast {
		return Candidate{}, false
	}

	payload := make([]byte, nbits/8)
	for i := 0; i < nbits; i++ {
		if raw[i] == 1 {
			payload[i/8] |= 1 << (7 - i%8)
		}
	}

	return Candidate{
		Start:     d.pos,
		Payload:   payload,
		Score:     d.score,
		Ambiguous: ambiguous,
	}, true
}
