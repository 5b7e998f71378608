package ingest

import (
	"context"
	"fmt"
	"io"
	"math/cmplx"
	"math/rand"
	"time"

	"github.com/rjboer/beam1090/internal/modes"
)

// Injection places one encoded downlink frame into a mock capture cycle.
// With a zero PhaseStep the same samples go to every channel, a coherent
// boresight arrival. A non-zero step rotates the frame by step·channel
// radians, the planar wavefront of an off-axis target.
type Injection struct {
	Cycle     uint64
	Offset    int
	Payload   []byte
	Amplitude float64 // defaults to 1.0
	PhaseStep float64 // radians per channel index
}

// MockConfig describes a synthetic capture run.
type MockConfig struct {
	Channels   int
	Cycles     uint64  // 0 runs until the context is canceled
	Seed       int64
	NoiseLevel float64 // Gaussian sigma per I/Q component
	Injections []Injection
}

// MockSource generates multi-channel sample buffers without hardware.
// One instance serves all channels: successive Next calls round-robin
// through them, so a single aligner reader drains it. Runs with the
// same config and seed produce identical samples.
type MockSource struct {
	cfg        MockConfig
	rng        *rand.Rand
	injections map[uint64][]Injection
	channel    int
	seq        uint64
}

// NewMockSource builds a deterministic synthetic source.
func NewMockSource(cfg MockConfig) (*MockSource, error) {
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", cfg.Channels)
	}
	injections := make(map[uint64][]Injection)
	for _, inj := range cfg.Injections {
		if inj.Offset < 0 {
			return nil, fmt.Errorf("injection offset must not be negative, got %d", inj.Offset)
		}
		injections[inj.Cycle] = append(injections[inj.Cycle], inj)
	}
	return &MockSource{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		injections: injections,
	}, nil
}

// Next fills buf with noise plus any frames injected into the current
// cycle. It returns io.EOF once the configured cycle count has been
// fully delivered on every channel.
func (m *MockSource) Next(ctx context.Context, buf *SampleBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Cycles > 0 && m.seq >= m.cfg.Cycles {
		return io.EOF
	}

	buf.Channel = m.channel
	buf.Seq = m.seq
	buf.Timestamp = time.Now()

	sigma := m.cfg.NoiseLevel
	for i := range buf.IQ {
		buf.IQ[i] = complex(float32(m.rng.NormFloat64()*sigma), float32(m.rng.NormFloat64()*sigma))
	}
	for _, inj := range m.injections[m.seq] {
		addFrame(buf.IQ, inj, m.channel)
	}

	m.channel++
	if m.channel == m.cfg.Channels {
		m.channel = 0
		m.seq++
	}
	return nil
}

// Close implements Source.
func (m *MockSource) Close() error { return nil }

func addFrame(iq []complex64, inj Injection, channel int) {
	amp := inj.Amplitude
	if amp == 0 {
		amp = 1.0
	}
	frame := EncodeFrameSamples(inj.Payload, amp)
	rot := complex64(1)
	if inj.PhaseStep != 0 {
		rot = complex64(cmplx.Exp(complex(0, inj.PhaseStep*float64(channel))))
	}
	for i, s := range frame {
		pos := inj.Offset + i
		if pos >= len(iq) {
			break
		}
		iq[pos] += s * rot
	}
}

// EncodeFrameSamples renders a downlink payload as baseband pulses at
// the demodulator rate: the four preamble pulses at samples 0, 2, 7 and
// 9, then two samples per bit with the pulse in the first half for a 1.
func EncodeFrameSamples(payload []byte, amplitude float64) []complex64 {
	bits := len(payload) * 8
	out := make([]complex64, modes.PreambleSamples+bits*modes.SamplesPerBit)

	pulse := complex(float32(amplitude), 0)
	out[0] = pulse
	out[2] = pulse
	out[7] = pulse
	out[9] = pulse

	for i := 0; i < bits; i++ {
		pos := modes.PreambleSamples + i*modes.SamplesPerBit
		if payload[i/8]&(1<<(7-i%8)) != 0 {
			out[pos] = pulse
		} else {
			out[pos+1] = pulse
		}
	}
	return out
}
