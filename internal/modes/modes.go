// Package modes implements the Mode S downlink frame structure: length
// classes, the 24-bit parity check, optional bit-error repair and ICAO
// address handling. It contains no DSP; it operates on demodulated bits.
package modes

import (
	"encoding/hex"
	"strings"
	"time"
)

const (
	// LongFrameBits is the extended squitter frame length.
	LongFrameBits = 112
	// ShortFrameBits is the short squitter / surveillance reply length.
	ShortFrameBits = 56

	LongFrameBytes  = LongFrameBits / 8
	ShortFrameBytes = ShortFrameBits / 8

	// PreambleUS is the preamble duration in microseconds. At 2 Msps this
	// is 16 samples ahead of the first data bit.
	PreambleUS = 8

	// SampleRate is the demodulator's fixed rate. Each PPM bit spans two
	// samples: pulse in the first half means 1, in the second half 0.
	SampleRate      = 2_000_000
	SamplesPerBit   = 2
	PreambleSamples = PreambleUS * SamplesPerBit
)

// DF extracts the downlink format from the first payload byte.
func DF(payload []byte) uint8 {
	if len(payload) == 0 {
		return 0
	}
	return payload[0] >> 3
}

// LongFormat reports whether the downlink format uses the 112-bit frame.
// Formats 16 and above carry the long frame.
func LongFormat(df uint8) bool {
	return df&0x10 != 0
}

// FrameBits returns the frame length in bits for a downlink format.
func FrameBits(df uint8) int {
	if LongFormat(df) {
		return LongFrameBits
	}
	return ShortFrameBits
}

// Frame is a demodulated downlink frame after the parity check.
type Frame struct {
	Payload   []byte
	DF        uint8
	ICAO      uint32  // 0 when the format carries no direct address field
	Long      bool
	Valid     bool
	Repaired  int     // number of corrected bits, 0 when untouched
	Score     float64 // preamble correlation score from the demodulator
	Timestamp time.Time
}

// Hex returns the payload as an upper-case hex string.
func (f *Frame) Hex() string {
	return strings.ToUpper(hex.EncodeToString(f.Payload))
}
