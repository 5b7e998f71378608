package ingest

import (
	"encoding/binary"
	"errors"
	"math"
)

// The acquisition boundary speaks SC16 Q11: interleaved signed 16-bit
// little-endian I/Q pairs. Decoding divides by 2049 so the nominal
// ±2048 hardware range lands just inside ±1.0.
const (
	sc16DecodeScale = 1.0 / 2049.0
	sc16EncodeScale = 2047.0
)

// DecodeSC16 converts raw interleaved SC16 Q11 bytes into complex
// samples. It fills at most len(dst) samples and returns the count.
func DecodeSC16(buf []byte, dst []complex64) (int, error) {
	if len(buf)%4 != 0 {
		return 0, errors.New("DecodeSC16: buffer length not multiple of 4")
	}

	n := len(buf) / 4
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		off := i * 4
		re := int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		im := int16(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
		dst[i] = complex(float32(re)*sc16DecodeScale, float32(im)*sc16DecodeScale)
	}
	return n, nil
}

// DecodeSC16Strided extracts one channel from a sample-major interleaved
// SC16 Q11 block carrying the given channel count. It returns the number
// of samples written to dst.
func DecodeSC16Strided(buf []byte, dst []complex64, channel, channels int) (int, error) {
	if channels < 1 || channel < 0 || channel >= channels {
		return 0, errors.New("DecodeSC16Strided: channel out of range")
	}
	frame := channels * 4
	if len(buf)%frame != 0 {
		return 0, errors.New("DecodeSC16Strided: buffer length not multiple of frame size")
	}
	n := len(buf) / frame
	if n > len(dst) {
		return 0, errors.New("DecodeSC16Strided: destination too small")
	}
	for i := 0; i < n; i++ {
		off := i*frame + channel*4
		re := int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		im := int16(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
		dst[i] = complex(float32(re)*sc16DecodeScale, float32(im)*sc16DecodeScale)
	}
	return n, nil
}

// EncodeSC16 converts complex samples into interleaved SC16 Q11 bytes,
// clamping to ±1.0 first. The destination must hold 4 bytes per sample.
func EncodeSC16(src []complex64, buf []byte) (int, error) {
	if len(buf) < len(src)*4 {
		return 0, errors.New("EncodeSC16: destination too small")
	}

	for i, s := range src {
		off := i * 4
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(sc16Clamp(real(s))))
		binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(sc16Clamp(imag(s))))
	}
	return len(src) * 4, nil
}

func sc16Clamp(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(float64(v) * sc16EncodeScale))
}
