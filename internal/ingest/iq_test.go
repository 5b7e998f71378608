package ingest

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecodeSC16KnownValues(t *testing.T) {
	// 2048, -2048: full-scale Q11 lands just inside ±1.0.
	buf := []byte{0x00, 0x08, 0x00, 0xF8}
	dst := make([]complex64, 1)

	n, err := DecodeSC16(buf, dst)
	if err != nil {
		t.Fatalf("DecodeSC16: %v", err)
	}
	if n != 1 {
		t.Fatalf("decoded %d samples, want 1", n)
	}

	wantRe := float32(2048.0 / 2049.0)
	wantIm := float32(-2048.0 / 2049.0)
	if real(dst[0]) != wantRe || imag(dst[0]) != wantIm {
		t.Errorf("decoded %v, want (%v, %v)", dst[0], wantRe, wantIm)
	}
}

func TestDecodeSC16RejectsRaggedInput(t *testing.T) {
	if _, err := DecodeSC16(make([]byte, 5), make([]complex64, 4)); err == nil {
		t.Error("expected error for length not a multiple of 4")
	}
}

func TestDecodeSC16TruncatesToDst(t *testing.T) {
	n, err := DecodeSC16(make([]byte, 16), make([]complex64, 1))
	if err != nil {
		t.Fatalf("DecodeSC16: %v", err)
	}
	if n != 1 {
		t.Fatalf("decoded %d samples into a 1-sample dst, want 1", n)
	}
}

func TestEncodeSC16Clamps(t *testing.T) {
	src := []complex64{complex(2, 0), complex(-3, -3)}
	buf := make([]byte, 8)

	if _, err := EncodeSC16(src, buf); err != nil {
		t.Fatalf("EncodeSC16: %v", err)
	}
	if got := int16(binary.LittleEndian.Uint16(buf[0:2])); got != 2047 {
		t.Errorf("overdriven I encoded as %d, want 2047", got)
	}
	if got := int16(binary.LittleEndian.Uint16(buf[4:6])); got != -2047 {
		t.Errorf("overdriven I encoded as %d, want -2047", got)
	}
	if got := int16(binary.LittleEndian.Uint16(buf[6:8])); got != -2047 {
		t.Errorf("overdriven Q encoded as %d, want -2047", got)
	}
}

func TestSC16RoundTrip(t *testing.T) {
	src := []complex64{
		complex(0, 0),
		complex(0.5, -0.5),
		complex(0.999, 0.001),
		complex(-1, 1),
	}
	buf := make([]byte, len(src)*4)
	if _, err := EncodeSC16(src, buf); err != nil {
		t.Fatalf("EncodeSC16: %v", err)
	}

	dst := make([]complex64, len(src))
	if _, err := DecodeSC16(buf, dst); err != nil {
		t.Fatalf("DecodeSC16: %v", err)
	}
	for i := range src {
		if d := float64(real(dst[i]) - real(src[i])); math.Abs(d) > 2e-3 {
			t.Errorf("sample %d: I drifted by %v", i, d)
		}
		if d := float64(imag(dst[i]) - imag(src[i])); math.Abs(d) > 2e-3 {
			t.Errorf("sample %d: Q drifted by %v", i, d)
		}
	}
}

func TestDecodeSC16Strided(t *testing.T) {
	// Three sample-major frames of two channels.
	raw := []int16{
		100, 200, -100, -200,
		300, 400, -300, -400,
		500, 600, -500, -600,
	}
	buf := make([]byte, len(raw)*2)
	for i, v := range raw {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	for ch, sign := range []float32{1, -1} {
		dst := make([]complex64, 3)
		n, err := DecodeSC16Strided(buf, dst, ch, 2)
		if err != nil {
			t.Fatalf("channel %d: %v", ch, err)
		}
		if n != 3 {
			t.Fatalf("channel %d: decoded %d samples, want 3", ch, n)
		}
		for i, want := range []complex64{
			complex(sign*100*sc16DecodeScale, sign*200*sc16DecodeScale),
			complex(sign*300*sc16DecodeScale, sign*400*sc16DecodeScale),
			complex(sign*500*sc16DecodeScale, sign*600*sc16DecodeScale),
		} {
			if dst[i] != want {
				t.Errorf("channel %d sample %d = %v, want %v", ch, i, dst[i], want)
			}
		}
	}
}

func TestDecodeSC16StridedErrors(t *testing.T) {
	buf := make([]byte, 16)
	dst := make([]complex64, 4)

	if _, err := DecodeSC16Strided(buf, dst, 2, 2); err == nil {
		t.Error("expected error for channel out of range")
	}
	if _, err := DecodeSC16Strided(buf, dst, 0, 0); err == nil {
		t.Error("expected error for zero channel count")
	}
	if _, err := DecodeSC16Strided(make([]byte, 12), dst, 0, 2); err == nil {
		t.Error("expected error for ragged block length")
	}
	if _, err := DecodeSC16Strided(buf, make([]complex64, 1), 0, 2); err == nil {
		t.Error("expected error for undersized destination")
	}
}
