package dispatch

import (
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rjboer/beam1090/internal/modes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame(t *testing.T, s string) *modes.Frame {
	t.Helper()
	payload, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	df := modes.DF(payload)
	icao, _ := modes.ICAO(payload)
	return &modes.Frame{
		Payload:   payload,
		DF:        df,
		ICAO:      icao,
		Long:      modes.LongFormat(df),
		Valid:     true,
		Score:     3.6,
		Timestamp: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

type recordSink struct {
	frames []*modes.Frame
	err    error
	closed bool
}

func (r *recordSink) Publish(f *modes.Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordSink) Close() error {
	r.closed = true
	return r.err
}

func TestDispatcherFanOut(t *testing.T) {
	first := &recordSink{}
	broken := &recordSink{err: errors.New("sink broke")}
	last := &recordSink{}

	d := New(testLogger(), first, broken, last)
	f := testFrame(t, "8D4840D6202CC371C32CE0576098")
	d.Publish(f)
	d.Publish(f)

	if len(first.frames) != 2 || len(last.frames) != 2 {
		t.Fatalf("sinks received %d and %d frames, want 2 and 2",
			len(first.frames), len(last.frames))
	}

	err := d.Close()
	if !errors.Is(err, broken.err) {
		t.Fatalf("Close error = %v, want the broken sink's error", err)
	}
	if !first.closed || !last.closed {
		t.Error("healthy sinks were not closed")
	}
}

func TestDispatcherIgnoresNilSinks(t *testing.T) {
	sink := &recordSink{}
	d := New(testLogger(), nil, sink)
	d.Add(nil)

	d.Publish(testFrame(t, "8D4840D6202CC371C32CE0576098"))
	if len(sink.frames) != 1 {
		t.Fatalf("sink received %d frames, want 1", len(sink.frames))
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConsoleSink(t *testing.T) {
	c := NewConsoleSink(testLogger())
	if err := c.Publish(testFrame(t, "8D4840D6202CC371C32CE0576098")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFrameRecord(t *testing.T) {
	f := testFrame(t, "8D4840D6202CC371C32CE0576098")
	f.Repaired = 1

	rec := newFrameRecord(f)
	if rec.ICAO != "4840D6" {
		t.Errorf("record ICAO = %q, want 4840D6", rec.ICAO)
	}
	if rec.Hex != "8D4840D6202CC371C32CE0576098" {
		t.Errorf("record hex = %q", rec.Hex)
	}
	if rec.DF != 17 || rec.Repaired != 1 {
		t.Errorf("record df=%d repaired=%d, want 17 and 1", rec.DF, rec.Repaired)
	}

	// Formats without an address field leave ICAO out entirely.
	anon := testFrame(t, "8D4840D6202CC371C32CE0576098")
	anon.ICAO = 0
	if rec := newFrameRecord(anon); rec.ICAO != "" {
		t.Errorf("record ICAO = %q for addressless frame, want empty", rec.ICAO)
	}
}

func TestMQTTSinkUnreachableBroker(t *testing.T) {
	_, err := NewMQTTSink(MQTTConfig{
		Broker:  "tcp://127.0.0.1:1",
		Timeout: 250 * time.Millisecond,
		Logger:  testLogger(),
	})
	if err == nil {
		t.Fatal("expected error for unreachable broker")
	}
}

func TestMQTTSinkRequiresBroker(t *testing.T) {
	if _, err := NewMQTTSink(MQTTConfig{}); err == nil {
		t.Fatal("expected error for missing broker address")
	}
}
