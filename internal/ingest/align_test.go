package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rjboer/beam1090/internal/monitor"
)

// scriptSource replays a fixed arrival order of tagged buffers, letting
// alignment tests control exactly what reaches the aligner and when.
type scriptSource struct {
	entries []scriptEntry
	next    int
}

type scriptEntry struct {
	channel int
	seq     uint64
	samples int // 0 keeps the buffer at full length
}

func (s *scriptSource) Next(ctx context.Context, buf *SampleBuffer) error {
	if s.next >= len(s.entries) {
		return io.EOF
	}
	e := s.entries[s.next]
	s.next++

	buf.Channel = e.channel
	buf.Seq = e.seq
	buf.Timestamp = time.Now()
	if e.samples > 0 {
		buf.IQ = buf.IQ[:e.samples]
	}
	return nil
}

func (s *scriptSource) Close() error { return nil }

func runAligner(t *testing.T, a *Aligner, sources ...Source) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- a.Run(context.Background(), sources...)
	}()
	return done
}

func TestAlignerPairsChannels(t *testing.T) {
	pool, err := NewPool(8, 64)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	a, err := NewAligner(pool, 2, 4, WithStats(&monitor.Stats{}))
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	// Second cycle arrives channel-first-swapped; grouping is by seq.
	src := &scriptSource{entries: []scriptEntry{
		{channel: 0, seq: 0},
		{channel: 1, seq: 0},
		{channel: 1, seq: 1},
		{channel: 0, seq: 1},
	}}
	done := runAligner(t, a, src)

	for want := uint64(0); want < 2; want++ {
		set, err := a.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if set.Seq != want {
			t.Fatalf("cycle seq = %d, want %d", set.Seq, want)
		}
		if len(set.Buffers) != 2 {
			t.Fatalf("cycle carries %d buffers, want 2", len(set.Buffers))
		}
		for ch, b := range set.Buffers {
			if b.Channel != ch || b.Seq != want {
				t.Fatalf("slot %d holds channel=%d seq=%d", ch, b.Channel, b.Seq)
			}
		}
		if set.Len() != 64 {
			t.Fatalf("cycle length = %d, want 64", set.Len())
		}
		a.Release(set)
	}

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire after exhaustion = %v, want io.EOF", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pool.Free() != 8 {
		t.Fatalf("pool has %d free buffers after shutdown, want 8", pool.Free())
	}
}

func TestAlignerDiscardsMismatchedLengths(t *testing.T) {
	pool, err := NewPool(8, 64)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	stats := &monitor.Stats{}
	a, err := NewAligner(pool, 2, 4, WithStats(stats))
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	src := &scriptSource{entries: []scriptEntry{
		{channel: 0, seq: 0},
		{channel: 1, seq: 0, samples: 32}, // short buffer poisons the cycle
		{channel: 0, seq: 1},
		{channel: 1, seq: 1},
	}}
	done := runAligner(t, a, src)

	set, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if set.Seq != 1 {
		t.Fatalf("delivered seq %d, want the clean cycle 1", set.Seq)
	}
	a.Release(set)

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire after exhaustion = %v, want io.EOF", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stats.Snapshot().Discarded; got != 1 {
		t.Fatalf("discard count = %d, want 1", got)
	}
	if pool.Free() != 8 {
		t.Fatalf("pool has %d free buffers after shutdown, want 8", pool.Free())
	}
}

func TestAlignerEvictsStalledCycle(t *testing.T) {
	pool, err := NewPool(24, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	stats := &monitor.Stats{}
	a, err := NewAligner(pool, 2, 8, WithStats(stats))
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	// Channel 1 never delivers seq 0. Once maxPendingSets newer cycles
	// pile up, seq 0 must be abandoned so its buffer comes back.
	var entries []scriptEntry
	for seq := uint64(0); seq <= maxPendingSets; seq++ {
		entries = append(entries, scriptEntry{channel: 0, seq: seq})
	}
	for seq := uint64(1); seq <= maxPendingSets; seq++ {
		entries = append(entries, scriptEntry{channel: 1, seq: seq})
	}
	done := runAligner(t, a, &scriptSource{entries: entries})

	for want := uint64(1); want <= maxPendingSets; want++ {
		set, err := a.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if set.Seq != want {
			t.Fatalf("cycle seq = %d, want %d", set.Seq, want)
		}
		a.Release(set)
	}

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire after exhaustion = %v, want io.EOF", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stats.Snapshot().Discarded; got != 1 {
		t.Fatalf("discard count = %d, want 1", got)
	}
	if pool.Free() != 24 {
		t.Fatalf("pool has %d free buffers after shutdown, want 24", pool.Free())
	}
}

func TestAlignerDropsStrayAndDuplicateBuffers(t *testing.T) {
	pool, err := NewPool(8, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	a, err := NewAligner(pool, 2, 4)
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	src := &scriptSource{entries: []scriptEntry{
		{channel: 5, seq: 0}, // outside the configured range
		{channel: 0, seq: 0},
		{channel: 0, seq: 0}, // duplicate slot
		{channel: 1, seq: 0},
	}}
	done := runAligner(t, a, src)

	set, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if set.Seq != 0 || len(set.Buffers) != 2 {
		t.Fatalf("delivered seq=%d with %d buffers, want seq=0 with 2", set.Seq, len(set.Buffers))
	}
	a.Release(set)

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire after exhaustion = %v, want io.EOF", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pool.Free() != 8 {
		t.Fatalf("pool has %d free buffers after shutdown, want 8", pool.Free())
	}
}

func TestAlignerMergesMultipleSources(t *testing.T) {
	pool, err := NewPool(8, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	a, err := NewAligner(pool, 2, 4)
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	left := &scriptSource{entries: []scriptEntry{
		{channel: 0, seq: 0},
		{channel: 0, seq: 1},
	}}
	right := &scriptSource{entries: []scriptEntry{
		{channel: 1, seq: 0},
		{channel: 1, seq: 1},
	}}
	done := runAligner(t, a, left, right)

	for want := uint64(0); want < 2; want++ {
		set, err := a.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if set.Seq != want {
			t.Fatalf("cycle seq = %d, want %d", set.Seq, want)
		}
		a.Release(set)
	}

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire after exhaustion = %v, want io.EOF", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAlignerPropagatesSourceErrors(t *testing.T) {
	pool, err := NewPool(4, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	a, err := NewAligner(pool, 1, 2)
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}

	boom := errors.New("hardware gone")
	done := runAligner(t, a, &failingSource{err: boom})

	if _, err := a.Acquire(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Acquire = %v, want io.EOF", err)
	}
	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want wrapped source error", err)
	}
	if pool.Free() != 4 {
		t.Fatalf("pool has %d free buffers after failure, want 4", pool.Free())
	}
}

func TestAlignerStopsOnCancel(t *testing.T) {
	pool, err := NewPool(8, 64)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	a, err := NewAligner(pool, 2, 2)
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}
	src, err := NewMockSource(MockConfig{Channels: 2, Seed: 7, NoiseLevel: 0.01})
	if err != nil {
		t.Fatalf("NewMockSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx, src)
	}()

	set, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	a.Release(set)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

type failingSource struct {
	err error
}

func (f *failingSource) Next(ctx context.Context, buf *SampleBuffer) error {
	return f.err
}

func (f *failingSource) Close() error { return nil }
