package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rjboer/beam1090/internal/monitor"
)

// maxPendingSets bounds the aligner's reorder window: how many distinct
// incomplete sequence numbers may wait for their remaining channels
// before the oldest is discarded.
const maxPendingSets = 8

// Aligner assembles tagged buffers from one or more sources into
// ChannelSets sharing a sequence number and hands them to workers
// through a bounded cycle queue. A full queue blocks ingestion rather
// than dropping input.
type Aligner struct {
	pool     *Pool
	channels int
	cycles   chan *ChannelSet
	logger   *slog.Logger
	stats    *monitor.Stats
}

// AlignerOption customizes an Aligner.
type AlignerOption func(*Aligner)

// WithLogger sets the aligner's logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) AlignerOption {
	return func(a *Aligner) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStats wires pipeline counters for discard accounting.
func WithStats(s *monitor.Stats) AlignerOption {
	return func(a *Aligner) {
		a.stats = s
	}
}

// NewAligner builds an aligner for the given channel count with a cycle
// queue of the given depth. The pool must hold enough buffers to cover
// channels × (depth + workers in flight), or ingestion will stall.
func NewAligner(pool *Pool, channels, depth int, opts ...AlignerOption) (*Aligner, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if depth < 1 {
		depth = 1
	}

	a := &Aligner{
		pool:     pool,
		channels: channels,
		cycles:   make(chan *ChannelSet, depth),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run consumes the sources until they are exhausted or ctx is done, then
// closes the cycle queue. Each source gets its own reader goroutine so a
// slow board does not starve the others of pool buffers.
func (a *Aligner) Run(ctx context.Context, sources ...Source) error {
	merged := make(chan *SampleBuffer)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			if err := a.read(ctx, src, merged); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	a.assemble(ctx, merged)

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

// Acquire returns the next aligned cycle, blocking until one is ready.
// It returns io.EOF once the sources are exhausted and every queued
// cycle has been consumed.
func (a *Aligner) Acquire(ctx context.Context) (*ChannelSet, error) {
	select {
	case set, ok := <-a.cycles:
		if !ok {
			return nil, io.EOF
		}
		return set, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a consumed cycle's buffers to the pool.
func (a *Aligner) Release(set *ChannelSet) {
	if set == nil {
		return
	}
	for _, b := range set.Buffers {
		a.pool.Put(b)
	}
}

func (a *Aligner) read(ctx context.Context, src Source, merged chan<- *SampleBuffer) error {
	for {
		buf, err := a.pool.Get(ctx)
		if err != nil {
			return nil
		}
		if err := src.Next(ctx, buf); err != nil {
			a.pool.Put(buf)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("source: %w", err)
		}
		select {
		case merged <- buf:
		case <-ctx.Done():
			a.pool.Put(buf)
			return nil
		}
	}
}

func (a *Aligner) assemble(ctx context.Context, merged <-chan *SampleBuffer) {
	pending := make(map[uint64][]*SampleBuffer)
	defer func() {
		for _, slots := range pending {
			a.discard(slots)
		}
		close(a.cycles)
	}()

	for buf := range merged {
		if buf.Channel < 0 || buf.Channel >= a.channels {
			a.logger.Warn("buffer outside channel range",
				"channel", buf.Channel, "seq", buf.Seq)
			a.pool.Put(buf)
			continue
		}

		slots, ok := pending[buf.Seq]
		if !ok {
			if len(pending) >= maxPendingSets {
				a.evictOldest(pending)
			}
			slots = make([]*SampleBuffer, a.channels)
			pending[buf.Seq] = slots
		}
		if slots[buf.Channel] != nil {
			a.logger.Warn("duplicate channel buffer",
				"channel", buf.Channel, "seq", buf.Seq)
			a.pool.Put(buf)
			continue
		}
		slots[buf.Channel] = buf

		if !complete(slots) {
			continue
		}
		delete(pending, buf.Seq)

		if !equalLengths(slots) {
			a.logger.Warn("discarding cycle with mismatched buffer lengths",
				"seq", buf.Seq)
			a.discard(slots)
			continue
		}

		set := &ChannelSet{Buffers: slots, Seq: buf.Seq, Timestamp: slots[0].Timestamp}
		select {
		case a.cycles <- set:
		case <-ctx.Done():
			a.discard(slots)
			return
		}
	}
}

// evictOldest discards the lowest pending sequence number. A sequence
// stuck here means some channel skipped it, so the cycle can never
// align.
func (a *Aligner) evictOldest(pending map[uint64][]*SampleBuffer) {
	var oldest uint64
	first := true
	for seq := range pending {
		if first || seq < oldest {
			oldest = seq
			first = false
		}
	}
	if first {
		return
	}
	a.logger.Warn("discarding misaligned cycle", "seq", oldest)
	a.discard(pending[oldest])
	delete(pending, oldest)
}

func (a *Aligner) discard(slots []*SampleBuffer) {
	for _, b := range slots {
		if b != nil {
			a.pool.Put(b)
		}
	}
	if a.stats != nil {
		a.stats.AddDiscarded()
	}
}

func complete(slots []*SampleBuffer) bool {
	for _, b := range slots {
		if b == nil {
			return false
		}
	}
	return true
}

func equalLengths(slots []*SampleBuffer) bool {
	for _, b := range slots[1:] {
		if len(b.IQ) != len(slots[0].IQ) {
			return false
		}
	}
	return true
}
