package ingest

import (
	"context"
	"fmt"
)

// Pool is a bounded pool of sample buffers recycled across cycles.
//
// All buffers are allocated up front so the steady state runs without
// per-cycle allocation; Get blocks when every buffer is in flight, which
// is the ingestion backpressure point.
type Pool struct {
	buffers chan *SampleBuffer
	samples int
}

// NewPool creates a pool of count buffers of the given sample length.
func NewPool(count, samples int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("pool size must be positive")
	}
	if samples <= 0 {
		return nil, fmt.Errorf("buffer length must be positive")
	}

	p := &Pool{
		buffers: make(chan *SampleBuffer, count),
		samples: samples,
	}
	for i := 0; i < count; i++ {
		p.buffers <- &SampleBuffer{IQ: make([]complex64, samples)}
	}
	return p, nil
}

// Get acquires a buffer, blocking until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (*SampleBuffer, error) {
	select {
	case b := <-p.buffers:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a buffer to the pool. Buffers that did not come from this
// pool are discarded rather than grown into it.
func (p *Pool) Put(b *SampleBuffer) {
	if b == nil {
		return
	}
	b.reset()
	select {
	case p.buffers <- b:
	default:
	}
}

// Free reports how many buffers are currently available.
func (p *Pool) Free() int {
	return len(p.buffers)
}

// SampleLen returns the per-buffer sample length.
func (p *Pool) SampleLen() int {
	return p.samples
}
