package ingest

import "context"

// Source delivers tagged per-channel sample buffers from an acquisition
// front end. Next fills the caller's buffer in place, sets its channel,
// sequence number and timestamp, and returns io.EOF once the stream is
// exhausted. Implementations are used from a single goroutine.
type Source interface {
	Next(ctx context.Context, buf *SampleBuffer) error
	Close() error
}
