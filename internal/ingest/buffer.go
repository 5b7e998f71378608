// Package ingest moves sample data from acquisition sources into aligned
// processing cycles: a recycling buffer pool, tagged per-channel buffers
// and an aligner that groups them by sequence number.
package ingest

import "time"

// SampleBuffer holds one channel's samples for one capture cycle. Buffers
// are owned by a Pool: checked out to exactly one consumer at a time and
// returned once the cycle has been fully consumed.
type SampleBuffer struct {
	IQ        []complex64
	Channel   int
	Seq       uint64
	Timestamp time.Time
}

// reset clears the tags before the buffer goes back into the pool. The
// sample storage is kept at full capacity for the next checkout.
func (b *SampleBuffer) reset() {
	b.IQ = b.IQ[:cap(b.IQ)]
	b.Channel = 0
	b.Seq = 0
	b.Timestamp = time.Time{}
}

// ChannelSet is the aligned group of per-channel buffers forming one
// processing cycle. All members share one sequence number and length.
type ChannelSet struct {
	Buffers   []*SampleBuffer // index = channel id
	Seq       uint64
	Timestamp time.Time
}

// Len returns the per-channel sample count.
func (cs *ChannelSet) Len() int {
	if len(cs.Buffers) == 0 {
		return 0
	}
	return len(cs.Buffers[0].IQ)
}

// Channels returns the per-channel sample slices in channel order, the
// shape the beamformer consumes.
func (cs *ChannelSet) Channels() [][]complex64 {
	out := make([][]complex64, len(cs.Buffers))
	for i, b := range cs.Buffers {
		out[i] = b.IQ
	}
	return out
}
