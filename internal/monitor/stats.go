package monitor

import (
	"sync/atomic"
	"time"
)

// Stats accumulates pipeline counters. Workers and the ingestion path add
// to it from their own goroutines; the monitor reads snapshots. The zero
// value is ready to use, and all methods are safe for concurrent use.
type Stats struct {
	cycles         atomic.Uint64
	discarded      atomic.Uint64
	framesFound    atomic.Uint64
	framesValid    atomic.Uint64
	framesRepaired atomic.Uint64
	framesDropped  atomic.Uint64
	sampleTime     atomic.Int64 // nanoseconds of capture time processed
	busy           atomic.Int64 // nanoseconds spent inside cycles
}

// AddCycle records one completed cycle: the capture duration the buffer
// represents and the wall time the worker spent on it.
func (s *Stats) AddCycle(sampleTime, busy time.Duration) {
	s.cycles.Add(1)
	s.sampleTime.Add(int64(sampleTime))
	s.busy.Add(int64(busy))
}

// AddDiscarded records a cycle dropped before processing, typically a
// misaligned channel group.
func (s *Stats) AddDiscarded() {
	s.discarded.Add(1)
}

// AddFrames records demodulation results for one cycle.
func (s *Stats) AddFrames(found, valid, repaired int) {
	s.framesFound.Add(uint64(found))
	s.framesValid.Add(uint64(valid))
	s.framesRepaired.Add(uint64(repaired))
}

// AddDropped records frames lost at a sink.
func (s *Stats) AddDropped(n int) {
	if n > 0 {
		s.framesDropped.Add(uint64(n))
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Cycles         uint64
	Discarded      uint64
	FramesFound    uint64
	FramesValid    uint64
	FramesRepaired uint64
	FramesDropped  uint64
	SampleTime     time.Duration
	Busy           time.Duration
}

// Snapshot returns the current counter values. Fields are read
// individually, so a snapshot taken during updates may mix adjacent
// cycles; window arithmetic tolerates that.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Cycles:         s.cycles.Load(),
		Discarded:      s.discarded.Load(),
		FramesFound:    s.framesFound.Load(),
		FramesValid:    s.framesValid.Load(),
		FramesRepaired: s.framesRepaired.Load(),
		FramesDropped:  s.framesDropped.Load(),
		SampleTime:     time.Duration(s.sampleTime.Load()),
		Busy:           time.Duration(s.busy.Load()),
	}
}

// Sub returns the per-field difference s - prev, covering one window.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		Cycles:         s.Cycles - prev.Cycles,
		Discarded:      s.Discarded - prev.Discarded,
		FramesFound:    s.FramesFound - prev.FramesFound,
		FramesValid:    s.FramesValid - prev.FramesValid,
		FramesRepaired: s.FramesRepaired - prev.FramesRepaired,
		FramesDropped:  s.FramesDropped - prev.FramesDropped,
		SampleTime:     s.SampleTime - prev.SampleTime,
		Busy:           s.Busy - prev.Busy,
	}
}
