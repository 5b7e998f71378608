// Package aircraft maintains the table of aircraft heard on the air,
// keyed by ICAO address.
package aircraft

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rjboer/beam1090/internal/modes"
)

// State is the lifecycle of a table entry.
type State int

const (
	// StateTentative marks an address heard exactly once.
	StateTentative State = iota
	// StateActive marks an address confirmed by further frames.
	StateActive
	// StateStale marks an address silent for longer than the timeout.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateTentative:
		return "tentative"
	case StateActive:
		return "active"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

// Aircraft is one tracked address.
type Aircraft struct {
	ICAO      uint32
	FirstSeen time.Time
	LastSeen  time.Time
	Frames    int
	Repaired  int
	LastDF    uint8
	State     State
}

// Tracker files frames under their ICAO address and ages entries out.
// It satisfies the dispatch sink contract, so it can sit in the fan-out
// next to the feeds.
type Tracker struct {
	mu      sync.Mutex
	entries map[uint32]*Aircraft
	order   []uint32
	max     int
	timeout time.Duration
	logger  *slog.Logger
}

// NewTracker builds a table holding at most max aircraft, marking
// entries stale after timeout without traffic. Zero values select 256
// aircraft and one minute.
func NewTracker(max int, timeout time.Duration, logger *slog.Logger) *Tracker {
	if max <= 0 {
		max = 256
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		entries: make(map[uint32]*Aircraft),
		max:     max,
		timeout: timeout,
		logger:  logger,
	}
}

// Publish files the frame under its address. Frames without an address
// pass through untracked. Aging uses the frame's capture timestamp, so
// replayed captures expire on stream time rather than wall time.
func (t *Tracker) Publish(f *modes.Frame) error {
	if f.ICAO == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := f.Timestamp
	t.expire(now)

	ac := t.entries[f.ICAO]
	if ac == nil {
		if len(t.entries) >= t.max {
			t.dropOldest()
		}
		ac = &Aircraft{ICAO: f.ICAO, FirstSeen: now, State: StateTentative}
		t.entries[f.ICAO] = ac
		t.order = append(t.order, f.ICAO)
		t.logger.Info("aircraft acquired", "icao", fmt.Sprintf("%06X", f.ICAO), "df", f.DF)
	} else {
		// A stale address that comes back is live again.
		ac.State = StateActive
	}

	ac.LastSeen = now
	ac.Frames++
	ac.LastDF = f.DF
	if f.Repaired > 0 {
		ac.Repaired++
	}
	return nil
}

// Close implements the sink contract.
func (t *Tracker) Close() error { return nil }

// Snapshot returns the table in acquisition order.
func (t *Tracker) Snapshot() []Aircraft {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Aircraft, 0, len(t.entries))
	for _, icao := range t.order {
		if ac, ok := t.entries[icao]; ok {
			out = append(out, *ac)
		}
	}
	return out
}

// Active counts entries still considered on the air.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, ac := range t.entries {
		if ac.State != StateStale {
			n++
		}
	}
	return n
}

func (t *Tracker) expire(now time.Time) {
	for _, ac := range t.entries {
		if ac.State == StateStale {
			continue
		}
		if now.Sub(ac.LastSeen) > t.timeout {
			ac.State = StateStale
			t.logger.Debug("aircraft stale", "icao", fmt.Sprintf("%06X", ac.ICAO), "frames", ac.Frames)
		}
	}
}

func (t *Tracker) dropOldest() {
	for len(t.order) > 0 {
		icao := t.order[0]
		t.order = t.order[1:]
		if _, ok := t.entries[icao]; ok {
			delete(t.entries, icao)
			return
		}
	}
}
