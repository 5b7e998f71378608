// Package monitor watches the pipeline: it accumulates counters from
// the workers, rolls them into fixed windows, judges whether processing
// is keeping up with capture time, and hands window reports to
// reporters.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rjboer/beam1090/internal/dsp"
)

// Config describes a monitor.
type Config struct {
	Stats  *Stats
	Window time.Duration // default 5s

	// Margin is the busy/capture-time ratio above which a window is
	// flagged too slow. Default 0.95: flag just before the pipeline
	// actually falls behind real time.
	Margin float64

	// Sampler, when set, returns a recent composite buffer for the
	// band probe. FFTSize sizes the probe (default 4096).
	Sampler func() []complex64
	FFTSize int

	Reporter Reporter
}

// WindowReport summarizes one monitoring window.
type WindowReport struct {
	Window   int      // 1-based index since start
	Elapsed  time.Duration
	Delta    Snapshot // activity inside this window
	Totals   Snapshot
	AvgCycle time.Duration
	TooSlow  bool
	Band     *dsp.BandReport
}

// Monitor rolls counters into windows. Advance is not safe for
// concurrent use; Run drives it from a single goroutine.
type Monitor struct {
	cfg     Config
	probe   *dsp.Probe
	prev    Snapshot
	last    time.Time
	windows int
}

// New builds a monitor over the given counters, baselined at now.
func New(cfg Config, now time.Time) (*Monitor, error) {
	if cfg.Stats == nil {
		return nil, errors.New("stats are required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Second
	}
	if cfg.Margin <= 0 {
		cfg.Margin = 0.95
	}
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = 4096
	}

	m := &Monitor{
		cfg:  cfg,
		prev: cfg.Stats.Snapshot(),
		last: now,
	}
	if cfg.Sampler != nil {
		m.probe = dsp.NewProbe(cfg.FFTSize)
	}
	return m, nil
}

// Advance closes the window ending at now, reports it and returns it.
func (m *Monitor) Advance(now time.Time) WindowReport {
	cur := m.cfg.Stats.Snapshot()
	delta := cur.Sub(m.prev)
	m.prev = cur
	m.windows++

	r := WindowReport{
		Window:  m.windows,
		Elapsed: now.Sub(m.last),
		Delta:   delta,
		Totals:  cur,
	}
	m.last = now

	if delta.Cycles > 0 {
		r.AvgCycle = delta.Busy / time.Duration(delta.Cycles)
	}
	// Waiting for samples accumulates no busy time, so only actual
	// processing debt can trip the flag.
	if delta.SampleTime > 0 {
		r.TooSlow = float64(delta.Busy) > m.cfg.Margin*float64(delta.SampleTime)
	}

	if m.probe != nil {
		if band, ok := m.probe.Analyze(m.cfg.Sampler()); ok {
			r.Band = &band
		}
	}

	if m.cfg.Reporter != nil {
		m.cfg.Reporter.Report(r)
	}
	return r
}

// Run closes windows on a ticker until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Advance(now)
		}
	}
}
