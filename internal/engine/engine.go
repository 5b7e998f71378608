// Package engine executes the per-cycle pipeline on a fixed pool of
// workers fed by the aligner: beamform weights, channel combination,
// demodulation, parity checking and dispatch. Each worker keeps its
// cycle state thread local, so no lock is held across a cycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rjboer/beam1090/internal/demod"
	"github.com/rjboer/beam1090/internal/dispatch"
	"github.com/rjboer/beam1090/internal/dsp"
	"github.com/rjboer/beam1090/internal/ingest"
	"github.com/rjboer/beam1090/internal/modes"
	"github.com/rjboer/beam1090/internal/monitor"
)

const defaultSnapshotLen = 4096

type Config struct {
	Workers  int
	Channels int
	Seed     int64
	Spacing  float64   // array spacing in wavelengths; > 0 selects steered mode
	Sweep    dsp.Sweep // steering sweep, steered mode only
	Repair   int       // highest bit count the validator may correct, 0 disables
	Demod    demod.Config

	AddressTTL  time.Duration
	SnapshotLen int // composite samples kept for the spectrum probe

	Logger *slog.Logger
	Stats  *monitor.Stats
}

type Engine struct {
	cfg     Config
	aligner *ingest.Aligner
	sink    *dispatch.Dispatcher
	logger  *slog.Logger
	stats   *monitor.Stats
	addrs   *modes.AddressCache
	steered bool

	snapMu   sync.Mutex
	snapshot []complex64
}

func New(cfg Config, aligner *ingest.Aligner, sink *dispatch.Dispatcher) (*Engine, error) {
	if aligner == nil {
		return nil, errors.New("engine needs an aligner")
	}
	if sink == nil {
		return nil, errors.New("engine needs a dispatcher")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", cfg.Channels)
	}
	if cfg.Repair < 0 || cfg.Repair > 2 {
		return nil, fmt.Errorf("repair budget must be 0..2, got %d", cfg.Repair)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stats == nil {
		cfg.Stats = &monitor.Stats{}
	}
	if cfg.SnapshotLen <= 0 {
		cfg.SnapshotLen = defaultSnapshotLen
	}
	steered := cfg.Spacing > 0
	if steered && cfg.Sweep == (dsp.Sweep{}) {
		// Scan ±60 degrees unless told otherwise.
		cfg.Sweep = dsp.NewSweep(-math.Pi/3, math.Pi/3, 121)
	}
	return &Engine{
		cfg:     cfg,
		aligner: aligner,
		sink:    sink,
		logger:  cfg.Logger,
		stats:   cfg.Stats,
		addrs:   modes.NewAddressCache(cfg.AddressTTL),
		steered: steered,
	}, nil
}

// Run processes cycles until the sources are exhausted or ctx ends.
// In-flight cycles finish before their workers exit.
func (e *Engine) Run(ctx context.Context) error {
	mode := "random"
	if e.steered {
		mode = "steered"
	}
	e.logger.Info("engine starting",
		"workers", e.cfg.Workers, "channels", e.cfg.Channels, "beam_mode", mode)

	errs := make([]error, e.cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w] = e.worker(ctx, w)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// worker owns its random generator and demodulator. Seeding with the run
// seed plus the worker id keeps draws uncorrelated between workers and
// runs reproducible for a fixed seed.
func (e *Engine) worker(ctx context.Context, id int) error {
	rng := rand.New(rand.NewSource(e.cfg.Seed + int64(id)))
	dm := demod.New(e.cfg.Demod)
	weights := make([]complex64, e.cfg.Channels)
	var composite []complex64
	var mags []float64
	var chans [][]complex64

	for {
		set, err := e.aligner.Acquire(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("worker %d: %w", id, err)
		}

		started := time.Now()
		n := set.Len()
		if cap(composite) < n {
			composite = make([]complex64, n)
			mags = make([]float64, n)
		}
		composite = composite[:n]
		mags = mags[:n]
		chans = chans[:0]
		for _, b := range set.Buffers {
			chans = append(chans, b.IQ)
		}

		if e.steered {
			dsp.SteerWeights(weights, e.cfg.Spacing, e.cfg.Sweep.Theta(set.Seq))
		} else {
			dsp.RandomWeights(rng, weights)
		}
		wrote := dsp.WeightedSum(composite, weights, chans)
		dsp.Magnitudes(mags[:wrote], composite[:wrote])

		ts := set.Timestamp
		candidates := dm.Scan(mags[:wrote])
		e.storeSnapshot(composite[:wrote])
		e.aligner.Release(set)

		valid, repaired := e.deliver(candidates, ts)
		e.stats.AddFrames(len(candidates), valid, repaired)
		e.stats.AddCycle(sampleTime(n), time.Since(started))
	}
}

// deliver runs the parity check over the cycle's candidates, dedupes
// repeats of the same payload, and publishes the survivors.
func (e *Engine) deliver(candidates []demod.Candidate, ts time.Time) (valid, repaired int) {
	if len(candidates) == 0 {
		return 0, 0
	}
	now := time.Now()
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		payload := cand.Payload
		fixed := 0
		ok := modes.Validate(payload)
		if !ok && e.cfg.Repair > 0 && repairableFormat(modes.DF(payload)) {
			fixed = modes.Repair(payload, e.cfg.Repair)
			ok = fixed > 0
		}
		if !ok {
			continue
		}
		if _, dup := seen[string(payload)]; dup {
			continue
		}
		if cand.Confidence() == demod.Tentative {
			e.logger.Debug("tentative candidate validated",
				"ambiguous_bits", cand.Ambiguous, "score", cand.Score)
		}

		df := modes.DF(payload)
		frame := &modes.Frame{
			Payload:   payload,
			DF:        df,
			Long:      modes.LongFormat(df),
			Valid:     true,
			Repaired:  fixed,
			Score:     cand.Score,
			Timestamp: ts,
		}
		if addr, hasAddr := modes.ICAO(payload); hasAddr {
			if fixed > 0 && !e.addrs.Seen(addr, now) {
				// A correction is only trusted when the address it
				// produces has already been heard cleanly.
				continue
			}
			frame.ICAO = addr
			if fixed == 0 {
				e.addrs.Add(addr, now)
			}
		}

		seen[string(payload)] = struct{}{}
		valid++
		if fixed > 0 {
			repaired++
		}
		e.sink.Publish(frame)
	}
	return valid, repaired
}

// storeSnapshot keeps a bounded copy of the latest composite for the
// monitor's spectrum probe.
func (e *Engine) storeSnapshot(composite []complex64) {
	n := min(len(composite), e.cfg.SnapshotLen)
	e.snapMu.Lock()
	if cap(e.snapshot) < n {
		e.snapshot = make([]complex64, n)
	}
	e.snapshot = e.snapshot[:n]
	copy(e.snapshot, composite[:n])
	e.snapMu.Unlock()
}

// Sampler returns a copy of the latest composite snapshot, empty until
// the first cycle completes. Its shape matches the monitor's Sampler
// hook.
func (e *Engine) Sampler() []complex64 {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return append([]complex64(nil), e.snapshot...)
}

// repairableFormat limits corrections to downlink formats whose address
// field can confirm the fix.
func repairableFormat(df uint8) bool {
	return df == 11 || df == 17 || df == 18
}

func sampleTime(n int) time.Duration {
	return time.Duration(n) * time.Second / modes.SampleRate
}
