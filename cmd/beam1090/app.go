package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rjboer/beam1090/internal/aircraft"
	"github.com/rjboer/beam1090/internal/archive"
	"github.com/rjboer/beam1090/internal/boardsync"
	"github.com/rjboer/beam1090/internal/config"
	"github.com/rjboer/beam1090/internal/demod"
	"github.com/rjboer/beam1090/internal/discovery"
	"github.com/rjboer/beam1090/internal/dispatch"
	"github.com/rjboer/beam1090/internal/engine"
	"github.com/rjboer/beam1090/internal/ingest"
	"github.com/rjboer/beam1090/internal/monitor"
	"github.com/rjboer/beam1090/internal/telemetry"
)

// run wires the pipeline and blocks until capture ends or ctx is
// canceled. In-flight cycles finish before it returns.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stats := &monitor.Stats{}

	pool, err := ingest.NewPool(poolBuffers(cfg), cfg.Capture.Samples)
	if err != nil {
		return fmt.Errorf("failed to allocate sample pool: %w", err)
	}

	aligner, err := ingest.NewAligner(pool, cfg.Capture.Channels, cfg.Capture.Depth,
		ingest.WithLogger(logger), ingest.WithStats(stats))
	if err != nil {
		return fmt.Errorf("failed to create aligner: %w", err)
	}

	disp, err := buildDispatcher(cfg, logger, stats)
	if err != nil {
		return fmt.Errorf("failed to create sinks: %w", err)
	}
	defer func() {
		if err := disp.Close(); err != nil {
			logger.Warn("sink close failed", "err", err)
		}
	}()

	var trk *aircraft.Tracker
	if cfg.Sinks.TrackerEnabled() {
		trk = aircraft.NewTracker(0, 0, logger)
		disp.Add(trk)
	}
	if cfg.Sinks.HTTP != "" {
		hub := telemetry.NewHub(0)
		disp.Add(hub)
		web := telemetry.NewServer(cfg.Sinks.HTTP, hub, trk, stats, logger)
		go web.Start(ctx)
		logger.Info("serving live view", "addr", cfg.Sinks.HTTP)
	}

	eng, err := engine.New(engineConfig(cfg, logger, stats), aligner, disp)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	reporters := monitor.MultiReporter{monitor.NewConsoleReporter(logger)}
	if cfg.Monitor.Metrics != "" {
		prom := monitor.NewPromReporter()
		reporters = append(reporters, prom)

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: cfg.Monitor.Metrics, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.Monitor.Metrics)
	}

	mon, err := monitor.New(monitor.Config{
		Stats:    stats,
		Window:   cfg.Monitor.Window(),
		Margin:   cfg.Monitor.Margin,
		Sampler:  eng.Sampler,
		FFTSize:  cfg.Monitor.FFTSize,
		Reporter: reporters,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	// The rig must be started before streaming so every source's first
	// sample lands on the shared trigger edge.
	rig, err := buildRig(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build rig: %w", err)
	}
	if rig != nil {
		if err := rig.Start(ctx); err != nil {
			return fmt.Errorf("failed to start rig: %w", err)
		}
		defer rig.Close()
	}

	sources, err := buildSources(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}

	if cfg.Capture.FrequencyOffsetHz != 0 {
		logger.Info("front end offset requested", "hz", cfg.Capture.FrequencyOffsetHz)
	}
	logger.Info("pipeline starting",
		"source", cfg.Capture.Source,
		"channels", cfg.Capture.Channels,
		"workers", cfg.Capture.Workers,
		"samples_per_cycle", cfg.Capture.Samples)

	go mon.Run(ctx)

	alignDone := make(chan error, 1)
	go func() { alignDone <- aligner.Run(ctx, sources...) }()

	runErr := eng.Run(ctx)
	alignErr := <-alignDone
	if errors.Is(alignErr, context.Canceled) {
		alignErr = nil
	}
	return errors.Join(runErr, alignErr)
}

// poolBuffers sizes the pool to cover queued cycles, cycles held by the
// workers and the set the readers are filling.
func poolBuffers(cfg *config.Config) int {
	return cfg.Capture.Channels * (cfg.Capture.Depth + cfg.Capture.Workers + 2)
}

func engineConfig(cfg *config.Config, logger *slog.Logger, stats *monitor.Stats) engine.Config {
	ec := engine.Config{
		Workers:  cfg.Capture.Workers,
		Channels: cfg.Capture.Channels,
		Seed:     cfg.Seed,
		Repair:   cfg.Demod.Repair,
		Demod: demod.Config{
			AmbiguityDelta: cfg.Demod.AmbiguityDelta,
			MinContrast:    cfg.Demod.MinContrast,
		},
		Logger: logger,
		Stats:  stats,
	}
	if cfg.Beam.Steered() {
		ec.Spacing = cfg.Beam.Spacing
		ec.Sweep = cfg.Beam.Sweep()
	}
	return ec
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger, stats *monitor.Stats) (*dispatch.Dispatcher, error) {
	disp := dispatch.New(logger)
	if cfg.Sinks.ConsoleEnabled() {
		disp.Add(dispatch.NewConsoleSink(logger))
	}
	if cfg.Sinks.Raw.Address != "" {
		raw, err := dispatch.NewRawSink(dispatch.RawConfig{
			Addr:       cfg.Sinks.Raw.Address,
			QueueDepth: cfg.Sinks.Raw.Queue,
			Logger:     logger,
			Stats:      stats,
		})
		if err != nil {
			disp.Close()
			return nil, fmt.Errorf("raw feed: %w", err)
		}
		disp.Add(raw)
	}
	if cfg.Sinks.MQTT.Broker != "" {
		pub, err := dispatch.NewMQTTSink(dispatch.MQTTConfig{
			Broker:   cfg.Sinks.MQTT.Broker,
			Topic:    cfg.Sinks.MQTT.Topic,
			Username: cfg.Sinks.MQTT.Username,
			Password: cfg.Sinks.MQTT.Password,
			Logger:   logger,
		})
		if err != nil {
			disp.Close()
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		disp.Add(pub)
	}
	if cfg.Sinks.Capture != "" {
		rec, err := dispatch.NewCaptureSink(cfg.Sinks.Capture)
		if err != nil {
			disp.Close()
			return nil, fmt.Errorf("capture file: %w", err)
		}
		disp.Add(rec)
	}
	if cfg.Sinks.Archive != "" {
		store, err := archive.New(archive.Config{Path: cfg.Sinks.Archive})
		if err != nil {
			disp.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		disp.Add(store)
		logger.Info("archiving frames", "path", cfg.Sinks.Archive, "session", store.SessionID())
	}
	return disp, nil
}

func buildSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]ingest.Source, error) {
	switch cfg.Capture.Source {
	case "mock":
		src, err := ingest.NewMockSource(ingest.MockConfig{
			Channels:   cfg.Capture.Channels,
			Seed:       cfg.Seed,
			NoiseLevel: cfg.Capture.Noise,
		})
		if err != nil {
			return nil, err
		}
		return []ingest.Source{src}, nil

	case "net":
		addr := cfg.Capture.Address
		if addr == "" {
			found, err := discoverAddress(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			addr = found
		}
		src := ingest.NewNetSource(addr, 0)
		if err := src.Dial(); err != nil {
			return nil, fmt.Errorf("sample server %s: %w", addr, err)
		}
		if got := src.Channels(); got != cfg.Capture.Channels {
			src.Close()
			return nil, fmt.Errorf("sample server %s streams %d channels, config expects %d",
				addr, got, cfg.Capture.Channels)
		}
		return []ingest.Source{src}, nil
	}
	return nil, fmt.Errorf("unknown capture source %q", cfg.Capture.Source)
}

func discoverAddress(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	service := cfg.Discovery.Service
	if service == "" {
		service = discovery.DefaultService
	}
	browseCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.Timeout())
	defer cancel()

	servers, err := discovery.Browse(browseCtx, service, logger)
	if err != nil {
		return "", fmt.Errorf("discover sample server: %w", err)
	}
	addr := pickServer(servers, cfg.Capture.Channels)
	if addr == "" {
		return "", fmt.Errorf("no sample server advertising %q found", service)
	}
	logger.Info("sample server discovered", "addr", addr)
	return addr, nil
}

// pickServer prefers a server advertising the wanted channel count but
// settles for any reachable one.
func pickServer(servers []discovery.Server, channels int) string {
	for _, s := range servers {
		if s.Channels == channels && s.Addr() != "" {
			return s.Addr()
		}
	}
	for _, s := range servers {
		if a := s.Addr(); a != "" {
			return a
		}
	}
	return ""
}

// buildRig assembles the board coordinator, or nil when no boards are
// configured. In-process boards share one trigger line.
func buildRig(cfg *config.Config, logger *slog.Logger) (*boardsync.Coordinator, error) {
	if len(cfg.Boards) == 0 {
		return nil, nil
	}

	trig := boardsync.NewTrigger()
	var master boardsync.Board
	var slaves []boardsync.Board
	for i, bc := range cfg.Boards {
		name := bc.Name
		if name == "" {
			name = fmt.Sprintf("board%d", i)
		}

		var b boardsync.Board
		if bc.Address == "" {
			b = boardsync.NewSoftBoard(name, trig)
		} else {
			cb := boardsync.NewControlBoard(name, bc.Address)
			cb.SetLogger(logger)
			if err := cb.Dial(); err != nil {
				return nil, fmt.Errorf("board %s: %w", name, err)
			}
			b = cb
		}

		if bc.Role == "master" {
			master = b
		} else {
			slaves = append(slaves, b)
		}
	}
	return boardsync.NewCoordinator(master, slaves, boardsync.WithLogger(logger))
}
