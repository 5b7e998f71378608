package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/beam1090/internal/config"
	"github.com/rjboer/beam1090/internal/discovery"
	"github.com/rjboer/beam1090/internal/ingest"
	"github.com/rjboer/beam1090/internal/monitor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolBuffers(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Channels = 2
	cfg.Capture.Depth = 4
	cfg.Capture.Workers = 3
	if got := poolBuffers(cfg); got != 18 {
		t.Errorf("poolBuffers = %d, want 18", got)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 7
	cfg.Demod.Repair = 1
	ec := engineConfig(cfg, testLogger(), &monitor.Stats{})
	if ec.Spacing != 0 {
		t.Errorf("random mode got spacing %g", ec.Spacing)
	}
	if ec.Seed != 7 || ec.Repair != 1 {
		t.Errorf("config not carried: %+v", ec)
	}

	cfg.Beam.Spacing = 0.5
	cfg.Beam.SweepStart = -60
	cfg.Beam.SweepEnd = 60
	cfg.Beam.SweepSteps = 121
	ec = engineConfig(cfg, testLogger(), &monitor.Stats{})
	if ec.Spacing != 0.5 || ec.Sweep.Steps != 121 {
		t.Errorf("steered config not carried: spacing %g steps %d", ec.Spacing, ec.Sweep.Steps)
	}
}

func TestBuildDispatcherSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sinks.Capture = filepath.Join(dir, "frames.bin.zst")
	cfg.Sinks.Archive = filepath.Join(dir, "frames.db")

	disp, err := buildDispatcher(cfg, testLogger(), &monitor.Stats{})
	if err != nil {
		t.Fatalf("buildDispatcher: %v", err)
	}
	if err := disp.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := os.Stat(cfg.Sinks.Capture); err != nil {
		t.Errorf("capture file not created: %v", err)
	}
}

func TestBuildSourcesMock(t *testing.T) {
	cfg := config.Default()
	sources, err := buildSources(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(sources))
	}
	if _, ok := sources[0].(*ingest.MockSource); !ok {
		t.Errorf("source is %T, want *ingest.MockSource", sources[0])
	}
}

func TestBuildSourcesNetChannelMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte{4}) // server streams four channels
		time.Sleep(200 * time.Millisecond)
	}()

	cfg := config.Default()
	cfg.Capture.Source = "net"
	cfg.Capture.Address = ln.Addr().String()
	cfg.Capture.Channels = 2

	_, err = buildSources(context.Background(), cfg, testLogger())
	if err == nil {
		t.Fatal("buildSources accepted a channel count mismatch")
	}
	if !strings.Contains(err.Error(), "streams 4 channels") {
		t.Errorf("error %q does not mention the advertised count", err)
	}
}

func TestBuildRigNone(t *testing.T) {
	rig, err := buildRig(config.Default(), testLogger())
	if err != nil {
		t.Fatalf("buildRig: %v", err)
	}
	if rig != nil {
		t.Error("got a coordinator with no boards configured")
	}
}

func TestBuildRigSoftBoards(t *testing.T) {
	cfg := config.Default()
	cfg.Boards = []config.BoardConfig{
		{Name: "east", Role: "master", Clock: "internal"},
		{Name: "west", Role: "slave", Clock: "external"},
	}

	rig, err := buildRig(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildRig: %v", err)
	}
	if rig == nil {
		t.Fatal("no coordinator built")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rig.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rig.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPickServer(t *testing.T) {
	servers := []discovery.Server{
		{Hostname: "a.local.", Addresses: []net.IP{net.IPv4(10, 0, 0, 1)}, Port: 30007, Channels: 2},
		{Hostname: "b.local.", Addresses: []net.IP{net.IPv4(10, 0, 0, 2)}, Port: 30007, Channels: 4},
	}
	if got := pickServer(servers, 4); got != "10.0.0.2:30007" {
		t.Errorf("pickServer(4) = %q", got)
	}
	if got := pickServer(servers, 8); got != "10.0.0.1:30007" {
		t.Errorf("pickServer(8) = %q, want first reachable", got)
	}
	if got := pickServer(nil, 2); got != "" {
		t.Errorf("pickServer(none) = %q, want empty", got)
	}
}
