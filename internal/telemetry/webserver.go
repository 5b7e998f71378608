package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/rjboer/beam1090/internal/aircraft"
	"github.com/rjboer/beam1090/internal/monitor"
)

// Server exposes the hub and the pipeline tables over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the API server. tracker may be nil, its endpoint
// then serves an empty table.
func NewServer(addr string, hub *Hub, tracker *aircraft.Tracker, stats *monitor.Stats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/live", hub.handleLive)
	mux.HandleFunc("/api/aircraft", handleAircraft(tracker))
	mux.HandleFunc("/api/stats", handleStats(stats))
	mux.HandleFunc("/api/health", handleHealth(stats, time.Now()))

	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins listening and shuts down when the context is canceled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("live view shutdown", "err", err)
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("live view server failed", "err", err)
	}
}

type aircraftRecord struct {
	ICAO      string    `json:"icao"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Frames    int       `json:"frames"`
	Repaired  int       `json:"repaired,omitempty"`
	LastDF    uint8     `json:"lastDf"`
	State     string    `json:"state"`
}

type statsRecord struct {
	Cycles         uint64  `json:"cycles"`
	Discarded      uint64  `json:"discarded,omitempty"`
	FramesFound    uint64  `json:"framesFound"`
	FramesValid    uint64  `json:"framesValid"`
	FramesRepaired uint64  `json:"framesRepaired,omitempty"`
	FramesDropped  uint64  `json:"framesDropped,omitempty"`
	SampleTimeS    float64 `json:"sampleTimeS"`
	BusyS          float64 `json:"busyS"`
}

func statsFrom(snap monitor.Snapshot) statsRecord {
	return statsRecord{
		Cycles:         snap.Cycles,
		Discarded:      snap.Discarded,
		FramesFound:    snap.FramesFound,
		FramesValid:    snap.FramesValid,
		FramesRepaired: snap.FramesRepaired,
		FramesDropped:  snap.FramesDropped,
		SampleTimeS:    snap.SampleTime.Seconds(),
		BusyS:          snap.Busy.Seconds(),
	}
}

func handleAircraft(tracker *aircraft.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		records := []aircraftRecord{}
		if tracker != nil {
			for _, ac := range tracker.Snapshot() {
				records = append(records, aircraftRecord{
					ICAO:      fmt.Sprintf("%06X", ac.ICAO),
					FirstSeen: ac.FirstSeen,
					LastSeen:  ac.LastSeen,
					Frames:    ac.Frames,
					Repaired:  ac.Repaired,
					LastDF:    ac.LastDF,
					State:     ac.State.String(),
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}
}

func handleStats(stats *monitor.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsFrom(stats.Snapshot()))
	}
}

type processInfo struct {
	UptimeS      float64 `json:"uptimeS"`
	NumGoroutine int     `json:"numGoroutine"`
}

type healthStatus struct {
	Status  string      `json:"status"`
	Process processInfo `json:"process"`
	Totals  statsRecord `json:"totals"`
}

func handleHealth(stats *monitor.Stats, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := stats.Snapshot()
		status := "idle"
		if snap.Cycles > 0 {
			status = "ok"
		}
		resp := healthStatus{
			Status: status,
			Process: processInfo{
				UptimeS:      time.Since(started).Seconds(),
				NumGoroutine: runtime.NumGoroutine(),
			},
			Totals: statsFrom(snap),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
