// Package telemetry serves the live HTTP view of the pipeline: recent
// frames, the aircraft table and the counter totals.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rjboer/beam1090/internal/modes"
)

// defaultHistory bounds the frame ring when no limit is given.
const defaultHistory = 500

// Record is the JSON shape of one decoded frame.
type Record struct {
	Time     time.Time `json:"time"`
	DF       uint8     `json:"df"`
	ICAO     string    `json:"icao,omitempty"`
	Hex      string    `json:"hex"`
	Score    float64   `json:"score"`
	Repaired int       `json:"repaired,omitempty"`
}

// Hub keeps a ring of recent frames and fans live updates out to
// subscribers. It satisfies the dispatch sink contract, so it sits in
// the fan-out next to the feeds.
type Hub struct {
	mu          sync.RWMutex
	history     []Record
	limit       int
	subscribers map[chan Record]struct{}
}

// NewHub builds a hub remembering the last limit frames (500 when zero).
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &Hub{
		limit:       limit,
		subscribers: make(map[chan Record]struct{}),
	}
}

// Publish records the frame and pushes it to live listeners. A slow
// listener misses updates rather than stalling the pipeline.
func (h *Hub) Publish(f *modes.Frame) error {
	rec := Record{
		Time:     f.Timestamp,
		DF:       f.DF,
		Hex:      f.Hex(),
		Score:    f.Score,
		Repaired: f.Repaired,
	}
	if f.ICAO != 0 {
		rec.ICAO = fmt.Sprintf("%06X", f.ICAO)
	}

	h.mu.Lock()
	h.history = append(h.history, rec)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
	h.mu.Unlock()
	return nil
}

// Close implements the sink contract.
func (h *Hub) Close() error { return nil }

// History returns a copy of the stored frames.
func (h *Hub) History() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a live listener. The returned func removes it.
func (h *Hub) Subscribe() (chan Record, func()) {
	ch := make(chan Record, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// Replay the ring first so a fresh listener sees traffic at once.
	for _, rec := range h.History() {
		writeEvent(w, rec)
	}
	flusher.Flush()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, rec)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, rec Record) {
	payload, _ := json.Marshal(rec)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
