package aircraft

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rjboer/beam1090/internal/modes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frameAt(icao uint32, ts time.Time) *modes.Frame {
	return &modes.Frame{ICAO: icao, DF: 17, Valid: true, Timestamp: ts}
}

func TestTrackerLifecycle(t *testing.T) {
	trk := NewTracker(8, time.Minute, testLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := trk.Publish(frameAt(0x4840D6, base)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	snap := trk.Snapshot()
	if len(snap) != 1 || snap[0].State != StateTentative {
		t.Fatalf("after one frame: %+v", snap)
	}

	trk.Publish(frameAt(0x4840D6, base.Add(time.Second)))
	snap = trk.Snapshot()
	if snap[0].State != StateActive || snap[0].Frames != 2 {
		t.Errorf("after confirmation: %+v", snap[0])
	}
	if !snap[0].FirstSeen.Equal(base) || !snap[0].LastSeen.Equal(base.Add(time.Second)) {
		t.Errorf("seen times: %+v", snap[0])
	}

	// Traffic from another address two minutes on ages the first out.
	trk.Publish(frameAt(0xA1B2C3, base.Add(2*time.Minute)))
	snap = trk.Snapshot()
	if snap[0].State != StateStale {
		t.Errorf("silent aircraft not stale: %+v", snap[0])
	}
	if trk.Active() != 1 {
		t.Errorf("Active = %d, want 1", trk.Active())
	}

	// Hearing it again revives the entry.
	trk.Publish(frameAt(0x4840D6, base.Add(3*time.Minute)))
	snap = trk.Snapshot()
	if snap[0].State != StateActive || snap[0].Frames != 3 {
		t.Errorf("revived entry: %+v", snap[0])
	}
}

func TestTrackerCapacity(t *testing.T) {
	trk := NewTracker(2, time.Minute, testLogger())
	base := time.Now()

	trk.Publish(frameAt(0x000001, base))
	trk.Publish(frameAt(0x000002, base))
	trk.Publish(frameAt(0x000003, base))

	snap := trk.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("table size = %d, want 2", len(snap))
	}
	if snap[0].ICAO != 0x000002 || snap[1].ICAO != 0x000003 {
		t.Errorf("oldest not dropped: %+v", snap)
	}
}

func TestTrackerIgnoresMissingAddress(t *testing.T) {
	trk := NewTracker(8, time.Minute, testLogger())
	if err := trk.Publish(&modes.Frame{DF: 4, Valid: true, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := len(trk.Snapshot()); got != 0 {
		t.Errorf("table size = %d, want 0", got)
	}
}

func TestTrackerCountsRepairs(t *testing.T) {
	trk := NewTracker(8, time.Minute, testLogger())
	now := time.Now()

	trk.Publish(&modes.Frame{ICAO: 0x4840D6, DF: 17, Valid: true, Timestamp: now})
	trk.Publish(&modes.Frame{ICAO: 0x4840D6, DF: 17, Valid: true, Repaired: 1, Timestamp: now.Add(time.Second)})

	snap := trk.Snapshot()
	if snap[0].Frames != 2 || snap[0].Repaired != 1 {
		t.Errorf("counts: %+v", snap[0])
	}
}
