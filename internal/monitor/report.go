package monitor

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Reporter consumes window reports.
type Reporter interface {
	Report(r WindowReport)
}

// MultiReporter fans reports out to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) Report(r WindowReport) {
	for _, rep := range m {
		if rep != nil {
			rep.Report(r)
		}
	}
}

// ConsoleReporter logs one line per window.
type ConsoleReporter struct {
	logger *slog.Logger
}

// NewConsoleReporter builds a console reporter with the provided logger.
func NewConsoleReporter(logger *slog.Logger) ConsoleReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return ConsoleReporter{logger: logger}
}

func (c ConsoleReporter) Report(r WindowReport) {
	attrs := []any{
		"window", r.Window,
		"cycles", r.Delta.Cycles,
		"frames_found", r.Delta.FramesFound,
		"frames_valid", r.Delta.FramesValid,
		"total_valid", humanize.Comma(int64(r.Totals.FramesValid)),
		"avg_cycle", r.AvgCycle,
	}
	if r.Delta.SampleTime > 0 {
		ratio := float64(r.Delta.Busy) / float64(r.Delta.SampleTime)
		attrs = append(attrs, "busy_ratio", fmt.Sprintf("%.2f", ratio))
	}
	if r.Delta.FramesRepaired > 0 {
		attrs = append(attrs, "frames_repaired", r.Delta.FramesRepaired)
	}
	if r.Delta.FramesDropped > 0 {
		attrs = append(attrs, "frames_dropped", r.Delta.FramesDropped)
	}
	if r.Delta.Discarded > 0 {
		attrs = append(attrs, "cycles_discarded", r.Delta.Discarded)
	}
	if r.Band != nil {
		attrs = append(attrs,
			"peak_dbfs", fmt.Sprintf("%.1f", r.Band.PeakDBFS),
			"noise_floor_dbfs", fmt.Sprintf("%.1f", r.Band.NoiseFloor),
			"snr_db", fmt.Sprintf("%.1f", r.Band.SNR),
		)
	}

	if r.TooSlow {
		c.logger.Warn("processing slower than capture", attrs...)
		return
	}
	c.logger.Info("window", attrs...)
}
