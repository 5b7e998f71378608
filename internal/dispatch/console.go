package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/rjboer/beam1090/internal/modes"
)

// ConsoleSink logs one line per frame.
type ConsoleSink struct {
	logger *slog.Logger
}

// NewConsoleSink builds a console sink with the provided logger.
func NewConsoleSink(logger *slog.Logger) ConsoleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return ConsoleSink{logger: logger}
}

func (c ConsoleSink) Publish(f *modes.Frame) error {
	attrs := []any{
		"df", f.DF,
		"hex", f.Hex(),
		"score", fmt.Sprintf("%.2f", f.Score),
	}
	if f.ICAO != 0 {
		attrs = append(attrs, "icao", fmt.Sprintf("%06X", f.ICAO))
	}
	if f.Repaired > 0 {
		attrs = append(attrs, "repaired_bits", f.Repaired)
	}
	c.logger.Info("frame", attrs...)
	return nil
}

func (c ConsoleSink) Close() error { return nil }
