// Package dispatch fans validated frames out to their consumers: the
// console, network feeds and recorders. Sinks absorb their own
// failures; a broken or slow sink never stalls the demodulation
// pipeline.
package dispatch

import (
	"errors"
	"log/slog"

	"github.com/rjboer/beam1090/internal/modes"
)

// Sink consumes validated frames. Publish must return quickly; sinks
// with slow backends queue internally and drop on overflow.
type Sink interface {
	Publish(f *modes.Frame) error
	Close() error
}

// Dispatcher forwards each frame to every registered sink. A sink
// error is logged, never propagated into the pipeline.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// New builds a dispatcher over the given sinks.
func New(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, s := range sinks {
		d.Add(s)
	}
	return d
}

// Add registers a sink. Not safe to call once Publish is in use.
func (d *Dispatcher) Add(s Sink) {
	if s != nil {
		d.sinks = append(d.sinks, s)
	}
}

// Publish fans the frame out to every sink in registration order. Safe
// for concurrent use when every sink is.
func (d *Dispatcher) Publish(f *modes.Frame) {
	for _, s := range d.sinks {
		if err := s.Publish(f); err != nil {
			d.logger.Warn("sink publish failed", "err", err)
		}
	}
}

// Close closes every sink and joins their errors.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
