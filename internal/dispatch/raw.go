package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/beam1090/internal/modes"
	"github.com/rjboer/beam1090/internal/monitor"
)

// rawFrameFormat is the classic feed format: one hex frame per line.
const rawFrameFormat = "*%s;\n"

// RawConfig describes a raw TCP feed.
type RawConfig struct {
	Addr              string
	QueueDepth        int           // default 64
	DialTimeout       time.Duration // default 5s
	WriteTimeout      time.Duration // default 5s
	ReconnectInterval time.Duration // first retry delay, default 500ms
	Logger            *slog.Logger
	Stats             *monitor.Stats
}

// RawSink feeds frames to a TCP consumer in the raw line format. The
// connection is managed in the background: while the link is down,
// frames are dropped and counted rather than queued, so nothing from an
// outage is replayed once the consumer returns.
type RawSink struct {
	cfg   RawConfig
	queue chan *modes.Frame
	dial  func() (net.Conn, error)

	nDropped atomic.Uint64
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRawSink starts the feed's connection loop and returns the sink.
func NewRawSink(cfg RawConfig) (*RawSink, error) {
	if cfg.Addr == "" {
		return nil, errors.New("feed address is required")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &RawSink{
		cfg:   cfg,
		queue: make(chan *modes.Frame, cfg.QueueDepth),
		done:  make(chan struct{}),
	}
	s.dial = func() (net.Conn, error) {
		return net.DialTimeout("tcp", cfg.Addr, cfg.DialTimeout)
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Publish hands the frame to the connection loop without blocking. A
// full queue drops the frame.
func (s *RawSink) Publish(f *modes.Frame) error {
	select {
	case s.queue <- f:
	default:
		s.drop(1)
	}
	return nil
}

// Dropped reports frames discarded because the consumer was
// unreachable or too slow.
func (s *RawSink) Dropped() uint64 { return s.nDropped.Load() }

// Close stops the connection loop. Call it once.
func (s *RawSink) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *RawSink) drop(n int) {
	s.nDropped.Add(uint64(n))
	if s.cfg.Stats != nil {
		s.cfg.Stats.AddDropped(n)
	}
}

func (s *RawSink) run() {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInterval
	bo.MaxElapsedTime = 0 // retry for as long as the sink lives

	var conn net.Conn
	var retry <-chan time.Time
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		if conn == nil && retry == nil {
			c, err := s.dial()
			if err != nil {
				wait := bo.NextBackOff()
				s.cfg.Logger.Warn("feed connect failed",
					"addr", s.cfg.Addr, "retry_in", wait, "err", err)
				retry = time.After(wait)
			} else {
				s.cfg.Logger.Info("feed connected", "addr", s.cfg.Addr)
				bo.Reset()
				conn = c
				s.drainStale()
			}
			continue
		}

		select {
		case <-s.done:
			return
		case <-retry:
			retry = nil
		case f := <-s.queue:
			if conn == nil {
				s.drop(1)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if _, err := fmt.Fprintf(conn, rawFrameFormat, f.Hex()); err != nil {
				s.cfg.Logger.Warn("feed write failed, dropping connection", "err", err)
				conn.Close()
				conn = nil
				s.drop(1)
			}
		}
	}
}

// drainStale discards whatever queued up while the link was down, so a
// fresh connection starts with live traffic only.
func (s *RawSink) drainStale() {
	n := 0
	for {
		select {
		case <-s.queue:
			n++
		default:
			if n > 0 {
				s.drop(n)
			}
			return
		}
	}
}
