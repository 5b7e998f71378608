package dispatch

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/rjboer/beam1090/internal/modes"
)

// CaptureSink appends frames to a zstd-compressed log, one raw-format
// line per frame, so a capture can later be replayed into any raw-feed
// consumer.
type CaptureSink struct {
	mu sync.Mutex
	f  *os.File
	zw *zstd.Encoder
}

// NewCaptureSink creates (or truncates) the capture file.
func NewCaptureSink(path string) (*CaptureSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture file: %w", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture writer: %w", err)
	}
	return &CaptureSink{f: f, zw: zw}, nil
}

func (c *CaptureSink) Publish(f *modes.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zw == nil {
		return errors.New("capture closed")
	}
	_, err := fmt.Fprintf(c.zw, rawFrameFormat, f.Hex())
	return err
}

func (c *CaptureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zw == nil {
		return nil
	}
	zerr := c.zw.Close()
	c.zw = nil
	ferr := c.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
