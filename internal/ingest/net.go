package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// maxBlockSamples rejects absurd block headers before allocating.
const maxBlockSamples = 1 << 22

// NetSource reads multi-channel sample blocks from a TCP sample server.
//
// The server sends one handshake byte holding its channel count, then a
// stream of blocks: an 8-byte little-endian sequence number, a 4-byte
// sample count, and sample-major interleaved SC16 Q11 payload. One
// NetSource serves every channel on the connection; successive Next
// calls deliver the cached block channel by channel, so a single
// aligner reader drains it.
type NetSource struct {
	Address string
	Timeout time.Duration

	offset   int // channel tag of the connection's first stream
	conn     net.Conn
	channels int
	scratch  []byte

	seq     uint64
	ts      time.Time
	samples int
	next    int
}

// NewNetSource prepares a source for the given address. channelOffset
// shifts the channel tags, letting a second board's streams land after
// the first board's in the aligned set.
func NewNetSource(addr string, channelOffset int) *NetSource {
	return &NetSource{
		Address: addr,
		Timeout: 5 * time.Second,
		offset:  channelOffset,
	}
}

// Dial connects to the sample server and completes the handshake.
func (n *NetSource) Dial() error {
	c, err := net.DialTimeout("tcp", n.Address, n.Timeout)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	return n.SetConn(c)
}

// SetConn injects an established connection (tests, tunnels) and reads
// the handshake byte from it.
func (n *NetSource) SetConn(conn net.Conn) error {
	n.conn = conn
	n.channels = 0
	n.samples = 0

	var hs [1]byte
	n.applyReadDeadline()
	if _, err := io.ReadFull(conn, hs[:]); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	if hs[0] == 0 {
		return errors.New("server advertised zero channels")
	}
	n.channels = int(hs[0])
	n.next = n.channels // force a block read on the first Next
	return nil
}

// Channels reports the stream count advertised by the server. It is
// zero before the handshake.
func (n *NetSource) Channels() int { return n.channels }

// Next fills buf with the next channel of the current block, reading a
// fresh block from the wire once every channel has been delivered.
func (n *NetSource) Next(ctx context.Context, buf *SampleBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.conn == nil || n.channels == 0 {
		return fmt.Errorf("not connected")
	}

	if n.next == n.channels {
		if err := n.readBlock(); err != nil {
			return err
		}
	}

	if n.samples > len(buf.IQ) {
		return fmt.Errorf("block holds %d samples, buffer holds %d", n.samples, len(buf.IQ))
	}
	buf.IQ = buf.IQ[:n.samples]
	if _, err := DecodeSC16Strided(n.scratch, buf.IQ, n.next, n.channels); err != nil {
		return err
	}
	buf.Channel = n.offset + n.next
	buf.Seq = n.seq
	buf.Timestamp = n.ts

	n.next++
	return nil
}

// Close implements Source.
func (n *NetSource) Close() error {
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

func (n *NetSource) readBlock() error {
	var hdr [12]byte
	n.applyReadDeadline()
	if _, err := io.ReadFull(n.conn, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("block header: %w", err)
	}

	seq := binary.LittleEndian.Uint64(hdr[0:8])
	samples := binary.LittleEndian.Uint32(hdr[8:12])
	if samples == 0 || samples > maxBlockSamples {
		return fmt.Errorf("implausible block size %d", samples)
	}

	need := int(samples) * n.channels * 4
	if cap(n.scratch) < need {
		n.scratch = make([]byte, need)
	}
	n.scratch = n.scratch[:need]

	n.applyReadDeadline()
	if _, err := io.ReadFull(n.conn, n.scratch); err != nil {
		return fmt.Errorf("block payload: %w", err)
	}

	n.seq = seq
	n.ts = time.Now()
	n.samples = int(samples)
	n.next = 0
	return nil
}

func (n *NetSource) applyReadDeadline() {
	if n.conn != nil && n.Timeout > 0 {
		_ = n.conn.SetReadDeadline(time.Now().Add(n.Timeout))
	}
}
