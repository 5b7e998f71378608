// Command beamreplay streams a recorded capture into a raw-feed
// consumer, for exercising feed handling without live traffic.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

func main() {
	in := flag.String("in", "", "capture file to replay")
	addr := flag.String("addr", "", "raw feed consumer address")
	rate := flag.Float64("rate", 50, "frames per second, 0 replays flat out")
	flag.Parse()

	if *in == "" || *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: beamreplay -in capture.bin.zst -addr host:port")
		os.Exit(2)
	}

	if err := replay(*in, *addr, *rate); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
}

func replay(path, addr string, rate float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer zr.Close()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	var tick <-chan time.Time
	if rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	n := 0
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tick != nil {
			<-tick
		}
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return fmt.Errorf("write after %d frames: %w", n, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read capture: %w", err)
	}

	fmt.Printf("replayed %d frames\n", n)
	return nil
}
