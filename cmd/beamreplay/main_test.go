package main

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func writeCapture(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	for _, line := range lines {
		if _, err := zw.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write capture: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestReplayDeliversFrames(t *testing.T) {
	lines := []string{
		"*8D4840D6202CC371C32CE0576098;",
		"*02E197B00179C3;",
	}
	path := writeCapture(t, lines)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var got []string
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			got = append(got, scanner.Text())
			if len(got) == len(lines) {
				break
			}
		}
		received <- got
	}()

	if err := replay(path, ln.Addr().String(), 0); err != nil {
		t.Fatalf("replay: %v", err)
	}

	select {
	case got := <-received:
		if len(got) != len(lines) {
			t.Fatalf("received %d lines, want %d", len(got), len(lines))
		}
		for i := range lines {
			if got[i] != lines[i] {
				t.Errorf("line %d = %q, want %q", i, got[i], lines[i])
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never received the frames")
	}
}

func TestReplayMissingFile(t *testing.T) {
	if err := replay(filepath.Join(t.TempDir(), "absent.zst"), "127.0.0.1:1", 0); err == nil {
		t.Fatal("replay succeeded on a missing capture")
	}
}
