// Command beamscan browses the local network for sample servers and
// prints what it finds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rjboer/beam1090/internal/discovery"
)

func main() {
	timeout := flag.Int("timeout", 5, "browse time in seconds")
	service := flag.String("service", discovery.DefaultService, "service to browse for")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	start := time.Now()
	servers, err := discovery.Browse(ctx, *service, logger)
	elapsed := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "browse failed: %v\n", err)
		os.Exit(1)
	}

	if len(servers) == 0 {
		fmt.Printf("no sample servers found (%s)\n", elapsed)
		return
	}

	fmt.Printf("found %d sample server(s) in %s\n", len(servers), elapsed)
	for i, s := range servers {
		fmt.Printf("#%d %s\n", i+1, s.Instance)
		fmt.Printf("   host     %s\n", s.Hostname)
		fmt.Printf("   addr     %s\n", s.Addr())
		if s.Channels > 0 {
			fmt.Printf("   channels %d\n", s.Channels)
		}
		for _, txt := range s.TXT {
			fmt.Printf("   txt      %s\n", txt)
		}
	}
}
