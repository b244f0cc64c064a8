package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittowire/internal/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9998", "Server address")
	concurrency := flag.Int("concurrency", 1000, "Number of keep-alive connections")
	scenarioPath := flag.String("scenario", "", "YAML scenario file (default: hello + delay mix)")
	repeat := flag.Int("repeat", 10000, "Repeat count for each request of the default scenario")
	rate := flag.Uint("rate", 0, "Maximum requests per second across all workers (0 = unlimited)")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	logLevel := flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	logger.SetLevel(*logLevel)

	scenario := defaultScenario(*repeat)
	if *scenarioPath != "" {
		s, err := loadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		scenario = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requests := scenario.plan()
	logger.Info("Sending %d requests over %d connections to %s", len(requests), *concurrency, *addr)

	rep, err := runLoad(ctx, loadConfig{
		Addr:           *addr,
		Concurrency:    *concurrency,
		RatePerSecond:  *rate,
		RequestTimeout: *timeout,
	}, requests)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rep.print(os.Stdout)
}
