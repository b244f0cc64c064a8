package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/internal/ratelimiter"
	"github.com/marmos91/dittowire/pkg/client"
	"github.com/marmos91/dittowire/pkg/protocol"
)

// loadConfig controls one load run.
type loadConfig struct {
	Addr           string
	Concurrency    int
	RatePerSecond  uint
	RequestTimeout time.Duration
}

// report is the aggregated outcome of a load run.
type report struct {
	Planned   int
	OK        int64 // 2xx
	NotFound  int64 // 404
	Other     int64 // any other status
	Failed    int64 // transport errors
	Duration  time.Duration
	Latencies []time.Duration // sorted
}

// Completed counts requests that received a response.
func (r *report) Completed() int64 {
	return r.OK + r.NotFound + r.Other
}

// Throughput is completed requests per second.
func (r *report) Throughput() float64 {
	if r.Duration <= 0 {
		return float64(r.Completed())
	}
	return float64(r.Completed()) / r.Duration.Seconds()
}

// workerResult is what each worker tallies locally before merging.
type workerResult struct {
	ok, notFound, other, failed int64
	latencies                   []time.Duration
}

// runLoad distributes requests over cfg.Concurrency keep-alive connections.
//
// Each worker dials once and pulls requests from a shared queue until it is
// drained. A worker whose connection fails stops; the requests it did not
// take are picked up by the others. A request without keep-alive makes the
// worker redial before its next request.
func runLoad(ctx context.Context, cfg loadConfig, requests []*protocol.Request) (*report, error) {
	queue := make(chan *protocol.Request, len(requests))
	for _, r := range requests {
		queue <- r
	}
	close(queue)

	limiter := ratelimiter.New(cfg.RatePerSecond, max(cfg.RatePerSecond/10, 1))

	var (
		mu      sync.Mutex
		results []workerResult
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < max(cfg.Concurrency, 1); i++ {
		g.Go(func() error {
			res := runWorker(gctx, cfg, limiter, queue)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &report{Planned: len(requests), Duration: time.Since(start)}
	for _, r := range results {
		rep.OK += r.ok
		rep.NotFound += r.notFound
		rep.Other += r.other
		rep.Failed += r.failed
		rep.Latencies = append(rep.Latencies, r.latencies...)
	}
	slices.Sort(rep.Latencies)

	return rep, nil
}

func runWorker(ctx context.Context, cfg loadConfig, limiter *ratelimiter.RateLimiter, queue <-chan *protocol.Request) workerResult {
	var res workerResult
	var c *client.Client
	defer func() {
		if c != nil {
			_ = c.Close()
		}
	}()

	for req := range queue {
		if err := limiter.Wait(ctx); err != nil {
			return res
		}

		if c == nil || c.Closed() {
			var err error
			c, err = client.Dial(ctx, cfg.Addr, client.Options{RequestTimeout: cfg.RequestTimeout})
			if err != nil {
				logger.Debug("worker dial failed: %v", err)
				res.failed++
				return res
			}
		}

		begin := time.Now()
		resp, err := c.Do(ctx, req)
		if err != nil {
			logger.Debug("worker request failed: %v", err)
			res.failed++
			return res
		}
		res.latencies = append(res.latencies, time.Since(begin))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			res.ok++
		case resp.StatusCode == 404:
			res.notFound++
		default:
			res.other++
		}
	}
	return res
}

// percentile returns the nearest-rank p-th percentile of sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

func (r *report) print(w io.Writer) {
	var lo, hi time.Duration
	if len(r.Latencies) > 0 {
		lo, hi = r.Latencies[0], r.Latencies[len(r.Latencies)-1]
	}

	fmt.Fprintln(w, "=== Scenario Load Test Results ===")
	fmt.Fprintf(w, "Total planned: %d\n", r.Planned)
	fmt.Fprintf(w, "Completed:     %d\n", r.Completed())
	fmt.Fprintf(w, "Failed:        %d\n", r.Failed)
	fmt.Fprintf(w, "Duration:      %d ms\n", r.Duration.Milliseconds())
	fmt.Fprintf(w, "Throughput:    %.2f req/s\n", r.Throughput())
	fmt.Fprintf(w, "Status 2xx:    %d\n", r.OK)
	fmt.Fprintf(w, "Status 404:    %d\n", r.NotFound)
	fmt.Fprintf(w, "Status other:  %d\n", r.Other)
	fmt.Fprintf(w, "Latency (ms):  min=%d p50=%d p95=%d p99=%d max=%d\n",
		lo.Milliseconds(),
		percentile(r.Latencies, 50).Milliseconds(),
		percentile(r.Latencies, 95).Milliseconds(),
		percentile(r.Latencies, 99).Milliseconds(),
		hi.Milliseconds())
}
