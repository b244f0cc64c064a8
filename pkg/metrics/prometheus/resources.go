package prometheus

import (
	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterBufferPool exports buffer pool occupancy as gauges sampled at
// scrape time. It does nothing when metrics are disabled.
func RegisterBufferPool(pool *bufpool.Pool) {
	if !metrics.IsEnabled() || pool == nil {
		return
	}
	registerBufferPool(metrics.GetRegistry(), pool)
}

func registerBufferPool(reg prometheus.Registerer, pool *bufpool.Pool) {
	gauge := func(name, help string, value func(bufpool.Stats) int64) {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(value(pool.Stats())) },
		)
	}

	gauge("dittowire_bufpool_created", "Pooled buffers created so far",
		func(s bufpool.Stats) int64 { return s.Created })
	gauge("dittowire_bufpool_idle", "Pooled buffers waiting to be lent",
		func(s bufpool.Stats) int64 { return s.Idle })
	gauge("dittowire_bufpool_lent", "Pooled buffers currently on loan",
		func(s bufpool.Stats) int64 { return s.Lent })
	gauge("dittowire_bufpool_temporaries_total", "One-off buffers handed out because the pool was exhausted or the size exceeded the pool buffer size",
		func(s bufpool.Stats) int64 { return s.Temporaries })
}

// RegisterExecutor exports executor activity as gauges sampled at scrape
// time. It does nothing when metrics are disabled.
func RegisterExecutor(exec *executor.Executor) {
	if !metrics.IsEnabled() || exec == nil {
		return
	}
	registerExecutor(metrics.GetRegistry(), exec)
}

func registerExecutor(reg prometheus.Registerer, exec *executor.Executor) {
	gauge := func(name, help string, value func(executor.Stats) int64) {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(value(exec.Stats())) },
		)
	}

	gauge("dittowire_executor_running", "Tasks currently holding a permit",
		func(s executor.Stats) int64 { return s.Running })
	gauge("dittowire_executor_waiting", "Tasks waiting for a permit",
		func(s executor.Stats) int64 { return s.Waiting })
	gauge("dittowire_executor_completed_total", "Tasks finished since start",
		func(s executor.Stats) int64 { return s.Completed })

	promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "dittowire_executor_max_concurrent_tasks",
		Help: "Configured permit count",
	}).Set(float64(exec.MaxConcurrentTasks()))
}
