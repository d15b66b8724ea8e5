package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_pool_hits_total",
		Help: "Total number of successful buffer pool retrievals",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_pool_misses_total",
		Help: "Total number of buffer pool misses (allocations)",
	})

	poolSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_pool_size_bytes",
		Help: "Current total size of buffers in the pool in bytes",
	})

	poolBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_pool_buffers_count",
		Help: "Current total number of buffers in the pool",
	})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_dispatches_total",
		Help: "Total number of batched kernel dispatches by kind",
	}, []string{"kind"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_queue_depth",
		Help: "Number of operations currently queued or executing",
	})
)
