package batched

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_batched_ops_total",
		Help: "Total number of batched matrix operations by kind",
	}, []string{"op"})

	opElements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_batched_elements_total",
		Help: "Total number of output elements produced by batched operations",
	}, []string{"op"})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_batched_rejected_total",
		Help: "Total number of operations rejected before dispatch",
	})
)
