package device

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	m.Write(&metric)
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func TestCPUBackend_PoolMetrics(t *testing.T) {
	backend := NewCPUBackend()
	defer backend.Close()

	// Metrics are global, so track deltas
	startHits := getMetricValue(poolHits)
	startMisses := getMetricValue(poolMisses)

	// 1. Allocate (Miss)
	b1, err := backend.NewBuffer(100 * 100)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if miss := getMetricValue(poolMisses); miss-startMisses != 1 {
		t.Errorf("Expected 1 miss, got %v", miss-startMisses)
	}

	// 2. Return to pool
	backend.ReleaseBuffer(b1)

	// 3. Idle queue, so the pending list drains on the next get (Hit)
	if err := backend.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	b2, err := backend.NewBuffer(100 * 100)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if hits := getMetricValue(poolHits); hits-startHits != 1 {
		t.Errorf("Expected 1 hit, got %v (misses=%v)", hits-startHits, getMetricValue(poolMisses)-startMisses)
	}

	// Pooled memory must come back zeroed
	for i, v := range b2.Data() {
		if v != 0 {
			t.Fatalf("pooled buffer not zeroed at %d: %f", i, v)
		}
	}

	backend.ReleaseBuffer(b2)
}

func TestCPUBackend_ReleasedBufferRejected(t *testing.T) {
	backend := NewCPUBackend()
	defer backend.Close()

	b1, err := backend.NewBuffer(4)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	backend.ReleaseBuffer(b1)
	// Double release is a no-op
	backend.ReleaseBuffer(b1)

	if b1.Data() != nil {
		t.Errorf("released buffer still exposes data")
	}
}
