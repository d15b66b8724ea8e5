package batched

import (
	"math/rand"
	"testing"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

func benchBatch(b *testing.B, backend device.Backend, batch, rows, cols int) *Matrix {
	b.Helper()
	rng := rand.New(rand.NewSource(1))
	data := make([][]float32, batch)
	for i := range data {
		data[i] = randomSlice(rng, rows*cols)
	}
	m, err := FromSlices(backend, data, rows, cols)
	if err != nil {
		b.Fatalf("FromSlices: %v", err)
	}
	return m
}

func BenchmarkMul(b *testing.B) {
	backend := device.NewCPUBackend()
	defer backend.Close()

	const batch, dim = 16, 64
	x := benchBatch(b, backend, batch, dim, dim)
	defer x.Release()
	y := benchBatch(b, backend, batch, dim, dim)
	defer y.Release()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := x.Mul(y)
		if err != nil {
			b.Fatalf("Mul: %v", err)
		}
		if err := backend.Synchronize(); err != nil {
			b.Fatalf("Synchronize: %v", err)
		}
		c.Release()
	}
}

func BenchmarkAdd(b *testing.B) {
	backend := device.NewCPUBackend()
	defer backend.Close()

	const batch, dim = 16, 64
	x := benchBatch(b, backend, batch, dim, dim)
	defer x.Release()
	y := benchBatch(b, backend, batch, dim, dim)
	defer y.Release()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := x.Add(y)
		if err != nil {
			b.Fatalf("Add: %v", err)
		}
		if err := backend.Synchronize(); err != nil {
			b.Fatalf("Synchronize: %v", err)
		}
		c.Release()
	}
}
