// Package batched implements dense matrix batches: ordered collections of
// equally-shaped row-major matrices held in separate device buffers, with
// arithmetic that issues a single batched kernel dispatch per operation.
package batched

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

// Matrix is a batch of equally-shaped dense float32 matrices. Each batch
// element lives in its own device buffer holding rows*cols elements in
// row-major order.
//
// A Matrix either owns its buffers (results of operations, New, FromSlices)
// or references caller-supplied ones (FromBuffers). Release frees owned
// buffers exactly once and never touches referenced ones.
type Matrix struct {
	backend device.Backend
	rows    int
	cols    int
	bufs    []device.Buffer

	owns     bool
	released bool
}

// FromBuffers wraps caller-provided per-element buffers without taking
// ownership. Buffer sizing is not validated: each buffer must hold at least
// rows*cols elements, and behavior is undefined otherwise. Use
// FromBuffersChecked to validate.
func FromBuffers(backend device.Backend, bufs []device.Buffer, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("shape %dx%d: %w", rows, cols, ErrDimensionMismatch)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("empty batch: %w", ErrDimensionMismatch)
	}
	return &Matrix{backend: backend, rows: rows, cols: cols, bufs: bufs}, nil
}

// FromBuffersChecked is FromBuffers plus a per-buffer length check.
func FromBuffersChecked(backend device.Backend, bufs []device.Buffer, rows, cols int) (*Matrix, error) {
	m, err := FromBuffers(backend, bufs, rows, cols)
	if err != nil {
		return nil, err
	}
	need := rows * cols
	for i, b := range bufs {
		if b.Len() < need {
			return nil, fmt.Errorf("batch element %d holds %d elements, shape %dx%d needs %d: %w",
				i, b.Len(), rows, cols, need, ErrOutOfRange)
		}
	}
	return m, nil
}

// New allocates an owned, zeroed batch of batchSize rows x cols matrices.
func New(backend device.Backend, batchSize, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("shape %dx%d: %w", rows, cols, ErrDimensionMismatch)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size %d: %w", batchSize, ErrDimensionMismatch)
	}

	bufs := make([]device.Buffer, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		b, err := backend.NewBuffer(rows * cols)
		if err != nil {
			// No partial batch survives an allocation failure
			for _, prev := range bufs {
				backend.ReleaseBuffer(prev)
			}
			return nil, fmt.Errorf("allocating batch element %d: %w", i, err)
		}
		bufs = append(bufs, b)
	}

	return &Matrix{backend: backend, rows: rows, cols: cols, bufs: bufs, owns: true}, nil
}

// FromSlices uploads host data into a freshly allocated owned batch. Every
// slice must hold exactly rows*cols elements.
func FromSlices(backend device.Backend, data [][]float32, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("shape %dx%d: %w", rows, cols, ErrDimensionMismatch)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty batch: %w", ErrDimensionMismatch)
	}
	need := rows * cols
	for i, d := range data {
		if len(d) != need {
			return nil, fmt.Errorf("batch element %d holds %d elements, shape %dx%d needs %d: %w",
				i, len(d), rows, cols, need, ErrOutOfRange)
		}
	}

	bufs := make([]device.Buffer, 0, len(data))
	for i, d := range data {
		b, err := backend.NewBufferFrom(d)
		if err != nil {
			for _, prev := range bufs {
				backend.ReleaseBuffer(prev)
			}
			return nil, fmt.Errorf("uploading batch element %d: %w", i, err)
		}
		bufs = append(bufs, b)
	}

	return &Matrix{backend: backend, rows: rows, cols: cols, bufs: bufs, owns: true}, nil
}

// Shape returns the per-element dimensions (rows, cols).
func (m *Matrix) Shape() (int, int) {
	return m.rows, m.cols
}

// BatchSize returns the number of matrices in the batch.
func (m *Matrix) BatchSize() int {
	return len(m.bufs)
}

// Buffers returns the ordered per-element buffer handles, in construction
// order.
func (m *Matrix) Buffers() []device.Buffer {
	return m.bufs
}

// At returns the buffer backing batch element i.
func (m *Matrix) At(i int) device.Buffer {
	return m.bufs[i]
}

// Release frees owned buffers. It is idempotent: owned buffers are returned
// to the backend exactly once, and referenced buffers are never released.
func (m *Matrix) Release() {
	if m.released {
		return
	}
	m.released = true
	if m.owns {
		for _, b := range m.bufs {
			m.backend.ReleaseBuffer(b)
		}
	}
	m.bufs = nil
}

// ToHost synchronizes the backend queue and copies every batch element to
// host slices. Deferred kernel errors surface here as ErrBackendFailure.
func (m *Matrix) ToHost() ([][]float32, error) {
	if m.released {
		return nil, fmt.Errorf("ToHost on released matrix")
	}
	if err := m.backend.Synchronize(); err != nil {
		return nil, err
	}

	n := m.rows * m.cols
	out := make([][]float32, len(m.bufs))
	for i, b := range m.bufs {
		host := b.ToHost()
		out[i] = host[:n]
	}
	return out, nil
}
