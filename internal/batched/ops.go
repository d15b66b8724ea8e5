package batched

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

// Mul computes the batched matrix product A*B: per batch element i,
// C[i] = A[i] @ B[i]. It is Gemm with no transposition, alpha=1, beta=0.
func (m *Matrix) Mul(other *Matrix) (*Matrix, error) {
	return m.Gemm(other, false, false, 1, 0)
}

// Gemm computes the batched generalized multiply: per batch element i,
// C[i] = alpha * op(A[i]) @ op(B[i]) + beta * C[i], where op transposes an
// operand when the corresponding flag is set. The output is a freshly
// allocated owned batch shaped by the effective (post-transpose) dimensions;
// its buffers start zeroed, so beta scales zero.
//
// The whole batch goes to the backend as one dispatch.
func (m *Matrix) Gemm(other *Matrix, transA, transB bool, alpha, beta float32) (*Matrix, error) {
	if m.BatchSize() != other.BatchSize() {
		rejectedTotal.Inc()
		return nil, fmt.Errorf("gemm: batch sizes %d and %d: %w",
			m.BatchSize(), other.BatchSize(), ErrDimensionMismatch)
	}

	effARows, effACols := m.rows, m.cols
	if transA {
		effARows, effACols = m.cols, m.rows
	}
	effBRows, effBCols := other.rows, other.cols
	if transB {
		effBRows, effBCols = other.cols, other.rows
	}

	if effACols != effBRows {
		rejectedTotal.Inc()
		return nil, fmt.Errorf("gemm: inner dimensions %dx%d and %dx%d: %w",
			effARows, effACols, effBRows, effBCols, ErrDimensionMismatch)
	}

	out, err := New(m.backend, m.BatchSize(), effARows, effBCols)
	if err != nil {
		return nil, err
	}

	err = m.backend.DispatchGemm(device.GemmArgs{
		TransA: transA,
		TransB: transB,
		ARows:  m.rows,
		ACols:  m.cols,
		BRows:  other.rows,
		BCols:  other.cols,
		Alpha:  alpha,
		Beta:   beta,
		A:      m.bufs,
		B:      other.bufs,
		C:      out.bufs,
	})
	if err != nil {
		out.Release()
		return nil, err
	}

	opsTotal.WithLabelValues("gemm").Inc()
	opElements.WithLabelValues("gemm").Add(float64(out.BatchSize() * effARows * effBCols))
	return out, nil
}

// Add computes the batched elementwise sum: (A+B)[i](r,c) = A[i](r,c) + B[i](r,c).
func (m *Matrix) Add(other *Matrix) (*Matrix, error) {
	return m.elementwise("add", other, m.backend.DispatchAdd)
}

// Sub computes the batched elementwise difference: (A-B)[i](r,c) = A[i](r,c) - B[i](r,c).
func (m *Matrix) Sub(other *Matrix) (*Matrix, error) {
	return m.elementwise("sub", other, m.backend.DispatchSub)
}

func (m *Matrix) elementwise(op string, other *Matrix, dispatch func(dst, a, b []device.Buffer, n int) error) (*Matrix, error) {
	if m.BatchSize() != other.BatchSize() {
		rejectedTotal.Inc()
		return nil, fmt.Errorf("%s: batch sizes %d and %d: %w",
			op, m.BatchSize(), other.BatchSize(), ErrDimensionMismatch)
	}
	if m.rows != other.rows || m.cols != other.cols {
		rejectedTotal.Inc()
		return nil, fmt.Errorf("%s: shapes %dx%d and %dx%d: %w",
			op, m.rows, m.cols, other.rows, other.cols, ErrDimensionMismatch)
	}

	out, err := New(m.backend, m.BatchSize(), m.rows, m.cols)
	if err != nil {
		return nil, err
	}

	if err := dispatch(out.bufs, m.bufs, other.bufs, m.rows*m.cols); err != nil {
		out.Release()
		return nil, err
	}

	opsTotal.WithLabelValues(op).Inc()
	opElements.WithLabelValues(op).Add(float64(out.BatchSize() * m.rows * m.cols))
	return out, nil
}
