package batched

import (
	"errors"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

var (
	// ErrDimensionMismatch reports shape or batch-size disagreement between
	// operands, or an invalid constructor shape. Detected host-side before
	// any kernel dispatch; no output buffers are produced.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrOutOfRange reports a caller-supplied buffer shorter than the shape
	// implies. Only returned by the checked constructors; the unchecked
	// constructor leaves sizing to the caller.
	ErrOutOfRange = errors.New("buffer too small for shape")

	// ErrBackendFailure marks errors reported by the numeric backend.
	ErrBackendFailure = device.ErrBackendFailure
)
