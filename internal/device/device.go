package device

// Buffer is a handle to a contiguous device-resident region holding float32
// elements in row-major order.
type Buffer interface {
	// Len returns the capacity of the buffer in elements.
	Len() int

	// Data returns the underlying slice if available on the host (nil otherwise).
	Data() []float32

	// ToHost copies the buffer contents to a fresh Go slice. This is a
	// synchronization point: it waits for all previously issued work that
	// touches the buffer.
	ToHost() []float32

	// CopyFromFloat32 copies data from a Go slice into the buffer. The caller
	// must not have outstanding work against the buffer.
	CopyFromFloat32(data []float32)
}

// GemmArgs describes one batched generalized multiply dispatch:
// for each batch index i, C[i] = Alpha * op(A[i]) @ op(B[i]) + Beta * C[i],
// where op is identity or transpose per the corresponding flag.
//
// ARows/ACols and BRows/BCols are the stored (pre-transpose) dimensions,
// shared by every batch element. The dispatch covers len(A) elements;
// A, B and C must have equal length.
type GemmArgs struct {
	TransA, TransB bool
	ARows, ACols   int
	BRows, BCols   int
	Alpha, Beta    float32
	A, B, C        []Buffer
}

// Backend owns an execution queue and manages device buffers.
//
// Dispatch* methods enqueue one batched kernel covering every batch element
// and return as soon as the work is submitted. Operations submitted to the
// same backend execute in issue order; independent backends have no ordering
// relationship. Kernel errors are deferred and surface from Synchronize (or
// from a host copy), wrapped in ErrBackendFailure. Once submitted, an
// operation runs to completion; there is no cancellation.
type Backend interface {
	Name() string

	// NewBuffer allocates a zeroed buffer of n elements.
	NewBuffer(n int) (Buffer, error)

	// NewBufferFrom allocates a buffer and uploads data into it.
	NewBufferFrom(data []float32) (Buffer, error)

	// ReleaseBuffer returns a buffer to the backend. The buffer must not be
	// used afterwards.
	ReleaseBuffer(b Buffer)

	// DispatchGemm enqueues one batched generalized multiply.
	DispatchGemm(args GemmArgs) error

	// DispatchAdd enqueues one batched elementwise dst = a + b over n
	// elements per batch index.
	DispatchAdd(dst, a, b []Buffer, n int) error

	// DispatchSub enqueues one batched elementwise dst = a - b.
	DispatchSub(dst, a, b []Buffer, n int) error

	// Synchronize blocks until all queued operations are complete and
	// returns the first deferred kernel error, if any.
	Synchronize() error

	// Close drains the queue and releases backend resources.
	Close() error
}
