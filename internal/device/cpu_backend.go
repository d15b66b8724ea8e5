package device

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/23skdu/longbow-bodkin/internal/simd"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)
var _ Buffer = (*CPUBuffer)(nil)

// numWorkers defines the default parallelism across batch elements
var numWorkers = runtime.NumCPU()

const elemSize = 4 // float32

type queuedOp struct {
	kind  string
	run   func() error
	after func() // invoked once the op is fully retired
}

// CPUBackend executes batched kernels on an in-order queue backed by BLAS
// (gonum blas32; netlib sgemm when built with cgo). Each backend owns its own
// queue: operations submitted to one backend execute in issue order,
// independent backends have no ordering relationship.
//
// gonum exposes no sgemm_batched, so a gemm dispatch walks the batch inside
// the single queued operation, parallelized across workers. This is a looped
// fallback over a true batched BLAS primitive, traded for portability; it
// still costs one queue submission per logical operation.
type CPUBackend struct {
	alloc    memory.Allocator
	pool     *bufferPool
	queue    chan queuedOp
	done     chan struct{}
	inFlight atomic.Int64

	mu     sync.Mutex // guards closed and queue submission
	closed bool

	errMu sync.Mutex
	err   error
}

func NewCPUBackend() *CPUBackend {
	b := &CPUBackend{
		alloc: memory.NewGoAllocator(),
		queue: make(chan queuedOp, 256),
		done:  make(chan struct{}),
	}
	b.pool = newBufferPool(func() bool {
		return b.inFlight.Load() == 0
	})
	go b.run()
	log.Debug().Int("workers", numWorkers).Msg("CPU backend queue started")
	return b
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

func (b *CPUBackend) run() {
	for op := range b.queue {
		if err := op.run(); err != nil {
			b.recordErr(op.kind, err)
		}
		b.inFlight.Add(-1)
		queueDepth.Dec()
		if op.after != nil {
			op.after()
		}
	}
	close(b.done)
}

func (b *CPUBackend) submit(kind string, run func() error) error {
	return b.submitOp(queuedOp{kind: kind, run: run})
}

func (b *CPUBackend) submitOp(op queuedOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("submit %s on closed backend: %w", op.kind, ErrBackendFailure)
	}
	b.inFlight.Add(1)
	queueDepth.Inc()
	dispatchTotal.WithLabelValues(op.kind).Inc()
	b.queue <- op
	return nil
}

func (b *CPUBackend) recordErr(kind string, err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if b.err == nil {
		b.err = fmt.Errorf("%s kernel: %s: %w", kind, err, ErrBackendFailure)
	}
	log.Error().Err(err).Str("kind", kind).Msg("Deferred kernel error")
}

// wait blocks until every previously queued operation has executed. The
// queue is in-order, so a sentinel running implies all prior work is done.
func (b *CPUBackend) wait() {
	ack := make(chan struct{})
	err := b.submitOp(queuedOp{
		kind:  "sync",
		run:   func() error { return nil },
		after: func() { close(ack) },
	})
	if err != nil {
		return
	}
	<-ack
}

func (b *CPUBackend) Synchronize() error {
	b.wait()

	b.errMu.Lock()
	defer b.errMu.Unlock()
	err := b.err
	b.err = nil
	return err
}

func (b *CPUBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	b.pool.drain()

	b.errMu.Lock()
	defer b.errMu.Unlock()
	err := b.err
	b.err = nil
	return err
}

func (b *CPUBackend) NewBuffer(n int) (Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("alloc of %d elements: %w", n, ErrBackendFailure)
	}

	sizeBytes := n * elemSize
	buf := b.pool.get(sizeBytes)
	if buf == nil {
		buf = memory.NewResizableBuffer(b.alloc)
	}
	buf.Resize(sizeBytes)

	raw := buf.Bytes()
	data := unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(raw))), n)
	// Pooled memory carries stale contents
	for i := range data {
		data[i] = 0.0
	}

	return &CPUBuffer{backend: b, buf: buf, data: data}, nil
}

func (b *CPUBackend) NewBufferFrom(data []float32) (Buffer, error) {
	nb, err := b.NewBuffer(len(data))
	if err != nil {
		return nil, err
	}
	nb.CopyFromFloat32(data)
	return nb, nil
}

func (b *CPUBackend) ReleaseBuffer(buf Buffer) {
	cb, ok := buf.(*CPUBuffer)
	if !ok || cb.buf == nil {
		return // Don't pool foreign or already-released buffers
	}
	b.pool.put(cb.buf, cb.buf.Len())
	cb.buf = nil
	cb.data = nil
}

func (b *CPUBackend) DispatchGemm(args GemmArgs) error {
	if len(args.A) != len(args.B) || len(args.A) != len(args.C) {
		return fmt.Errorf("gemm dispatch: operand batch lengths %d/%d/%d differ: %w",
			len(args.A), len(args.B), len(args.C), ErrBackendFailure)
	}

	tA, tB := blas.NoTrans, blas.NoTrans
	if args.TransA {
		tA = blas.Trans
	}
	if args.TransB {
		tB = blas.Trans
	}

	cRows, cCols := args.ARows, args.BCols
	if args.TransA {
		cRows = args.ACols
	}
	if args.TransB {
		cCols = args.BRows
	}

	return b.submit("gemm", func() error {
		return forEachElement(len(args.A), func(i int) error {
			ad, err := hostData(args.A[i], args.ARows*args.ACols)
			if err != nil {
				return err
			}
			bd, err := hostData(args.B[i], args.BRows*args.BCols)
			if err != nil {
				return err
			}
			cd, err := hostData(args.C[i], cRows*cCols)
			if err != nil {
				return err
			}

			aG := blas32.General{Rows: args.ARows, Cols: args.ACols, Stride: args.ACols, Data: ad}
			bG := blas32.General{Rows: args.BRows, Cols: args.BCols, Stride: args.BCols, Data: bd}
			cG := blas32.General{Rows: cRows, Cols: cCols, Stride: cCols, Data: cd}

			blas32.Gemm(tA, tB, args.Alpha, aG, bG, args.Beta, cG)
			return nil
		})
	})
}

func (b *CPUBackend) DispatchAdd(dst, x, y []Buffer, n int) error {
	return b.dispatchElementwise("add", dst, x, y, n, simd.VecAddInto)
}

func (b *CPUBackend) DispatchSub(dst, x, y []Buffer, n int) error {
	return b.dispatchElementwise("sub", dst, x, y, n, simd.VecSubInto)
}

func (b *CPUBackend) dispatchElementwise(kind string, dst, x, y []Buffer, n int, kernel func(d, a, b []float32)) error {
	if len(dst) != len(x) || len(dst) != len(y) {
		return fmt.Errorf("%s dispatch: operand batch lengths %d/%d/%d differ: %w",
			kind, len(dst), len(x), len(y), ErrBackendFailure)
	}

	return b.submit(kind, func() error {
		return forEachElement(len(dst), func(i int) error {
			d, err := hostData(dst[i], n)
			if err != nil {
				return err
			}
			xs, err := hostData(x[i], n)
			if err != nil {
				return err
			}
			ys, err := hostData(y[i], n)
			if err != nil {
				return err
			}
			kernel(d, xs, ys)
			return nil
		})
	})
}

// forEachElement runs fn across batch indices, chunked over workers.
func forEachElement(n int, fn func(i int) error) error {
	workers := numWorkers
	if n < workers {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	itemsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		start := w * itemsPerWorker
		end := start + itemsPerWorker
		if start >= n {
			break
		}
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// hostData resolves a buffer to its first n host elements.
func hostData(buf Buffer, n int) ([]float32, error) {
	cb, ok := buf.(*CPUBuffer)
	if !ok {
		return nil, fmt.Errorf("mixed-backend buffer %T", buf)
	}
	if cb.data == nil {
		return nil, fmt.Errorf("buffer used after release")
	}
	if len(cb.data) < n {
		return nil, fmt.Errorf("buffer holds %d elements, kernel needs %d", len(cb.data), n)
	}
	return cb.data[:n], nil
}

// CPUBuffer is a host-resident float32 buffer allocated from the arrow
// allocator (64-byte aligned).
type CPUBuffer struct {
	backend *CPUBackend
	buf     *memory.Buffer
	data    []float32
}

func (t *CPUBuffer) Len() int {
	return len(t.data)
}

func (t *CPUBuffer) Data() []float32 {
	return t.data
}

func (t *CPUBuffer) ToHost() []float32 {
	t.backend.wait()

	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out
}

func (t *CPUBuffer) CopyFromFloat32(data []float32) {
	if len(data) != len(t.data) {
		panic("CopyFromFloat32: size mismatch")
	}
	copy(t.data, data)
}
