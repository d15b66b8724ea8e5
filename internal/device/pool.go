package device

import (
	"math"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// bufferPoolEntry represents a pooled device buffer
type bufferPoolEntry struct {
	buf  *memory.Buffer
	size int // in bytes
}

// bufferPool keeps released buffers in log2-sized buckets for reuse. Buffers
// returned while work may still be in flight go to a pending list first and
// only become reusable once the owning queue reports completion.
type bufferPool struct {
	mu             sync.Mutex
	buckets        map[int][]bufferPoolEntry // Safe to reuse
	pendingBuckets map[int][]bufferPoolEntry // In flight on the queue
	completed      func() bool
}

func getBucket(size int) int {
	if size <= 0 {
		return 0
	}
	// Use log2 to determine bucket. E.g., 1-2 bytes -> bucket 1, 3-4 bytes -> bucket 2, 5-8 bytes -> bucket 3, etc.
	return int(math.Ceil(math.Log2(float64(size))))
}

func newBufferPool(completed func() bool) *bufferPool {
	return &bufferPool{
		buckets:        make(map[int][]bufferPoolEntry),
		pendingBuckets: make(map[int][]bufferPoolEntry),
		completed:      completed,
	}
}

// get returns a pooled buffer of at least sizeBytes, or nil on a miss.
func (p *bufferPool) get(sizeBytes int) *memory.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Drain pending buffers if the queue is idle
	if p.completed() {
		for bucket, entries := range p.pendingBuckets {
			p.buckets[bucket] = append(p.buckets[bucket], entries...)
		}
		p.pendingBuckets = make(map[int][]bufferPoolEntry)
	}

	bucket := getBucket(sizeBytes)
	for i := bucket; i <= bucket+2; i++ {
		list := p.buckets[i]
		if len(list) > 0 {
			bestIdx := -1
			for idx, entry := range list {
				if entry.size >= sizeBytes {
					if bestIdx == -1 || entry.size < list[bestIdx].size {
						bestIdx = idx
					}
				}
			}
			if bestIdx != -1 {
				buf := list[bestIdx].buf
				size := list[bestIdx].size
				p.buckets[i] = append(list[:bestIdx], list[bestIdx+1:]...)

				// Metrics: Hit
				poolHits.Inc()
				poolSizeBytes.Sub(float64(size))
				poolBuffers.Dec()

				return buf
			}
		}
	}

	// Metrics: Miss
	poolMisses.Inc()
	return nil
}

// put returns a buffer to the pool's pending list.
func (p *bufferPool) put(buf *memory.Buffer, sizeBytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := getBucket(sizeBytes)
	p.pendingBuckets[bucket] = append(p.pendingBuckets[bucket], bufferPoolEntry{buf: buf, size: sizeBytes})

	// Metrics: Return
	poolSizeBytes.Add(float64(sizeBytes))
	poolBuffers.Inc()
}

// drain releases every pooled buffer back to the allocator.
func (p *bufferPool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entries := range p.pendingBuckets {
		for _, e := range entries {
			poolSizeBytes.Sub(float64(e.size))
			poolBuffers.Dec()
			e.buf.Release()
		}
	}
	p.pendingBuckets = make(map[int][]bufferPoolEntry)

	for _, entries := range p.buckets {
		for _, e := range entries {
			poolSizeBytes.Sub(float64(e.size))
			poolBuffers.Dec()
			e.buf.Release()
		}
	}
	p.buckets = make(map[int][]bufferPoolEntry)
}
