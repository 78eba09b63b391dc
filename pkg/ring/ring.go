// Package ring provides a lock-free single-producer single-consumer FIFO of
// audio samples, bridging a real-time capture callback to a worker goroutine.
package ring

import "sync/atomic"

// Ring is a bounded FIFO of float32 samples shared by exactly one producer
// and exactly one consumer.
//
// The producer goroutine is the sole modifier of writeIdx; the consumer
// goroutine is the sole modifier of readIdx. Both indices are kept modulo
// len(buf), where len(buf) is capacity+1 — the one spare slot distinguishes
// a full ring from an empty one without a separate count.
//
// The producer's store of writeIdx publishes the samples copied before it;
// the consumer's load of writeIdx observes them. With a single producer and
// a single consumer this pair is the only synchronization required.
type Ring struct {
	writeIdx atomic.Uint64
	_        [56]byte // keep the two cursors on separate cache lines
	readIdx  atomic.Uint64
	_        [56]byte

	buf []float32
}

// New creates a ring that can hold capacity samples. The backing array is
// allocated once here; no further allocation happens for the ring's lifetime.
// A capacity below 1 is raised to 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity+1)}
}

// Cap returns the number of samples the ring can hold.
func (r *Ring) Cap() int {
	return len(r.buf) - 1
}

// Write copies all of data into the ring and returns true, or copies nothing
// and returns false if there is not enough free space. A false return is the
// backpressure signal, not an error; the caller drops the block. Writing an
// empty slice returns true. Never blocks and never allocates.
//
// Only safe to call from the single producer goroutine.
func (r *Ring) Write(data []float32) bool {
	if len(data) == 0 {
		return true
	}
	size := uint64(len(r.buf))
	w := r.writeIdx.Load() // producer owns writeIdx
	rd := r.readIdx.Load()

	free := size - 1 - (w-rd+size)%size
	n := uint64(len(data))
	if n > free {
		return false
	}

	first := min(n, size-w)
	copy(r.buf[w:w+first], data[:first])
	if first < n {
		copy(r.buf[0:n-first], data[first:])
	}

	r.writeIdx.Store((w + n) % size)
	return true
}

// Read copies up to len(out) samples into out in FIFO order and returns the
// number of samples actually read. Reading into an empty slice returns 0.
// Never blocks.
//
// Only safe to call from the single consumer goroutine.
func (r *Ring) Read(out []float32) int {
	if len(out) == 0 {
		return 0
	}
	size := uint64(len(r.buf))
	w := r.writeIdx.Load()
	rd := r.readIdx.Load() // consumer owns readIdx

	n := min(uint64(len(out)), (w-rd+size)%size)
	if n == 0 {
		return 0
	}

	first := min(n, size-rd)
	copy(out[:first], r.buf[rd:rd+first])
	if first < n {
		copy(out[first:n], r.buf[0:n-first])
	}

	r.readIdx.Store((rd + n) % size)
	return int(n)
}

// Len returns the number of samples ready to read. Under a concurrent write
// the value may underestimate; it never overestimates for the consumer.
func (r *Ring) Len() int {
	size := uint64(len(r.buf))
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	return int((w - rd + size) % size)
}

// Free returns the number of samples that can be written without overflowing.
func (r *Ring) Free() int {
	return r.Cap() - r.Len()
}
