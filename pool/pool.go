// Package pool implements the fixed-size buffer pool used to hand the I/O
// loop scratch space for frame decode/encode without an allocation per
// frame on the steady-state path.
//
// Grounded on the teacher's pool/bufferpool.go and pool/base_bufferpool.go
// (channel-backed recycling, grow-on-exhaustion instead of blocking), with
// the NUMA-node sharding and generic Buffer interface trimmed: a client
// session runs one I/O loop on one goroutine, so the teacher's per-NUMA
// shard map serves no purpose here and is replaced by the single bounded
// ring in ring.go.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

// buffer is a pooled byte slice. The zero value is not meaningful; obtain
// one via Pool.Get.
type buffer struct {
	pool *Pool
	b    []byte
}

// Bytes returns the buffer's backing slice, valid until Release is called.
func (buf *buffer) Bytes() []byte { return buf.b }

// Release returns the buffer to its owning pool. It is safe to call
// exactly once; calling it again is a no-op gone wrong only in the sense
// that the buffer may be handed out twice concurrently — callers must not
// retain buf.Bytes() past Release, mirroring the "scoped handle,
// release-on-drop" contract of the buffer pool.
func (buf *buffer) Release() {
	if buf.pool == nil {
		return
	}
	p := buf.pool
	buf.pool = nil
	if cap(buf.b) != p.bufferSize {
		return // only buffers of the pool's size are recycled; let the GC take it
	}
	p.free.tryPush(buf)
}

// Pool is a fixed-size buffer pool: every buffer it hands out has the same
// capacity, and the pool grows by simply allocating fresh buffers when its
// free ring is exhausted (rather than blocking the caller).
type Pool struct {
	bufferSize int
	free       *ring
}

// New creates a pool of buffers of size bytes each, pre-populating it with
// initialCount buffers.
func New(size, initialCount int) *Pool {
	if size <= 0 {
		size = 4096
	}
	if initialCount <= 0 {
		initialCount = 1
	}
	p := &Pool{bufferSize: size, free: newRing(initialCount * 2)}
	for i := 0; i < initialCount; i++ {
		p.free.tryPush(&buffer{pool: nil, b: make([]byte, size)})
	}
	return p
}

// Get returns a buffer of the pool's configured size, either recycled from
// the free ring or freshly allocated when the ring is empty (pool growth).
func (p *Pool) Get() *buffer {
	if b, ok := p.free.tryPop(); ok {
		b.pool = p
		b.b = b.b[:p.bufferSize]
		return b
	}
	return &buffer{pool: p, b: make([]byte, p.bufferSize)}
}

// BufferSize returns the fixed size of buffers this pool hands out.
func (p *Pool) BufferSize() int { return p.bufferSize }
