package pool

import "sync/atomic"

// ring is a bounded, lock-free MPMC free-list used to recycle *buffer
// values between concurrent producer goroutines (returning buffers) and
// the single I/O loop (acquiring them), plus any caller goroutine sending
// messages. It implements Dmitry Vyukov's bounded MPMC queue algorithm,
// the same family this module's core concurrency primitives use elsewhere
// (see queue.MPSC for the unbounded single-consumer sibling of this
// structure), with the capacity-exhaustion case repurposed as "pool needs
// to grow" rather than "caller must retry".
type ring struct {
	head  uint64
	_     [56]byte
	tail  uint64
	_     [56]byte
	mask  uint64
	cells []ringCell
}

type ringCell struct {
	sequence atomic.Uint64
	data     *buffer
}

func newRing(capacity int) *ring {
	size := 2
	for size < capacity {
		size <<= 1
	}
	r := &ring{mask: uint64(size - 1), cells: make([]ringCell, size)}
	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
	}
	return r
}

// tryPush returns false when the ring is at capacity; the caller should
// drop (let the GC reclaim) the buffer in that case rather than block.
func (r *ring) tryPush(b *buffer) bool {
	for {
		tail := atomic.LoadUint64(&r.tail)
		cell := &r.cells[tail&r.mask]
		seq := cell.sequence.Load()
		switch diff := int64(seq) - int64(tail); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.tail, tail, tail+1) {
				cell.data = b
				cell.sequence.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false
		}
	}
}

// tryPop returns ok == false when the ring is currently empty; the caller
// should allocate a fresh buffer in that case.
func (r *ring) tryPop() (b *buffer, ok bool) {
	for {
		head := atomic.LoadUint64(&r.head)
		cell := &r.cells[head&r.mask]
		seq := cell.sequence.Load()
		switch diff := int64(seq) - int64(head+1); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.head, head, head+1) {
				b = cell.data
				cell.data = nil
				cell.sequence.Store(head + r.mask + 1)
				return b, true
			}
		case diff < 0:
			return nil, false
		}
	}
}
