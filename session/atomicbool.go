package session

import "sync/atomic"

// atomic32Bool is a small wrapper so Session.autoReconn reads and writes
// without a mutex; AutoReconnect is read by Connect and by the I/O
// failure handler, and written from any caller goroutine via
// SetAutoReconnect.
type atomic32Bool struct {
	v atomic.Int32
}

func (b *atomic32Bool) store(val bool) {
	if val {
		b.v.Store(1)
	} else {
		b.v.Store(0)
	}
}

func (b *atomic32Bool) load() bool {
	return b.v.Load() != 0
}
