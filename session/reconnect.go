package session

import "time"

// reconnectController tracks backoff state across reconnect attempts, per
// §4.9: the Nth attempt waits N*1s before dialing, and the counter resets
// to zero the moment a connection reaches Open. Grounded on the teacher's
// client.connect loop (client/client.go), which multiplies attempts by a
// fixed unit delay the same way, generalized from its 100ms unit to the
// second-granularity backoff this module's specification requires.
type reconnectController struct {
	maxAttempts int
	attempt     int
}

func newReconnectController(maxAttempts int) *reconnectController {
	return &reconnectController{maxAttempts: maxAttempts}
}

// next reports whether another attempt should be made and, if so, how
// long to wait before making it. ok is false once maxAttempts (0 means
// unlimited) has been exhausted.
func (r *reconnectController) next() (delay time.Duration, ok bool) {
	if r.maxAttempts > 0 && r.attempt >= r.maxAttempts {
		return 0, false
	}
	r.attempt++
	return time.Duration(r.attempt) * time.Second, true
}

// reset clears the attempt counter, called once a dial succeeds.
func (r *reconnectController) reset() {
	r.attempt = 0
}

func (r *reconnectController) attemptsMade() int {
	return r.attempt
}
