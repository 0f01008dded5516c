package session

import (
	"strconv"
	"sync/atomic"

	"github.com/momentics/wsclient/protocol"
)

// CloseCode re-exports the protocol package's RFC 6455 close codes at the
// session API boundary, so callers never need to import protocol directly
// just to interpret an OnDisconnect callback.
type CloseCode = protocol.CloseCode

// State is a connection's position in the state machine of §4.9:
// Idle -> Connecting -> Open -> Closing -> Closed, with Reconnecting as a
// side-state entered from Connecting (failed first dial) or Open (I/O
// failure) when auto-reconnect is enabled.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// stateBox is an atomically-swapped State, used so IsConnected() and the
// I/O loop's transitions never need a mutex.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State        { return State(b.v.Load()) }
func (b *stateBox) store(s State)      { b.v.Store(int32(s)) }
func (b *stateBox) cas(old, new State) bool {
	return b.v.CompareAndSwap(int32(old), int32(new))
}
