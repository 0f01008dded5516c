// Package affinity pins the calling OS thread to a single logical CPU
// core, used by the session's I/O loop to apply an optional CPU pin to
// itself on its first iteration (per this module's concurrency model).
//
// Grounded on the teacher's internal/concurrency affinity_* files, but
// ported off cgo/libnuma/hwloc (internal/concurrency/affinity.go,
// affinity_linux.go) onto the pure-Go golang.org/x/sys syscalls the
// teacher already depends on for its epoll/IOCP reactors — see DESIGN.md
// for why the cgo variants were dropped rather than kept as dead code.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package affinity

// Pin binds the calling goroutine's OS thread to the logical CPU core
// identified by cpuID. The caller is responsible for having called
// runtime.LockOSThread beforehand — Pin does not call it itself, since
// undoing that lock is the caller's responsibility too (the session's
// I/O loop goroutine never returns until the connection closes, so it
// locks once for its entire lifetime rather than per-pin-call).
//
// On platforms without a pinning implementation, Pin returns
// ErrUnsupported and leaves the thread's affinity untouched.
func Pin(cpuID int) error {
	return platformPin(cpuID)
}

// errUnsupported is returned by Pin on platforms with no affinity API.
type errUnsupported struct{}

func (errUnsupported) Error() string { return "affinity: not supported on this platform" }

// ErrUnsupported is returned by Pin when the current platform has no
// thread affinity implementation.
var ErrUnsupported error = errUnsupported{}
