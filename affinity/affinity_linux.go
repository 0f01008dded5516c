//go:build linux

// Linux thread pinning via sched_setaffinity, replacing the teacher's
// cgo+libnuma implementation with the pure-Go golang.org/x/sys/unix
// binding it already depends on elsewhere.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func platformPin(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: negative cpu id %d", cpuID)
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)

	// Pid 0 means "the calling thread" under Linux's thread-directed
	// sched_setaffinity semantics.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity(cpu=%d): %w", cpuID, err)
	}
	return nil
}
