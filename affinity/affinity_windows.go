//go:build windows

// Package affinity implements Windows thread pinning via
// SetThreadAffinityMask, carried over near-verbatim from the teacher's
// internal/concurrency/affinity_windows.go (already pure-Go, already on
// golang.org/x/sys/windows — nothing to change but the call shape).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package affinity

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread      = modkernel32.NewProc("GetCurrentThread")
)

func platformPin(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: negative cpu id %d", cpuID)
	}

	handle, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << uint(cpuID)
	old, _, err := procSetThreadAffinityMask.Call(handle, mask)
	if old == 0 {
		return fmt.Errorf("affinity: SetThreadAffinityMask(cpu=%d): %w", cpuID, err)
	}
	return nil
}
