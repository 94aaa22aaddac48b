//go:build linux

// File: shm/futex_linux.go
// Author: momentics <momentics@gmail.com>
//
// Cross-process futex wait and wake. The private-futex flag is deliberately
// absent: the words live in a file-backed mapping shared between processes,
// so the kernel must key them by the backing inode.

package shm

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

// futexWait blocks while *addr == val. Spurious returns are expected;
// callers always re-check their predicate.
func futexWait(addr *uint32, val uint32) {
	if atomic.LoadUint32(addr) != val {
		return
	}
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)), futexWaitOp, uintptr(val),
			0, 0, 0)
		switch errno {
		case unix.EINTR:
			if atomic.LoadUint32(addr) != val {
				return
			}
			continue
		default:
			return
		}
	}
}

// futexWake wakes up to n waiters blocked on addr.
func futexWake(addr *uint32, n int) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), futexWakeOp, uintptr(n),
		0, 0, 0)
}
