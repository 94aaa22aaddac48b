//go:build !linux

// File: shm/futex_stub.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux placeholder. The communication domain needs cross-process
// futexes; other platforms are not supported.

package shm

func futexWait(addr *uint32, val uint32) {
	panic("shm: process-shared futexes require linux")
}

func futexWake(addr *uint32, n int) {
	panic("shm: process-shared futexes require linux")
}
