// File: shm/mutex.go
// Author: momentics <momentics@gmail.com>
//
// Process-shared mutex over one futex word in the mapping. Word states:
// 0 unlocked, 1 locked, 2 locked with waiters.

package shm

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// fmutex is a view of one mutex word inside the shared mapping.
type fmutex struct {
	word *uint32
}

func (m fmutex) init() {
	atomic.StoreUint32(m.word, 0)
}

func (m fmutex) lock() {
	if atomic.CompareAndSwapUint32(m.word, 0, 1) {
		return
	}
	c := atomic.LoadUint32(m.word)
	if c != 2 {
		c = atomic.SwapUint32(m.word, 2)
	}
	for c != 0 {
		futexWait(m.word, 2)
		c = atomic.SwapUint32(m.word, 2)
	}
}

func (m fmutex) unlock() {
	if atomic.AddUint32(m.word, ^uint32(0)) != 0 {
		atomic.StoreUint32(m.word, 0)
		futexWake(m.word, 1)
	}
}

// lockScope carries what a masked lock acquisition must restore at
// unlock. The prior mask lives here, in the caller's scope, never in the
// shared region, so nested locks by the same thread compose.
type lockScope struct {
	masked bool
	old    unix.Sigset_t
}

// lock acquires m, first applying the domain's signal mask when one is
// configured. The mask stays in effect for the whole critical section,
// waits included, so a handler for a masked signal cannot re-enter the
// mutex on this thread.
func (d *Domain) lock(m fmutex) lockScope {
	var sc lockScope
	if d.mask != nil {
		runtime.LockOSThread()
		if err := unix.PthreadSigmask(unix.SIG_BLOCK, d.mask, &sc.old); err == nil {
			sc.masked = true
		}
	}
	m.lock()
	return sc
}

// unlock releases m and restores the mask recorded in sc.
func (d *Domain) unlock(m fmutex, sc lockScope) {
	m.unlock()
	if sc.masked {
		_ = unix.PthreadSigmask(unix.SIG_SETMASK, &sc.old, nil)
		runtime.UnlockOSThread()
	}
}
