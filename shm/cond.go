// File: shm/cond.go
// Author: momentics <momentics@gmail.com>
//
// Process-shared condition variable: a sequence word in the mapping.
// Wakeups may be spurious; waiters re-check their predicate, and every
// notification happens with the associated mutex held.

package shm

import "sync/atomic"

// wakeAll asks the kernel to wake every waiter on a word.
const wakeAll = int(^uint32(0) >> 1)

// fcond is a view of one condition-variable word inside the shared
// mapping.
type fcond struct {
	seq *uint32
}

func (c fcond) init() {
	atomic.StoreUint32(c.seq, 0)
}

// wait atomically releases m, blocks until notified, and reacquires m.
func (c fcond) wait(m fmutex) {
	v := atomic.LoadUint32(c.seq)
	m.unlock()
	futexWait(c.seq, v)
	m.lock()
}

// signal wakes one waiter.
func (c fcond) signal() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, 1)
}

// broadcast wakes every waiter.
func (c fcond) broadcast() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, wakeAll)
}
