// File: internal/poll/poll.go
// Author: momentics <momentics@gmail.com>
//
// Thin wrapper around poll(2) for the cooperative event loops. The loops
// rebuild their interest set on every iteration, so plain poll beats a
// stateful epoll registration here.

package poll

import (
	"golang.org/x/sys/unix"
)

// Wait blocks until an event arrives on fds or the timeout elapses.
// timeoutMS < 0 blocks indefinitely. Interrupted waits are retried.
func Wait(fds []unix.PollFd, timeoutMS int) (int, error) {
	for {
		n, err := unix.Poll(fds, timeoutMS)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Read reads from fd into p, retrying on interruption.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Send writes p to fd with MSG_NOSIGNAL, retrying on interruption.
// Writes to a peer-closed socket surface as EPIPE, never as a signal.
func Send(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
