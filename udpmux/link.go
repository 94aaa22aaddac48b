// File: udpmux/link.go
// Author: momentics <momentics@gmail.com>
//
// Per-peer link state and the link-facing operations Read, Write, Close.

package udpmux

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/internal/poll"
)

// segment is one pending outbound datagram. attempts counts transmissions
// performed, including the first; timeouts counts poll cycles that elapsed
// without inbound traffic since the last transmission.
type segment struct {
	buf      []byte
	attempts uint
	timeouts uint
}

// Link is one UDP session. While uninitialized it reads through the shared
// listening socket; the first read captures the peer address and replaces
// the descriptor with a private connected socket.
type Link struct {
	fd  int
	id  string
	mpx *multiplexor

	// Handle is free for the session service; the multiplexor never
	// touches it.
	Handle any

	peer        unix.Sockaddr
	closed      bool
	initialized bool
	outq        *queue.Queue
}

// ID returns the link's correlation identifier.
func (l *Link) ID() string { return l.id }

// Global returns the service handle passed to Run.
func (l *Link) Global() any { return l.mpx.global }

// Write enqueues buf as one outbound packet, transferring ownership.
// Only the head of the queue is eligible for transmission and, while
// unacknowledged, for retransmission.
func (l *Link) Write(buf []byte) bool {
	l.outq.Add(&segment{buf: buf})
	return true
}

// Read receives the next datagram into p. It must be called once from the
// open callback (establishing the session) and once per input callback.
// The first call captures the peer address and connects a fresh socket; a
// failure to do so closes the link. Returns 0 on a closed link, a negative
// count on error.
func (l *Link) Read(p []byte) int {
	if l.closed {
		return 0
	}
	var n int
	var err error
	if l.initialized {
		n, err = poll.Read(l.fd, p)
	} else {
		n, err = l.establish(p)
	}
	if err != nil || n < 0 {
		l.closed = true
		return -1
	}
	return n
}

// establish receives the session's first datagram via the shared socket
// and connects a private socket to its sender. The private socket's
// kernel-assigned port identifies the session from here on.
func (l *Link) establish(p []byte) (int, error) {
	n, from, err := unix.Recvfrom(l.mpx.socket, p, 0)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(l.mpx.domain, l.mpx.sotype, l.mpx.protocol)
	if err != nil {
		return -1, err
	}
	if err := unix.Connect(fd, from); err != nil {
		unix.Close(fd)
		return -1, err
	}
	l.fd = fd
	l.peer = from
	l.initialized = true
	return n, nil
}

// Close stops input for this link. Pending packets still attempt one send
// each but are not retransmitted.
func (l *Link) Close() {
	l.closed = true
	if l.initialized {
		_ = unix.Shutdown(l.fd, unix.SHUT_RD)
	}
}

// head returns the segment currently eligible for transmission.
func (l *Link) head() *segment {
	return l.outq.Peek().(*segment)
}

// discardHead drops the queue head.
func (l *Link) discardHead() {
	if l.outq.Length() > 0 {
		l.outq.Remove()
	}
}

// discardQueue drops every pending packet.
func (l *Link) discardQueue() {
	for l.outq.Length() > 0 {
		l.outq.Remove()
	}
}
