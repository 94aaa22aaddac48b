// File: mux/conn.go
// Author: momentics <momentics@gmail.com>
//
// Per-connection state and the connection-facing operations of the
// multiplexor: Read, Write, Close.

package mux

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/internal/poll"
)

// segment is one pending response: an owned byte buffer plus the count of
// bytes already on the wire. Invariant: pos <= len(buf).
type segment struct {
	buf []byte
	pos int
}

// Conn is one accepted session. A connection exists exactly while it is
// reachable from the multiplexor's list; it is destroyed once eof holds
// and the output queue has drained, at which point the close callback runs
// exactly once.
type Conn struct {
	fd  int
	id  string
	mpx *multiplexor

	// Handle is free for the session service; the multiplexor never
	// touches it.
	Handle any

	eof  bool
	outq *queue.Queue
}

// ID returns the connection's correlation identifier.
func (c *Conn) ID() string { return c.id }

// FD returns the descriptor of the connection, for queries such as
// getpeername(2). It must not be used for I/O.
func (c *Conn) FD() int { return c.fd }

// Global returns the service handle passed to Run.
func (c *Conn) Global() any { return c.mpx.global }

// Read reads the next input packet into p. It must be called exactly once
// per input-callback invocation, and only there. It returns 0 at peer EOF
// and a negative count on error; both mark the connection for destruction
// once pending output has drained.
func (c *Conn) Read(p []byte) int {
	if c.eof {
		return 0
	}
	n, err := poll.Read(c.fd, p)
	if err != nil {
		c.eof = true
		return -1
	}
	if n <= 0 {
		c.eof = true
		return 0
	}
	return n
}

// Write enqueues buf for transmission. Ownership of buf transfers to the
// multiplexor; the bytes go out in enqueue order. Write never blocks. A
// zero-length buf succeeds and is discarded.
func (c *Conn) Write(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	c.outq.Add(&segment{buf: buf})
	return true
}

// Close half-shuts the peer's send side and stops input callbacks for
// this connection. Pending output still drains before teardown.
func (c *Conn) Close() {
	c.eof = true
	_ = unix.Shutdown(c.fd, unix.SHUT_RD)
}

// head returns the segment currently eligible for transmission.
func (c *Conn) head() *segment {
	return c.outq.Peek().(*segment)
}
