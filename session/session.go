// File: session/session.go
// Author: momentics <momentics@gmail.com>
//
// Per-session state: the sliding input buffer, the current match, and the
// request-facing operations Scan, Printf, Write and Close.

package session

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/momentics/hioload-mux/buffer"
	"github.com/momentics/hioload-mux/mux"
)

// Session is one framed conversation over a single TCP connection.
type Session struct {
	link *mux.Conn
	svc  *service

	buf     buffer.SlidingBuffer
	match   *regexp2.Match
	request []byte

	// Handle is free for the request handlers; it starts out nil and is
	// typically set by the open callback. Dispose of it in the close
	// callback.
	Handle any
}

// ID returns the underlying connection's correlation identifier.
func (s *Session) ID() string { return s.link.ID() }

// Global returns the service handle passed to Run.
func (s *Session) Global() any { return s.svc.global }

// Request returns the bytes of the current request. Valid only inside the
// request callback; the slice aliases the input buffer.
func (s *Session) Request() []byte { return s.request }

// Scan copies the capture groups of the current match into the given
// buffers, in group order. A nil destination skips its group; a group that
// did not participate yields a zero-length buffer. Scan is valid only
// inside the request callback, at most once per call. It returns the
// number of capture groups in the current match.
func (s *Session) Scan(dsts ...*buffer.Buffer) int {
	groups := s.match.Groups()
	count := len(groups) - 1
	for i := 1; i <= count && i-1 < len(dsts); i++ {
		dst := dsts[i-1]
		if dst == nil {
			continue
		}
		dst.Reset()
		if len(groups[i].Captures) > 0 {
			dst.AppendString(groups[i].String())
		}
	}
	return count
}

// Printf formats a response and enqueues it on the connection. It returns
// the number of bytes enqueued, or a negative count when the connection
// rejected the write.
func (s *Session) Printf(format string, args ...any) int {
	buf := []byte(fmt.Sprintf(format, args...))
	if !s.link.Write(buf) {
		return -1
	}
	return len(buf)
}

// Write enqueues raw response bytes, transferring ownership of buf.
func (s *Session) Write(buf []byte) bool {
	return s.link.Write(buf)
}

// Close ends the session. Pending responses still drain.
func (s *Session) Close() {
	s.link.Close()
}
