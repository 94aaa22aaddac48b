// File: mux/mux.go
// Author: momentics <momentics@gmail.com>
//
// The event loop: one poll(2) suspension per iteration, dispatch in
// poll-set order, read before write within a connection.

package mux

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/api"
	"github.com/momentics/hioload-mux/internal/poll"
)

// Handler is one entry point of a session service.
type Handler func(*Conn)

// Handlers is the capability record of a session service. Input is
// mandatory; Open and Close may be nil.
type Handlers struct {
	Open  Handler
	Input Handler
	Close Handler
}

// Option customizes a multiplexor run.
type Option func(*multiplexor)

// WithLogger attaches a logger for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(m *multiplexor) {
		m.log = log
	}
}

type multiplexor struct {
	socket   int
	socketOK bool
	h        Handlers
	global   any
	log      *zap.Logger

	conns   []*Conn
	pollfds []unix.PollFd
	pollcs  []*Conn
}

// Run accepts connections on listenFD and dispatches events until the
// poll set empties or polling fails. The service handle global is exposed
// to every connection. Run blocks; on a healthy listener it runs
// indefinitely.
func Run(listenFD int, h Handlers, global any, opts ...Option) error {
	if h.Input == nil {
		return api.ErrNoInputHandler
	}
	m := &multiplexor{
		socket:   listenFD,
		socketOK: true,
		h:        h,
		global:   global,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m.run()
}

func (m *multiplexor) run() error {
	for {
		n := m.setupPolls()
		if n == 0 {
			return nil
		}
		if _, err := poll.Wait(m.pollfds[:n], -1); err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for i := 0; i < n; i++ {
			revents := m.pollfds[i].Revents
			if revents == 0 {
				continue
			}
			c := m.pollcs[i]
			if c == nil {
				m.accept()
				continue
			}
			if !c.eof && revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
				m.h.Input(c)
			}
			if revents&unix.POLLOUT != 0 && c.outq.Length() > 0 {
				m.flush(c)
			}
		}
	}
}

// setupPolls removes connections that are done, then rebuilds the poll
// set: the listener subscribes to read while accepts have not failed, each
// live connection to read unless eof and to write while output is pending.
func (m *multiplexor) setupPolls() int {
	live := m.conns[:0]
	for _, c := range m.conns {
		if c.eof && c.outq.Length() == 0 {
			m.teardown(c)
			continue
		}
		live = append(live, c)
	}
	m.conns = live

	n := len(m.conns)
	if m.socketOK {
		n++
	}
	if n == 0 {
		return 0
	}
	if cap(m.pollfds) < n {
		m.pollfds = make([]unix.PollFd, n)
		m.pollcs = make([]*Conn, n)
	}
	m.pollfds = m.pollfds[:0]
	m.pollcs = m.pollcs[:0]
	if m.socketOK {
		m.pollfds = append(m.pollfds, unix.PollFd{Fd: int32(m.socket), Events: unix.POLLIN})
		m.pollcs = append(m.pollcs, nil)
	}
	for _, c := range m.conns {
		var events int16
		if !c.eof {
			events |= unix.POLLIN
		}
		if c.outq.Length() > 0 {
			events |= unix.POLLOUT
		}
		m.pollfds = append(m.pollfds, unix.PollFd{Fd: int32(c.fd), Events: events})
		m.pollcs = append(m.pollcs, c)
	}
	return len(m.pollfds)
}

// accept admits one new connection. A failed accept marks the listener
// broken; existing sessions continue to drain.
func (m *multiplexor) accept() {
	fd, _, err := unix.Accept(m.socket)
	if err != nil {
		m.socketOK = false
		m.log.Warn("accept failed, listener retired", zap.Error(err))
		return
	}
	c := &Conn{
		fd:   fd,
		id:   uuid.NewString(),
		mpx:  m,
		outq: queue.New(),
	}
	m.conns = append(m.conns, c)
	m.log.Debug("session opened", zap.String("conn", c.id))
	if m.h.Open != nil {
		m.h.Open(c)
	}
}

// flush writes from the head output segment. A fully written segment is
// released; a failed write destroys the connection.
func (m *multiplexor) flush(c *Conn) {
	head := c.head()
	n, err := poll.Send(c.fd, head.buf[head.pos:])
	if err != nil || n <= 0 {
		c.eof = true
		for c.outq.Length() > 0 {
			c.outq.Remove()
		}
		return
	}
	head.pos += n
	if head.pos == len(head.buf) {
		c.outq.Remove()
	}
}

// teardown runs once per connection: the close callback fires as the
// connection's final event, then the descriptor is closed.
func (m *multiplexor) teardown(c *Conn) {
	m.log.Debug("session closed", zap.String("conn", c.id))
	if m.h.Close != nil {
		m.h.Close(c)
	}
	_ = unix.Close(c.fd)
}
