// File: udpmux/udpmux.go
// Author: momentics <momentics@gmail.com>
//
// The retransmitting event loop. Retransmission is driven entirely by
// elapsed poll cycles without events; there are no wall-clock deadlines.

package udpmux

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/api"
	"github.com/momentics/hioload-mux/endpoint"
	"github.com/momentics/hioload-mux/internal/poll"
)

// Handler is one entry point of a UDP session service.
type Handler func(*Link)

// Handlers is the capability record of a UDP session service. Input is
// mandatory. The open callback, when present, must read the session's
// first datagram; when absent, the input callback is invoked in its place.
type Handlers struct {
	Open  Handler
	Input Handler
	Close Handler
}

// Option customizes a multiplexor run.
type Option func(*multiplexor)

// WithLogger attaches a logger for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(m *multiplexor) { m.log = log }
}

// WithDefaultPort sets the port used when the endpoint text names none.
func WithDefaultPort(port int) Option {
	return func(m *multiplexor) { m.defaultPort = port }
}

type multiplexor struct {
	socket   int
	socketOK bool
	domain   int
	sotype   int
	protocol int

	timeoutMS  int
	maxRetries uint
	h          Handlers
	global     any
	log        *zap.Logger

	defaultPort int
	links       []*Link
	nextTimeout int
	pollfds     []unix.PollFd
	pollls      []*Link
}

// Run binds a datagram socket on endpointText and serves sessions until
// the poll set empties or polling fails. Each outbound packet is
// retransmitted at timeoutMS intervals until any inbound datagram
// acknowledges it or maxRetries transmissions are exhausted, which closes
// the link.
func Run(endpointText string, timeoutMS int, maxRetries uint, h Handlers, global any, opts ...Option) error {
	if h.Input == nil {
		return api.ErrNoInputHandler
	}
	if timeoutMS <= 0 {
		return fmt.Errorf("udpmux: timeout must be positive")
	}
	m := &multiplexor{
		timeoutMS:   timeoutMS,
		maxRetries:  maxRetries,
		h:           h,
		global:      global,
		log:         zap.NewNop(),
		defaultPort: 33013,
	}
	for _, opt := range opts {
		opt(m)
	}

	specs, err := endpoint.Resolve(endpointText, unix.SOCK_DGRAM, m.defaultPort)
	if err != nil {
		return err
	}
	fd, spec, err := endpoint.Bind(specs)
	if err != nil {
		return fmt.Errorf("bind %s: %w", endpointText, err)
	}
	m.socket = fd
	m.socketOK = true
	m.domain = spec.Domain
	m.sotype = spec.Type
	m.protocol = spec.Protocol

	return m.run()
}

func (m *multiplexor) run() error {
	for {
		n := m.setupPolls()
		if n == 0 {
			return nil
		}
		res, err := poll.Wait(m.pollfds[:n], m.nextTimeout)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if res > 0 {
			m.dispatch(n)
		} else {
			m.expire(n)
		}
	}
}

// setupPolls garbage-collects links, then rebuilds the poll set. A link
// subscribes to read unless closed, and to write when its head has never
// been sent or its last send has timed out. The poll timeout is finite
// exactly while some link awaits an acknowledgement.
func (m *multiplexor) setupPolls() int {
	live := m.links[:0]
	for _, l := range m.links {
		if l.outq.Length() > 0 {
			head := l.head()
			if head.attempts >= m.maxRetries {
				// Transmission timeout: the peer is gone.
				l.discardQueue()
				l.closed = true
				m.log.Debug("retry budget exhausted", zap.String("link", l.id))
			} else if head.attempts > 0 && l.closed {
				// No retransmissions while tearing down.
				l.discardHead()
			}
		}
		if l.closed && l.outq.Length() == 0 {
			m.teardown(l)
			continue
		}
		live = append(live, l)
	}
	m.links = live

	n := len(m.links)
	if m.socketOK {
		n++
	}
	if n == 0 {
		return 0
	}
	if cap(m.pollfds) < n {
		m.pollfds = make([]unix.PollFd, n)
		m.pollls = make([]*Link, n)
	}
	m.pollfds = m.pollfds[:0]
	m.pollls = m.pollls[:0]
	if m.socketOK {
		m.pollfds = append(m.pollfds, unix.PollFd{Fd: int32(m.socket), Events: unix.POLLIN})
		m.pollls = append(m.pollls, nil)
	}
	m.nextTimeout = -1
	for _, l := range m.links {
		var events int16
		if !l.closed {
			events |= unix.POLLIN
		}
		if l.outq.Length() > 0 {
			head := l.head()
			if !l.closed && head.attempts > 0 {
				m.nextTimeout = m.timeoutMS
			}
			if head.timeouts == head.attempts {
				events |= unix.POLLOUT
			}
		}
		m.pollfds = append(m.pollfds, unix.PollFd{Fd: int32(l.fd), Events: events})
		m.pollls = append(m.pollls, l)
	}
	return len(m.pollfds)
}

// dispatch handles every ready descriptor in poll-set order.
func (m *multiplexor) dispatch(n int) {
	for i := 0; i < n; i++ {
		revents := m.pollfds[i].Revents
		if revents == 0 {
			continue
		}
		l := m.pollls[i]
		if l == nil {
			m.admit()
			continue
		}
		if !l.closed && revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
			if l.outq.Length() > 0 && l.head().attempts > 0 {
				// Any inbound datagram acknowledges the outstanding head.
				l.discardHead()
			}
			m.h.Input(l)
		}
		if revents&unix.POLLOUT != 0 && l.outq.Length() > 0 {
			m.transmit(l)
		}
	}
}

// expire runs on a poll timeout with no events: every transmitted head
// still awaiting acknowledgement is re-armed for retransmission on the
// next iteration.
func (m *multiplexor) expire(n int) {
	for i := 0; i < n; i++ {
		l := m.pollls[i]
		if l == nil || l.closed || l.outq.Length() == 0 {
			continue
		}
		head := l.head()
		if head.timeouts < head.attempts {
			head.timeouts++
		}
	}
}

// admit synthesizes a link for a datagram waiting on the listening socket
// and hands it to the open callback, which must read that first datagram.
func (m *multiplexor) admit() {
	l := &Link{
		fd:   m.socket,
		id:   uuid.NewString(),
		mpx:  m,
		outq: queue.New(),
	}
	m.links = append(m.links, l)
	m.log.Debug("session opened", zap.String("link", l.id))
	if m.h.Open != nil {
		m.h.Open(l)
	} else {
		m.h.Input(l)
	}
}

// transmit sends the head segment. A head with queued successors is
// dropped after the send (only the latest state is worth retransmitting);
// a sole head is kept with its attempt count bumped until acknowledged.
func (m *multiplexor) transmit(l *Link) {
	head := l.head()
	_, err := poll.Send(l.fd, head.buf)
	if err != nil {
		l.closed = true
		l.discardQueue()
		return
	}
	if l.outq.Length() > 1 {
		l.discardHead()
	} else {
		head.attempts++
	}
}

// teardown runs once per link: the private descriptor is closed, then the
// close callback fires as the link's final event.
func (m *multiplexor) teardown(l *Link) {
	if l.initialized {
		_ = unix.Close(l.fd)
	}
	m.log.Debug("session closed", zap.String("link", l.id))
	if m.h.Close != nil {
		m.h.Close(l)
	}
}
