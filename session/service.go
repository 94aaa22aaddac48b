// File: session/service.go
// Author: momentics <momentics@gmail.com>
//
// Service setup and the framing input handler layered on the multiplexor.
// Framing runs inside the same event loop, preserving the one-read-per-
// event contract of the multiplexor.

package session

import (
	"fmt"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/api"
	"github.com/momentics/hioload-mux/endpoint"
	"github.com/momentics/hioload-mux/mux"
)

// defaultReadChunk is the minimum spare capacity grown before each read.
const defaultReadChunk = 2048

// Handler is one entry point of a framed session service.
type Handler func(*Session)

// Handlers is the capability record of a framed service. Request is
// mandatory; Open and Close may be nil.
type Handlers struct {
	Open    Handler
	Request Handler
	Close   Handler
}

// Option customizes a service run.
type Option func(*service)

// WithLogger attaches a logger for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(s *service) { s.log = log }
}

// WithDefaultPort sets the port used when the endpoint text names none.
func WithDefaultPort(port int) Option {
	return func(s *service) { s.defaultPort = port }
}

// WithReadChunk overrides the per-read buffer growth.
func WithReadChunk(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.readChunk = n
		}
	}
}

type service struct {
	re          *regexp2.Regexp
	h           Handlers
	global      any
	log         *zap.Logger
	defaultPort int
	readChunk   int
}

// Run resolves endpointText, compiles pattern with multiline semantics and
// serves framed sessions until the multiplexor returns. A pattern or
// endpoint failure is reported before the loop is entered. The service
// handle global is exposed to every session.
func Run(endpointText, pattern string, h Handlers, global any, opts ...Option) error {
	if h.Request == nil {
		return api.ErrNoInputHandler
	}
	svc := &service{
		h:           h,
		global:      global,
		log:         zap.NewNop(),
		defaultPort: 33013,
		readChunk:   defaultReadChunk,
	}
	for _, opt := range opts {
		opt(svc)
	}

	re, err := regexp2.Compile(pattern, regexp2.Multiline)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBadPattern, err)
	}
	svc.re = re

	specs, err := endpoint.Resolve(endpointText, unix.SOCK_STREAM, svc.defaultPort)
	if err != nil {
		return err
	}
	fd, err := endpoint.Listen(specs)
	if err != nil {
		return fmt.Errorf("listen %s: %w", endpointText, err)
	}

	return mux.Run(fd, mux.Handlers{
		Open:  svc.onOpen,
		Input: svc.onInput,
		Close: svc.onClose,
	}, svc, mux.WithLogger(svc.log))
}

func (svc *service) onOpen(link *mux.Conn) {
	s := &Session{link: link, svc: svc}
	link.Handle = s
	if svc.h.Open != nil {
		svc.h.Open(s)
	}
}

// onInput reads one burst and reports every complete request found in
// buffer order before returning to the multiplexor.
func (svc *service) onInput(link *mux.Conn) {
	s := link.Handle.(*Session)

	s.buf.Ready(svc.readChunk)
	n := link.Read(s.buf.Tail())
	if n > 0 {
		s.buf.Extend(n)
	}
	eof := n <= 0

	for s.buf.Offset() < s.buf.Len() {
		window := string(s.buf.Unread())
		m, err := svc.re.FindStringMatch(window)
		if err != nil {
			s.Close()
			return
		}
		if m == nil || m.Index != 0 || len(m.String()) == 0 {
			// No complete request at the cursor. Before EOF that means
			// more input is needed; at EOF the residue can never match.
			if eof {
				s.Close()
			}
			return
		}
		s.match = m
		s.request = s.buf.Unread()[:len(m.String())]
		svc.h.Request(s)
		s.buf.Advance(len(m.String()))
	}
}

func (svc *service) onClose(link *mux.Conn) {
	s, ok := link.Handle.(*Session)
	if !ok {
		return
	}
	if svc.h.Close != nil {
		svc.h.Close(s)
	}
}
