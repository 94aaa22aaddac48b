// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package udpmux emulates session-oriented UDP in the style of TFTP.
//
// A session begins with the first datagram arriving at the shared
// listening socket. From then on the server talks to that peer through a
// freshly connected socket, so the kernel-assigned local port identifies
// the session. Every outbound packet carries a retry budget: an
// unacknowledged head segment is retransmitted each time the poll timeout
// elapses, until any inbound datagram acknowledges it or the budget is
// exhausted and the link is torn down.
package udpmux
