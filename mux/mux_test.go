package mux

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/endpoint"
)

// startService binds a loopback listener, runs the multiplexor in the
// background and returns the dialable address.
func startService(t *testing.T, h Handlers, global any) string {
	t.Helper()
	specs, err := endpoint.Resolve("127.0.0.1:0", unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	fd, err := endpoint.Listen(specs)
	require.NoError(t, err)
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	addr := net.TCPAddr{IP: net.IP(sa.(*unix.SockaddrInet4).Addr[:]), Port: sa.(*unix.SockaddrInet4).Port}
	go Run(fd, h, global)
	return addr.String()
}

func TestEchoSingleConnection(t *testing.T) {
	h := Handlers{
		Input: func(c *Conn) {
			buf := make([]byte, 512)
			n := c.Read(buf)
			if n <= 0 {
				return
			}
			require.True(t, c.Write(buf[:n]))
		},
	}
	addr := startService(t, h, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, "ping", string(reply))
}

func TestWriteOrderPreserved(t *testing.T) {
	h := Handlers{
		Input: func(c *Conn) {
			buf := make([]byte, 16)
			if c.Read(buf) <= 0 {
				return
			}
			// Several enqueues must appear on the wire concatenated
			// in enqueue order.
			c.Write([]byte("alpha "))
			c.Write([]byte{})
			c.Write([]byte("beta "))
			c.Write([]byte("gamma\n"))
			c.Close()
		},
	}
	addr := startService(t, h, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("go"))
	require.NoError(t, err)

	all, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Equal(t, "alpha beta gamma\n", string(all))
}

func TestCloseHandlerRunsExactlyOnce(t *testing.T) {
	type tally struct {
		opened, closed int
		lastWasClose   bool
	}
	tl := &tally{}
	done := make(chan struct{})
	h := Handlers{
		Open: func(c *Conn) {
			tl.opened++
			tl.lastWasClose = false
		},
		Input: func(c *Conn) {
			buf := make([]byte, 64)
			c.Read(buf)
			tl.lastWasClose = false
		},
		Close: func(c *Conn) {
			tl.closed++
			tl.lastWasClose = true
			close(done)
		},
	}
	addr := startService(t, h, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("bye"))
	require.NoError(t, err)
	conn.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close handler never ran")
	}
	require.Equal(t, 1, tl.opened)
	require.Equal(t, 1, tl.closed)
	require.True(t, tl.lastWasClose)
}

func TestManyConnectionsInterleaved(t *testing.T) {
	h := Handlers{
		Input: func(c *Conn) {
			buf := make([]byte, 128)
			n := c.Read(buf)
			if n <= 0 {
				return
			}
			c.Write(append([]byte("echo:"), buf[:n]...))
		},
	}
	addr := startService(t, h, nil)

	const sessions = 8
	conns := make([]net.Conn, sessions)
	for i := range conns {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer conn.Close()
		conns[i] = conn
	}
	for i, conn := range conns {
		msg := strings.Repeat("x", i+1)
		_, err := conn.Write([]byte(msg))
		require.NoError(t, err)
	}
	for i, conn := range conns {
		want := "echo:" + strings.Repeat("x", i+1)
		reply := make([]byte, len(want))
		_, err := io.ReadFull(conn, reply)
		require.NoError(t, err)
		require.Equal(t, want, string(reply))
	}
}
