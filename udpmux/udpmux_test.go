package udpmux

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startService runs a UDP echo-on-open service on a free loopback port.
// The open handler reads the session's first datagram and enqueues it
// back; the input handler drains subsequent datagrams.
func startService(t *testing.T, timeoutMS int, maxRetries uint, closed chan<- string) string {
	t.Helper()
	port := freeUDPPort(t)
	h := Handlers{
		Open: func(l *Link) {
			buf := make([]byte, 512)
			n := l.Read(buf)
			if n <= 0 {
				return
			}
			l.Write(buf[:n])
		},
		Input: func(l *Link) {
			buf := make([]byte, 512)
			l.Read(buf)
		},
		Close: func(l *Link) {
			if closed != nil {
				closed <- l.ID()
			}
		},
	}
	go Run("127.0.0.1", timeoutMS, maxRetries, h, nil, WithDefaultPort(port))
	time.Sleep(100 * time.Millisecond)
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()
	return pc.LocalAddr().(*net.UDPAddr).Port
}

// collect reads datagrams until the line stays silent for the given
// window, returning the payloads in arrival order.
func collect(t *testing.T, pc *net.UDPConn, silence time.Duration) []string {
	t.Helper()
	var got []string
	buf := make([]byte, 512)
	for {
		pc.SetReadDeadline(time.Now().Add(silence))
		n, _, err := pc.ReadFromUDP(buf)
		if err != nil {
			return got
		}
		got = append(got, string(buf[:n]))
	}
}

func TestRetryExhaustionClosesLink(t *testing.T) {
	const timeoutMS = 100
	const maxRetries = 3
	closed := make(chan string, 1)
	addr := startService(t, timeoutMS, maxRetries, closed)

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()
	server, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	_, err = pc.WriteToUDP([]byte("ping"), server)
	require.NoError(t, err)

	// Never acknowledge: the server must send exactly maxRetries
	// identical datagrams, then give up.
	got := collect(t, pc, time.Second)
	require.Len(t, got, maxRetries)
	for _, payload := range got {
		require.Equal(t, "ping", payload)
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close handler never ran after retry exhaustion")
	}
}

func TestAcknowledgementStopsRetransmission(t *testing.T) {
	const timeoutMS = 150
	const maxRetries = 5
	addr := startService(t, timeoutMS, maxRetries, nil)

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()
	server, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	_, err = pc.WriteToUDP([]byte("ping"), server)
	require.NoError(t, err)

	// Wait for the first copy, then acknowledge to the session port.
	buf := make([]byte, 512)
	pc.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, sessionAddr, err := pc.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
	require.NotEqual(t, server.Port, sessionAddr.Port)

	_, err = pc.WriteToUDP([]byte("ack"), sessionAddr)
	require.NoError(t, err)

	// The acknowledged head must not be retransmitted.
	rest := collect(t, pc, time.Duration(3*timeoutMS)*time.Millisecond)
	require.Empty(t, rest)
}

func TestSessionsUseDistinctPorts(t *testing.T) {
	addr := startService(t, 100, 1, nil)

	server, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	ports := make(map[int]bool)
	for i := 0; i < 2; i++ {
		pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		defer pc.Close()
		_, err = pc.WriteToUDP([]byte("hi"), server)
		require.NoError(t, err)
		buf := make([]byte, 64)
		pc.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, from, err := pc.ReadFromUDP(buf)
		require.NoError(t, err)
		require.NotEqual(t, server.Port, from.Port)
		ports[from.Port] = true
	}
	require.Len(t, ports, 2)
}
