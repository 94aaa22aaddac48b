package shm

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupDomain(t *testing.T, bufsize, n, extra int) *Domain {
	t.Helper()
	d, err := Setup(bufsize, n, extra)
	require.NoError(t, err)
	t.Cleanup(d.Free)
	return d
}

func connectDomain(t *testing.T, d *Domain, rank int) *Domain {
	t.Helper()
	c, err := Connect(d.Name(), rank)
	require.NoError(t, err)
	t.Cleanup(c.Free)
	return c
}

func TestSetupConnectGeometry(t *testing.T) {
	d := setupDomain(t, 1024, 3, 128)
	require.Equal(t, 0, d.Rank())
	require.Equal(t, 3, d.NofProcesses())
	require.Equal(t, 1024, d.BufSize())
	require.Len(t, d.Extra(), 128)

	c := connectDomain(t, d, 2)
	require.Equal(t, 2, c.Rank())
	require.Equal(t, 3, c.NofProcesses())
	require.Equal(t, 1024, c.BufSize())
	require.Len(t, c.Extra(), 128)
}

func TestConnectRejectsBadRank(t *testing.T) {
	d := setupDomain(t, 64, 2, 0)
	_, err := Connect(d.Name(), 2)
	require.Error(t, err)
	_, err = Connect(d.Name(), -1)
	require.Error(t, err)
}

func TestConnectRejectsUninitializedFile(t *testing.T) {
	_, err := Connect("/dev/null", 0)
	require.Error(t, err)
}

func TestExtraSpaceIsShared(t *testing.T) {
	d := setupDomain(t, 64, 2, 32)
	c := connectDomain(t, d, 1)
	copy(d.Extra(), "shared-extra")
	require.Equal(t, "shared-extra", string(c.Extra()[:12]))
}

func TestWriteReadRoundtrip(t *testing.T) {
	d := setupDomain(t, 256, 2, 0)
	c := connectDomain(t, d, 1)

	require.True(t, d.Write(1, []byte("hello rank one")))
	got := make([]byte, 14)
	require.True(t, c.Read(got))
	require.Equal(t, "hello rank one", string(got))
}

func TestWriteLargerThanRingWraps(t *testing.T) {
	const bufsize = 64
	d := setupDomain(t, bufsize, 2, 0)
	c := connectDomain(t, d, 1)

	msg := bytes.Repeat([]byte("0123456789"), 40) // 400 bytes, many wraps
	done := make(chan bool, 1)
	go func() {
		done <- d.Write(1, msg)
	}()
	got := make([]byte, len(msg))
	require.True(t, c.Read(got))
	require.Equal(t, msg, got)
	require.True(t, <-done)
}

func TestSenderFIFOPreserved(t *testing.T) {
	d := setupDomain(t, 32, 2, 0)
	c := connectDomain(t, d, 1)

	go func() {
		for i := byte(0); i < 100; i++ {
			d.Write(1, []byte{i, i, i})
		}
	}()
	got := make([]byte, 300)
	require.True(t, c.Read(got))
	for i := 0; i < 100; i++ {
		require.Equal(t, bytes.Repeat([]byte{byte(i)}, 3), got[3*i:3*i+3])
	}
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	const bufsize = 128
	d := setupDomain(t, bufsize, 3, 0)
	w1 := connectDomain(t, d, 1)
	w2 := connectDomain(t, d, 2)
	reader := connectDomain(t, d, 0)

	x := bytes.Repeat([]byte{'a'}, 5*bufsize)
	y := bytes.Repeat([]byte{'b'}, 3*bufsize)

	wrote := make(chan bool, 2)
	go func() { wrote <- w1.Write(0, x) }()
	go func() { wrote <- w2.Write(0, y) }()

	got := make([]byte, len(x)+len(y))
	require.True(t, reader.Read(got))
	require.True(t, <-wrote)
	require.True(t, <-wrote)

	// Each message must appear as one contiguous run.
	runs := 1
	for i := 1; i < len(got); i++ {
		if got[i] != got[i-1] {
			runs++
		}
	}
	require.Equal(t, 2, runs, "messages interleaved: %d runs", runs)
	require.Equal(t, len(x), bytes.Count(got, []byte{'a'}))
	require.Equal(t, len(y), bytes.Count(got, []byte{'b'}))
}

func TestBarrierRounds(t *testing.T) {
	const n = 4
	d := setupDomain(t, 64, n, 0)
	handles := []*Domain{d}
	for rank := 1; rank < n; rank++ {
		handles = append(handles, connectDomain(t, d, rank))
	}

	var afterFirst int32
	var mu sync.Mutex
	firstDoneAtSecond := make([]int32, 0, n)

	var wg sync.WaitGroup
	results := make(chan bool, 2*n)
	for _, h := range handles {
		wg.Add(1)
		go func(h *Domain) {
			defer wg.Done()
			results <- h.Barrier()
			mu.Lock()
			afterFirst++
			mu.Unlock()
			results <- h.Barrier()
			mu.Lock()
			firstDoneAtSecond = append(firstDoneAtSecond, afterFirst)
			mu.Unlock()
		}(h)
	}
	wg.Wait()
	close(results)
	for ok := range results {
		require.True(t, ok)
	}
	// When any second round completes, every participant had finished
	// the first.
	for _, seen := range firstDoneAtSecond {
		require.Equal(t, int32(n), seen)
	}
}

func TestShutdownUnblocksEveryone(t *testing.T) {
	d := setupDomain(t, 64, 3, 0)
	blockedRead := connectDomain(t, d, 1)
	blockedBarrier := connectDomain(t, d, 2)

	readDone := make(chan bool, 1)
	barrierDone := make(chan bool, 1)
	go func() {
		buf := make([]byte, 16)
		readDone <- blockedRead.Read(buf)
	}()
	go func() {
		barrierDone <- blockedBarrier.Barrier()
	}()
	time.Sleep(100 * time.Millisecond)

	require.True(t, d.Shutdown())

	select {
	case ok := <-readDone:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked read survived shutdown")
	}
	select {
	case ok := <-barrierDone:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked barrier survived shutdown")
	}

	require.True(t, d.Terminating())
	require.True(t, blockedRead.Terminating())
	require.False(t, blockedRead.Read(make([]byte, 1)))
	require.False(t, blockedBarrier.Barrier())
	require.False(t, d.Write(1, []byte("late")))
}

func TestShutdownRequiresCreator(t *testing.T) {
	d := setupDomain(t, 64, 2, 0)
	c := connectDomain(t, d, 1)
	require.False(t, c.Shutdown())
	require.False(t, d.Terminating())
}

func TestWriteValidatesRecipient(t *testing.T) {
	d := setupDomain(t, 64, 2, 0)
	require.False(t, d.Write(2, []byte("x")))
	require.False(t, d.Write(-1, []byte("x")))
	require.True(t, d.Write(1, nil))
	require.True(t, d.Read(nil))
}
