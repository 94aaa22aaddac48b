// File: shm/domain.go
// Author: momentics <momentics@gmail.com>
//
// Domain lifecycle and the four participant operations: barrier, write,
// read, shutdown. Termination is checked before taking a mutex, right
// after taking it, and after every wait.

package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/api"
)

// Domain is one participant's handle on a shared communication domain.
// The handle itself is process-local; everything the participants share
// lives inside the mapping.
type Domain struct {
	creator   bool
	rank      uint32
	nofProc   uint32
	bufsize   uint64
	extraSize uint64
	name      string

	mem  []byte
	base unsafe.Pointer
	mask *unix.Sigset_t
	log  *zap.Logger
}

// Option customizes Setup and Connect.
type Option func(*Domain)

// WithLogger attaches a logger for lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(d *Domain) { d.log = log }
}

// WithSignalMask blocks the given signals for the duration of every
// critical section this handle enters.
func WithSignalMask(set unix.Sigset_t) Option {
	return func(d *Domain) {
		mask := set
		d.mask = &mask
	}
}

// Setup creates a communication domain for nofProcesses participants with
// one ring of bufsize bytes per recipient and extraSize bytes of
// uninterpreted shared extra space. The backing file is created under the
// system temp directory; its path travels to the other participants via
// Name. Only the creator calls Setup, and the creator is participant 0.
func Setup(bufsize int, nofProcesses int, extraSize int, opts ...Option) (*Domain, error) {
	if bufsize <= 0 || nofProcesses <= 0 || extraSize < 0 {
		return nil, fmt.Errorf("shm: bad domain geometry (bufsize=%d, n=%d, extra=%d)",
			bufsize, nofProcesses, extraSize)
	}
	d := &Domain{
		creator:   true,
		rank:      0,
		nofProc:   uint32(nofProcesses),
		bufsize:   uint64(bufsize),
		extraSize: uint64(extraSize),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	f, err := os.CreateTemp("", ".SHM-*")
	if err != nil {
		return nil, fmt.Errorf("shm: backing file: %w", err)
	}
	d.name = f.Name()
	size := regionSize(d.bufsize, d.nofProc, d.extraSize)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(d.name)
		return nil, fmt.Errorf("shm: sizing backing file: %w", err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	f.Close()
	if err != nil {
		os.Remove(d.name)
		return nil, fmt.Errorf("shm: mapping: %w", err)
	}
	d.mem = mem
	d.base = unsafe.Pointer(&mem[0])

	*d.u64(offNofProc) = uint64(d.nofProc)
	*d.u64(offBufSize) = d.bufsize
	*d.u64(offExtraSize) = d.extraSize
	*d.u64(offExtraOff) = extraOffset(d.bufsize, d.nofProc)
	atomic.StoreUint32(d.terminatingWord(), 0)
	d.hdrMutex().init()
	d.barrierCV().init()
	atomic.StoreUint32(d.syncCount(), 0)
	for rank := uint32(0); rank < d.nofProc; rank++ {
		d.mailbox(rank).initWords()
	}
	// The magic goes in last: a connector that observes it sees a fully
	// initialized region.
	atomic.StoreUint64(d.u64(offMagic), regionMagic)

	d.log.Debug("domain created",
		zap.String("name", d.name),
		zap.Uint32("participants", d.nofProc),
		zap.Uint64("bufsize", d.bufsize))
	return d, nil
}

// Connect attaches to an existing domain by backing-file path and rank.
// The mapping may land at a different address than the creator's; all
// internal offsets are recomputed from this participant's base.
func Connect(name string, rank int, opts ...Option) (*Domain, error) {
	d := &Domain{
		creator: false,
		name:    name,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", name, err)
	}
	if st.Size() < headerSize {
		return nil, api.ErrBadHeader
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mapping %s: %w", name, err)
	}
	d.mem = mem
	d.base = unsafe.Pointer(&mem[0])

	if atomic.LoadUint64(d.u64(offMagic)) != regionMagic {
		unix.Munmap(mem)
		return nil, api.ErrBadHeader
	}
	d.nofProc = uint32(*d.u64(offNofProc))
	d.bufsize = *d.u64(offBufSize)
	d.extraSize = *d.u64(offExtraSize)
	if rank < 0 || uint32(rank) >= d.nofProc {
		unix.Munmap(mem)
		return nil, api.ErrRankOutOfRange
	}
	d.rank = uint32(rank)
	if uint64(st.Size()) < regionSize(d.bufsize, d.nofProc, d.extraSize) {
		unix.Munmap(mem)
		return nil, api.ErrBadHeader
	}
	return d, nil
}

// Free releases this participant's handle. The creator additionally
// unlinks the backing file; the futex words need no destruction.
func (d *Domain) Free() {
	if d.mem != nil {
		_ = unix.Munmap(d.mem)
		d.mem = nil
		d.base = nil
	}
	if d.creator {
		_ = os.Remove(d.name)
	}
}

// Rank returns this participant's rank in [0, N).
func (d *Domain) Rank() int { return int(d.rank) }

// NofProcesses returns the participant count N.
func (d *Domain) NofProcesses() int { return int(d.nofProc) }

// BufSize returns the per-recipient ring capacity in bytes.
func (d *Domain) BufSize() int { return int(d.bufsize) }

// Name returns the path of the backing file.
func (d *Domain) Name() string { return d.name }

// Extra returns the extra-space region, or nil when none was configured.
// Its interpretation is up to the participants.
func (d *Domain) Extra() []byte {
	if d.extraSize == 0 {
		return nil
	}
	off := *d.u64(offExtraOff)
	return d.mem[off : off+d.extraSize]
}

// Terminating reports whether the domain has been shut down.
func (d *Domain) Terminating() bool {
	return atomic.LoadUint32(d.terminatingWord()) != 0
}

// Barrier suspends the caller until all N participants have entered.
// It returns false when the domain is terminating.
func (d *Domain) Barrier() bool {
	if d.Terminating() {
		return false
	}
	sc := d.lock(d.hdrMutex())
	defer d.unlock(d.hdrMutex(), sc)
	if d.Terminating() {
		return false
	}

	count := d.syncCount()
	if *count == 0 {
		*count = d.nofProc - 1
	} else {
		*count--
	}
	if *count == 0 {
		d.barrierCV().broadcast()
		return true
	}
	// A waiter leaves when its own round completes: either the counter
	// has drained or the release broadcast has already happened (a fast
	// participant may start the next round before this one rechecks).
	round := atomic.LoadUint32(d.barrierCV().seq)
	for *count > 0 && atomic.LoadUint32(d.barrierCV().seq) == round {
		d.barrierCV().wait(d.hdrMutex())
		if d.Terminating() {
			return false
		}
	}
	return true
}

// Write sends p to the recipient's mailbox as one atomic message: the
// caller first acquires the mailbox's writing token, then transfers across
// as many ring wraps as needed. Blocks while another sender holds the
// token or the ring is full. Returns false on a bad recipient or when the
// domain terminates mid-operation.
func (d *Domain) Write(recipient int, p []byte) bool {
	if len(p) == 0 {
		return true
	}
	if recipient < 0 || uint32(recipient) >= d.nofProc {
		return false
	}
	if d.Terminating() {
		return false
	}
	box := d.mailbox(uint32(recipient))
	sc := d.lock(box.mutex())
	defer d.unlock(box.mutex(), sc)
	if d.Terminating() {
		return false
	}

	for atomic.LoadUint32(box.writing()) != 0 {
		box.writeAlone().wait(box.mutex())
		if d.Terminating() {
			return false
		}
	}
	atomic.StoreUint32(box.writing(), 1)

	ring := box.ring()
	written := uint64(0)
	total := uint64(len(p))
	ok := true
	for written < total {
		for *box.filled() == d.bufsize {
			box.writable().wait(box.mutex())
			if d.Terminating() {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		count := total - written
		if free := d.bufsize - *box.filled(); count > free {
			count = free
		}
		if untilWrap := d.bufsize - *box.writeIndex(); count > untilWrap {
			count = untilWrap
		}
		copy(ring[*box.writeIndex():*box.writeIndex()+count], p[written:written+count])
		written += count
		*box.writeIndex() = (*box.writeIndex() + count) % d.bufsize
		*box.filled() += count
		box.readable().signal()
	}

	atomic.StoreUint32(box.writing(), 0)
	box.writeAlone().signal()
	return ok
}

// Read receives exactly len(p) bytes from this participant's own mailbox.
// Multiple readers in one process are serialized by the reading token.
// Blocks while the ring is empty. Returns false when the domain
// terminates mid-operation.
func (d *Domain) Read(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	if d.Terminating() {
		return false
	}
	box := d.mailbox(d.rank)
	sc := d.lock(box.mutex())
	defer d.unlock(box.mutex(), sc)
	if d.Terminating() {
		return false
	}

	for atomic.LoadUint32(box.reading()) != 0 {
		box.readAlone().wait(box.mutex())
		if d.Terminating() {
			return false
		}
	}
	atomic.StoreUint32(box.reading(), 1)

	ring := box.ring()
	done := uint64(0)
	total := uint64(len(p))
	ok := true
	for done < total {
		for *box.filled() == 0 {
			box.readable().wait(box.mutex())
			if d.Terminating() {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		count := total - done
		if count > *box.filled() {
			count = *box.filled()
		}
		if untilWrap := d.bufsize - *box.readIndex(); count > untilWrap {
			count = untilWrap
		}
		copy(p[done:done+count], ring[*box.readIndex():*box.readIndex()+count])
		done += count
		*box.readIndex() = (*box.readIndex() + count) % d.bufsize
		*box.filled() -= count
		box.writable().signal()
	}

	atomic.StoreUint32(box.reading(), 0)
	box.readAlone().signal()
	return ok
}

// Shutdown marks the domain terminating and wakes every blocked
// participant. Creator only. Each condition variable is broadcast under
// its mutex so no wake is lost; participants must stay alive until all of
// them have observed the flag.
func (d *Domain) Shutdown() bool {
	if !d.creator {
		return false
	}
	atomic.StoreUint32(d.terminatingWord(), 1)

	sc := d.lock(d.hdrMutex())
	d.barrierCV().broadcast()
	d.unlock(d.hdrMutex(), sc)

	for rank := uint32(0); rank < d.nofProc; rank++ {
		box := d.mailbox(rank)
		sc := d.lock(box.mutex())
		box.readable().broadcast()
		box.writable().broadcast()
		box.writeAlone().broadcast()
		box.readAlone().broadcast()
		d.unlock(box.mutex(), sc)
	}
	d.log.Debug("domain shut down", zap.String("name", d.name))
	return true
}
