package journal

import (
	"sync"
	"sync/atomic"

	"github.com/willf/bloom"

	"github.com/cowfs/cowjournal/internal/bufpool"
	"github.com/cowfs/cowjournal/internal/constants"
	"github.com/cowfs/cowjournal/internal/format"
)

// BufferState is a per-buffer lifecycle state, advanced by switch_buffer
// and write completion. This is tracked separately from ResWord, which
// only encodes the offset/count of the currently-open buffer.
type BufferState int32

const (
	BufferFree BufferState = iota
	BufferOpen
	BufferClosed
	BufferSubmitted
	BufferWritten
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferOpen:
		return "open"
	case BufferClosed:
		return "closed"
	case BufferSubmitted:
		return "submitted"
	case BufferWritten:
		return "written"
	default:
		return "unknown"
	}
}

// waitList is the continuation/wake-list primitive described for
// per-buffer completion: registration after completion self-completes;
// completion publishes with release/acquire ordering via the mutex.
type waitList struct {
	mu        sync.Mutex
	done      bool
	err       error
	waiters   []chan error
}

func newWaitList() *waitList {
	return &waitList{}
}

// register returns a channel that receives the completion error exactly
// once. If the list already completed, the channel is pre-filled.
func (wl *waitList) register() <-chan error {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	ch := make(chan error, 1)
	if wl.done {
		ch <- wl.err
		return ch
	}
	wl.waiters = append(wl.waiters, ch)
	return ch
}

// complete wakes every registered waiter with err and marks the list done
// so late registrants self-complete.
func (wl *waitList) complete(err error) {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	if wl.done {
		return
	}
	wl.done = true
	wl.err = err
	for _, ch := range wl.waiters {
		ch <- err
	}
	wl.waiters = nil
}

// reset prepares the wait list for reuse by a new entry.
func (wl *waitList) reset() {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.done = false
	wl.err = nil
	wl.waiters = nil
}

// EntryBuffer is the staging area for one in-construction (or in-flight)
// log entry.
type EntryBuffer struct {
	idx uint64

	state atomic.Int32 // BufferState

	mu          sync.Mutex // protects everything below except data's byte contents
	data        []byte     // contiguous arena, grown on demand between MinEntrySize/MaxEntrySize
	size        uint32     // current allocation size in bytes
	seq         uint64
	lastSeq     uint64
	u64sUsed    uint32
	diskSectors uint32

	// written is a high-water mark in words, advanced by writeAt as
	// producers actually commit payload. Reservations grant an upper
	// bound a producer may never fully use, so seal must draw u64sUsed
	// from written, not from however many words the reservation word
	// handed out.
	written atomic.Uint32

	// hasInode is the 256-bit Bloom filter of inode numbers touched by
	// entries inside this buffer; false positives are acceptable, false
	// negatives are not. Writes happen unlocked (the caller's reservation
	// already prevents a switch below it); reads happen under mu.
	hasInode *bloom.BloomFilter

	wait *waitList
}

// newEntryBuffer allocates a buffer at the minimum arena size; it grows
// on demand via ensureCapacity.
func newEntryBuffer(idx uint64) *EntryBuffer {
	b := &EntryBuffer{
		idx:      idx,
		data:     bufpool.Get(constants.MinEntrySize),
		size:     constants.MinEntrySize,
		hasInode: bloom.New(constants.HasInodeFilterBits, constants.HasInodeFilterHashes),
		wait:     newWaitList(),
	}
	b.state.Store(int32(BufferFree))
	return b
}

func (b *EntryBuffer) getState() BufferState {
	return BufferState(b.state.Load())
}

func (b *EntryBuffer) setState(s BufferState) {
	b.state.Store(int32(s))
}

// growTo grows the arena to at least needBytes under the buffer's own
// lock. Called while a buffer is still Free/Closed, before it is
// published Open, so the writeAt producers call afterward never races a
// concurrent resize.
func (b *EntryBuffer) growTo(needBytes uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureCapacity(needBytes)
}

// ensureCapacity grows the arena to at least needBytes, up to MaxEntrySize.
// Returns false if needBytes exceeds MaxEntrySize.
func (b *EntryBuffer) ensureCapacity(needBytes uint32) bool {
	if needBytes > constants.MaxEntrySize {
		return false
	}
	if needBytes <= b.size {
		return true
	}

	newSize := b.size
	for newSize < needBytes {
		newSize *= 2
	}
	if newSize > constants.MaxEntrySize {
		newSize = constants.MaxEntrySize
	}

	grown := bufpool.Get(newSize)
	copy(grown, b.data[:b.u64sUsed*8])
	bufpool.Put(b.data)
	b.data = grown
	b.size = newSize
	return true
}

// reinit resets the buffer for a new open entry: zero header, zero
// Bloom filter, fresh wait list, new seq.
func (b *EntryBuffer) reinit(seq uint64, diskSectors uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq = seq
	b.lastSeq = 0
	b.u64sUsed = 0
	b.diskSectors = diskSectors
	b.hasInode = bloom.New(constants.HasInodeFilterBits, constants.HasInodeFilterHashes)
	b.wait.reset()
	b.written.Store(0)
}

// markInode sets the inode's bit in this buffer's Bloom filter. Called
// unlocked by a producer holding a live reservation against this buffer.
func (b *EntryBuffer) markInode(inode uint64) {
	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(inode >> (8 * i))
	}
	b.hasInode.Add(key[:])
}

// testInode reports whether inode may have touched this buffer. Must be
// called under the core mutex (matches inode_to_seq's locking contract).
func (b *EntryBuffer) testInode(inode uint64) bool {
	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(inode >> (8 * i))
	}
	return b.hasInode.Test(key[:])
}

// seal finalizes the outgoing buffer's header fields at switch time.
// u64sUsed is capped to the words producers actually wrote via writeAt,
// since a reservation only grants an upper bound on payload size.
func (b *EntryBuffer) seal(lastSeq uint64, granted uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeq = lastSeq

	used := b.written.Load()
	if used > granted {
		used = granted
	}
	b.u64sUsed = used
}

// serialize produces the on-disk bytes for this buffer: jset_header
// followed by the payload bytes already written into data.
func (b *EntryBuffer) serialize() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	header := format.MarshalHeader(&format.JsetHeader{
		Seq:      b.seq,
		LastSeq:  b.lastSeq,
		U64sUsed: b.u64sUsed,
	})

	payload := b.data[:b.u64sUsed*8]
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// writeAt copies src into this buffer's arena at the given word offset.
// Used by producers once they hold a reservation; the arena is already
// sized to the full entry by growTo before the buffer is published Open,
// so concurrent producers touching disjoint byte ranges need no lock here.
func (b *EntryBuffer) writeAt(offsetWords uint64, src []byte) {
	off := offsetWords * 8
	copy(b.data[off:], src)

	end := uint32(offsetWords) + uint32((len(src)+7)/8)
	for {
		cur := b.written.Load()
		if end <= cur {
			break
		}
		if b.written.CompareAndSwap(cur, end) {
			break
		}
	}
}
