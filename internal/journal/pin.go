package journal

import "sync"

// Flusher is a registered callback invoked when its seq's PinList refcount
// reaches zero; typically moves dirty B-tree nodes to disk.
type Flusher func(seq uint64) error

// PinList is one per seq in the FIFO: a refcount of outstanding mutations
// whose effects are not yet visible on the underlying B-trees, plus
// flushers registered against this seq.
type PinList struct {
	seq      uint64
	refcount int64
	pending  []Flusher
	flushed  []Flusher // moved here after running, retained for debug
}

// PinFIFO is a bounded ring of PinList indexed by seq. Invariant: indices
// [lastSeq, curSeq] are present; refcount[lastSeq] == 0 implies reclaim
// may advance.
type PinFIFO struct {
	mu       sync.Mutex
	depth    int
	entries  map[uint64]*PinList
	lastSeq  uint64
	curSeq   uint64
}

// NewPinFIFO creates an empty FIFO bounded to depth outstanding seqs.
func NewPinFIFO(depth int) *PinFIFO {
	return &PinFIFO{
		depth:   depth,
		entries: make(map[uint64]*PinList, depth),
	}
}

// Len returns the number of seqs currently pinned.
func (f *PinFIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Full reports whether the FIFO has reached its bound; open_entry reports
// no space in this case until reclaim frees a slot.
func (f *PinFIFO) Full() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries) >= f.depth
}

// Push creates a new PinList for seq with refcount 1 (the "open" hold)
// and advances curSeq. Must be called with the core mutex already held
// by the caller (switch_buffer).
func (f *PinFIFO) Push(seq uint64) *PinList {
	f.mu.Lock()
	defer f.mu.Unlock()

	pl := &PinList{seq: seq, refcount: 1}
	f.entries[seq] = pl
	f.curSeq = seq
	if f.lastSeq == 0 {
		f.lastSeq = seq
	}
	return pl
}

// Get returns the PinList for seq, or nil if not present.
func (f *PinFIFO) Get(seq uint64) *PinList {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[seq]
}

// RegisterFlusher appends fn to seq's pending flusher list. Returns false
// if seq is not present (already reclaimed).
func (f *PinFIFO) RegisterFlusher(seq uint64, fn Flusher) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.entries[seq]
	if !ok {
		return false
	}
	pl.pending = append(pl.pending, fn)
	return true
}

// Release decrements seq's refcount by one.
func (f *PinFIFO) Release(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pl, ok := f.entries[seq]; ok {
		pl.refcount--
	}
}

// Acquire increments seq's refcount by one (a mutation taking a pin).
func (f *PinFIFO) Acquire(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pl, ok := f.entries[seq]; ok {
		pl.refcount++
	}
}

// LastSeq and CurSeq report the FIFO's current bounds.
func (f *PinFIFO) LastSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeq
}

func (f *PinFIFO) CurSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.curSeq
}

// Tick iterates the FIFO from lastSeq upward and, for each seq whose
// PinList refcount is zero, runs its registered flushers then removes
// the seq, advancing lastSeq. It stops at the first seq that still has
// outstanding refcount (back-pressure) and returns the count reclaimed.
// If a flusher returns an error, that seq is left pinned and Tick stops,
// signalling the caller to treat this round as Blocked.
func (f *PinFIFO) Tick() (reclaimed int, blocked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		pl, ok := f.entries[f.lastSeq]
		if !ok {
			// Nothing pinned at lastSeq; either the FIFO is empty or
			// lastSeq has already advanced past the last reclaimed slot.
			if f.lastSeq < f.curSeq {
				f.lastSeq++
				continue
			}
			return reclaimed, false
		}
		if pl.refcount > 0 {
			return reclaimed, false
		}

		for _, fn := range pl.pending {
			if err := fn(pl.seq); err != nil {
				return reclaimed, true
			}
			pl.flushed = append(pl.flushed, fn)
		}
		pl.pending = nil

		delete(f.entries, pl.seq)
		reclaimed++
		if f.lastSeq < f.curSeq {
			f.lastSeq++
		} else {
			// Reclaimed the last live seq; lastSeq stays put until a
			// new seq is pushed.
			return reclaimed, false
		}
	}
}
