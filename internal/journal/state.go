// Package journal implements the reservation fast path, buffer-switch
// state machine, pin/reclaim bookkeeping, and device ring allocation for
// the journal core.
package journal

import "sync/atomic"

// Reservation word bit layout (64 bits total):
//
//	bit    0       idx                which buffer (0/1) is open
//	bits   1..32   offset             u64 words reserved in the open buffer (32 bits)
//	bits  33..47   count[0]           outstanding reservations on buffer 0 (15 bits)
//	bits  48..62   count[1]           outstanding reservations on buffer 1 (15 bits)
//	bit   63       prevBufUnwritten   1 if the other buffer has a write in flight
//
// offset uses two sentinel values above any real offset to mark
// non-open states: offsetClosed and offsetError.
const (
	offsetBits  = 32
	offsetMask  = (uint64(1) << offsetBits) - 1
	countBits   = 15
	countMask   = (uint64(1) << countBits) - 1
	maxCount    = countMask

	idxShift    = 0
	offsetShift = 1
	count0Shift = offsetShift + offsetBits
	count1Shift = count0Shift + countBits
	prevShift   = count1Shift + countBits
)

// Sentinel offset values. Both fit comfortably above MaxEntrySize.
const (
	offsetClosed = offsetMask - 1
	offsetError  = offsetMask
)

// ResWord is the packed 64-bit reservation word, manipulated lock-free
// via compare-and-swap on the fast paths.
type ResWord uint64

func packResWord(idx uint64, offset uint64, count0, count1 uint64, prevUnwritten bool) ResWord {
	w := (idx & 1) << idxShift
	w |= (offset & offsetMask) << offsetShift
	w |= (count0 & countMask) << count0Shift
	w |= (count1 & countMask) << count1Shift
	if prevUnwritten {
		w |= 1 << prevShift
	}
	return ResWord(w)
}

func (w ResWord) idx() uint64 {
	return (uint64(w) >> idxShift) & 1
}

func (w ResWord) offset() uint64 {
	return (uint64(w) >> offsetShift) & offsetMask
}

func (w ResWord) count(idx uint64) uint64 {
	if idx == 0 {
		return (uint64(w) >> count0Shift) & countMask
	}
	return (uint64(w) >> count1Shift) & countMask
}

func (w ResWord) prevBufUnwritten() bool {
	return (uint64(w)>>prevShift)&1 != 0
}

func (w ResWord) isClosed() bool {
	return w.offset() == offsetClosed
}

func (w ResWord) isError() bool {
	return w.offset() == offsetError
}

func (w ResWord) isOpen() bool {
	return w.offset() < offsetClosed
}

// withCountDelta returns a copy of w with count[idx] adjusted by delta.
// Callers must ensure the result does not underflow or exceed maxCount.
func (w ResWord) withCountDelta(idx uint64, delta int64) ResWord {
	c := int64(w.count(idx)) + delta
	if idx == 0 {
		return packResWord(w.idx(), w.offset(), uint64(c), w.count(1), w.prevBufUnwritten())
	}
	return packResWord(w.idx(), w.offset(), w.count(0), uint64(c), w.prevBufUnwritten())
}

func (w ResWord) withOffset(offset uint64) ResWord {
	return packResWord(w.idx(), offset, w.count(0), w.count(1), w.prevBufUnwritten())
}

// ReservationState is the lock-free packed atomic word driving res_get's
// fast path.
type ReservationState struct {
	word atomic.Uint64
}

// NewReservationState creates a reservation state with both buffers
// closed and no outstanding references.
func NewReservationState() *ReservationState {
	rs := &ReservationState{}
	rs.word.Store(uint64(packResWord(0, offsetClosed, 0, 0, false)))
	return rs
}

func (rs *ReservationState) load() ResWord {
	return ResWord(rs.word.Load())
}

func (rs *ReservationState) cas(old, new ResWord) bool {
	return rs.word.CompareAndSwap(uint64(old), uint64(new))
}

// Reservation is a caller-exclusive range of u64 words inside the
// currently-open entry's buffer; Offset and Granted count words.
type Reservation struct {
	Seq     uint64
	Idx     uint64
	Offset  uint64
	Granted uint32
}

// tryFastReserve attempts the lock-free fast path: grant up to needMax
// u64 words (at least needMin) in the currently open buffer. ok is false
// if the buffer is not open, or the words left are fewer than needMin —
// callers fall back to the slow path in either case.
func (rs *ReservationState) tryFastReserve(curEntryU64s uint64, needMin, needMax uint32) (offset uint64, idx uint64, granted uint32, ok bool) {
	for {
		old := rs.load()
		if !old.isOpen() {
			return 0, 0, 0, false
		}

		avail := curEntryU64s - old.offset()
		g := uint64(needMax)
		if avail < g {
			g = avail
		}
		if g < uint64(needMin) {
			return 0, 0, 0, false
		}

		idx = old.idx()
		if old.count(idx) >= maxCount {
			return 0, 0, 0, false
		}

		newWord := old.withOffset(old.offset() + g).withCountDelta(idx, 1)
		if rs.cas(old, newWord) {
			return old.offset(), idx, uint32(g), true
		}
	}
}

// put decrements count[idx] and returns the resulting count. Whether this
// was the last holder of a now-Closed buffer (and therefore must trigger
// write submission) is for the caller to determine from the EntryBuffer's
// own state field — the reservation word only tracks the currently-open
// buffer's offset, not the lifecycle state of a buffer that has already
// been switched away from.
func (rs *ReservationState) put(idx uint64) (remaining uint64) {
	for {
		old := rs.load()
		if old.count(idx) == 0 {
			// Already released (e.g. the synthetic open reference was
			// already dropped); nothing to do.
			return 0
		}
		newWord := old.withCountDelta(idx, -1)
		if rs.cas(old, newWord) {
			return newWord.count(idx)
		}
	}
}

// halt latches the error state. All future res_get calls fail.
func (rs *ReservationState) halt() {
	for {
		old := rs.load()
		if old.isError() {
			return
		}
		newWord := old.withOffset(offsetError)
		if rs.cas(old, newWord) {
			return
		}
	}
}

// journalError reports whether the reservation state is latched to error.
func (rs *ReservationState) journalError() bool {
	return rs.load().isError()
}
