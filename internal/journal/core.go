package journal

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cowfs/cowjournal/internal/constants"
	"github.com/cowfs/cowjournal/internal/interfaces"
)

// BucketSeqCallback is invoked every buffer switch with the running switch
// counter; JournalCore never performs bucket GC itself, it only counts
// switches and calls this hook.
type BucketSeqCallback func(switchCount uint64)

// switchResult is the outcome of a switch_buffer call.
type switchResult int

const (
	switchError switchResult = iota
	switchInUse
	switchClosed
	switchUnlocked
)

// Config bundles JournalCore's tunables; zero-value fields fall back to
// package defaults in NewJournalCore.
type Config struct {
	PinFIFODepth        int
	ForceWriteInterval   time.Duration
	ReclaimTickInterval  time.Duration
	BucketSeqCallback    BucketSeqCallback
}

// waiter is one blocked res_get_slow caller; woken whenever reclaim or a
// write completion might have opened capacity.
type waiter struct {
	ch chan struct{}
}

// JournalCore is the orchestrator tying the reservation fast path, the
// buffer-switch state machine, the pin FIFO and the device ring together.
type JournalCore struct {
	id uuid.UUID

	mu sync.Mutex

	res     *ReservationState
	buffers [2]*EntryBuffer
	pins    *PinFIFO
	devices *DeviceRing

	curEntryU64s uint64 // capacity of the currently open buffer, in u64 words
	switchCount  uint64
	readOnly     bool

	forceWriteTimer *time.Timer
	reclaimStop     chan struct{}

	waiters map[*waiter]struct{}

	bucketSeqCallback BucketSeqCallback

	forceWriteInterval  time.Duration
	reclaimTickInterval time.Duration

	observer interfaces.Observer
	logger   interfaces.Logger
}

// NewJournalCore wires a reservation state, a pair of entry buffers, a pin
// FIFO and a device ring into a running core. Both buffers start Free;
// the first res_get drives the slow path through open_entry.
func NewJournalCore(devices *DeviceRing, cfg Config, observer interfaces.Observer, logger interfaces.Logger) *JournalCore {
	depth := cfg.PinFIFODepth
	if depth <= 0 {
		depth = constants.DefaultPinFIFODepth
	}
	forceWrite := cfg.ForceWriteInterval
	if forceWrite <= 0 {
		forceWrite = constants.DefaultForceWriteInterval
	}
	reclaimTick := cfg.ReclaimTickInterval
	if reclaimTick <= 0 {
		reclaimTick = constants.DefaultReclaimTickInterval
	}

	c := &JournalCore{
		id:                  uuid.New(),
		res:                 NewReservationState(),
		buffers:             [2]*EntryBuffer{newEntryBuffer(0), newEntryBuffer(1)},
		pins:                NewPinFIFO(depth),
		devices:             devices,
		waiters:             make(map[*waiter]struct{}),
		bucketSeqCallback:   cfg.BucketSeqCallback,
		forceWriteInterval:  forceWrite,
		reclaimTickInterval: reclaimTick,
		observer:            observer,
		logger:              logger,
	}

	c.reclaimStop = make(chan struct{})
	go c.reclaimLoop()

	return c
}

// ID identifies this core instance in logs and the debug snapshot.
func (c *JournalCore) ID() uuid.UUID { return c.id }

// JournalError reports whether the reservation state is latched into its
// error state (offset == ERROR).
func (c *JournalCore) JournalError() bool {
	return c.res.journalError()
}

// ResGet is the public reservation entry point: try the lock-free fast
// path first, fall back to the mutex-held slow path on any miss.
func (c *JournalCore) ResGet(ctx context.Context, needMin, needMax uint32) (Reservation, error) {
	if c.res.journalError() {
		return Reservation{}, NewError("res_get", ErrCodeIO, "journal in error state")
	}

	if offset, idx, granted, ok := c.res.tryFastReserve(c.loadCurEntryU64s(), needMin, needMax); ok {
		c.observeGrant(granted)
		return Reservation{Seq: c.buffers[idx].seq, Idx: idx, Offset: offset, Granted: granted}, nil
	}

	return c.resGetSlow(ctx, needMin, needMax)
}

func (c *JournalCore) loadCurEntryU64s() uint64 {
	// Read under the mutex: only open_entry and switch_buffer mutate
	// this, and both do so with the mutex held, so the fast path always
	// sees the capacity of the buffer most recently opened.
	c.mu.Lock()
	v := c.curEntryU64s
	c.mu.Unlock()
	return v
}

// resGetSlow takes the core mutex, retries the fast path, drives a switch
// and/or open as needed, and otherwise parks the caller on the wait queue
// until reclaim or a write completion might have freed capacity.
func (c *JournalCore) resGetSlow(ctx context.Context, needMin, needMax uint32) (Reservation, error) {
	reclaimTried := false
	for {
		c.mu.Lock()

		if c.res.journalError() {
			c.mu.Unlock()
			return Reservation{}, NewError("res_get", ErrCodeIO, "journal in error state")
		}
		if c.readOnly {
			c.mu.Unlock()
			return Reservation{}, NewError("res_get", ErrCodeReadOnly, "filesystem is read-only")
		}

		if offset, idx, granted, ok := c.res.tryFastReserve(c.curEntryU64s, needMin, needMax); ok {
			c.mu.Unlock()
			c.observeGrant(granted)
			return Reservation{Seq: c.buffers[idx].seq, Idx: idx, Offset: offset, Granted: granted}, nil
		}

		word := c.res.load()
		if word.isOpen() {
			// Open but too small for this request: force a switch, which
			// opens the other buffer as a fresh entry, then retry the fast
			// path against it.
			res := c.switchBufferLocked(true)
			if res == switchError {
				c.mu.Unlock()
				return Reservation{}, NewError("res_get", ErrCodeIO, "switch failed")
			}
			if res == switchUnlocked {
				// switchBufferLocked already dropped the mutex.
				continue
			}
			c.mu.Unlock()
			continue
		}

		// Buffer is Closed (or this is the very first open): try to open.
		rc, err := c.openEntryLocked()
		if err != nil {
			c.mu.Unlock()
			return Reservation{}, err
		}
		if rc == 1 {
			c.mu.Unlock()
			continue // retry the fast path against the freshly opened buffer
		}

		// No space: run reclaim inline once before parking, so forward
		// progress never depends on the reclaim timer; the retry re-checks
		// everything under the mutex before this caller parks.
		if !reclaimTried {
			reclaimTried = true
			c.mu.Unlock()
			if reclaimed, _ := c.pins.Tick(); reclaimed > 0 && c.observer != nil {
				c.observer.ObserveReclaim(reclaimed)
			}
			continue
		}
		reclaimTried = false

		// Block until reclaim or a write completion wakes us.
		w := &waiter{ch: make(chan struct{}, 1)}
		c.waiters[w] = struct{}{}
		c.mu.Unlock()

		c.observer.ObserveReservation(0, true)
		select {
		case <-w.ch:
		case <-ctx.Done():
			c.mu.Lock()
			delete(c.waiters, w)
			c.mu.Unlock()
			return Reservation{}, NewError("res_get", ErrCodeInterrupted, "interrupted waiting for journal space")
		}
	}
}

func (c *JournalCore) observeGrant(granted uint32) {
	if c.observer != nil {
		c.observer.ObserveReservation(granted, false)
	}
}

// wakeWaiters notifies every parked res_get_slow caller that capacity may
// have opened up; callers race to retake the mutex and retry.
func (c *JournalCore) wakeWaiters() {
	for w := range c.waiters {
		select {
		case w.ch <- struct{}{}:
		default:
		}
		delete(c.waiters, w)
	}
}

// switchBufferLocked is the single state-machine edge described for
// buffer switches. Must be called with c.mu held; on switchUnlocked it
// has already released c.mu (callers must not assume it is still held).
func (c *JournalCore) switchBufferLocked(needWriteJustSet bool) switchResult {
	word := c.res.load()
	if word.isError() {
		return switchError
	}

	oldIdx := word.idx()
	newIdx := 1 - oldIdx

	if c.buffers[newIdx].getState() == BufferSubmitted {
		// The other buffer still has a write in flight; the switcher must
		// wait for completion before it can become Open again.
		return switchInUse
	}

	// One CAS performs all four state-machine edges at once: offset=CLOSED
	// is never independently visible, since the very next committed word
	// already has idx flipped, offset reset to the new buffer's baseline,
	// and prev_buf_unwritten set.
	var old ResWord
	for {
		old = c.res.load()
		next := packResWord(newIdx, 0, old.count(0), old.count(1), true).withCountDelta(newIdx, 1)
		if c.res.cas(old, next) {
			break
		}
	}

	outgoing := c.buffers[oldIdx]
	outgoing.setState(BufferClosed)

	// old.offset() is the total words granted to producers via
	// tryFastReserve, an upper bound on payload size; seal clamps to the
	// words actually written so a producer that reserved more than it
	// used doesn't leak stale arena bytes into the sealed entry.
	// LastSeq is the oldest still-pinned seq at close time (format.JsetHeader's
	// documented meaning), not outgoing's own seq.
	seq := outgoing.seq
	outgoing.seal(c.pins.LastSeq(), uint32(old.offset()))

	c.pins.Push(seq + 1)

	incoming := c.buffers[newIdx]
	incoming.reinit(seq+1, 0)
	incoming.growTo(uint32(c.curEntryU64s * 8))
	incoming.setState(BufferOpen)

	c.switchCount++
	if c.bucketSeqCallback != nil {
		c.bucketSeqCallback(c.switchCount)
	}
	if c.observer != nil {
		c.observer.ObserveSwitch()
	}

	c.cancelForceWriteTimerLocked()

	c.mu.Unlock()
	// The synthetic reference outgoing took when it became Open (either
	// here, on a prior switch's incoming CAS, or in openEntryLocked) is
	// dropped here; if this was the last holder of the now-Closed buffer,
	// it triggers write submission.
	c.resPut(Reservation{Seq: seq, Idx: oldIdx})

	return switchUnlocked
}

// openEntryLocked runs only when the current buffer is Closed (or no
// buffer has ever been opened). Must be called with c.mu held.
func (c *JournalCore) openEntryLocked() (int, error) {
	word := c.res.load()
	if word.isOpen() {
		return 0, NewError("open_entry", ErrCodeIO, "buffer already open")
	}

	if c.pins.Full() {
		return 0, nil // no space: caller must wait for reclaim
	}
	if c.devices.SectorsAvailable() <= 0 {
		return 0, nil
	}

	suffix := uint64(constants.BTreeIDCount) * uint64(constants.JsetKeysOverhead+constants.MaxExtentSize)
	total := uint64(constants.MaxEntrySize)/8 - suffix
	c.curEntryU64s = total

	idx := word.idx()
	buf := c.buffers[idx]
	if buf.getState() == BufferFree {
		seq := c.pins.CurSeq() + 1
		buf.reinit(seq, 0)
		c.pins.Push(seq)
	}
	// Size the arena for the whole entry before publishing it as Open, so
	// writeAt never has to grow the arena underneath a concurrent producer.
	buf.growTo(uint32(c.curEntryU64s * 8))
	buf.setState(BufferOpen)

	// A buffer that becomes Open takes a synthetic reference on itself,
	// mirroring switchBufferLocked's incoming-buffer CAS above: it is
	// released by the resPut call the far side of that buffer's own
	// eventual switch-away, not by any real producer's ResPut. Without
	// it, a buffer opened here (rather than via a switch) has no
	// reference for that later unconditional resPut to cancel, so it
	// would instead cancel a real producer's still-live reservation.
	preseeded := uint64(0)
	opened := packResWord(idx, preseeded, word.count(0), word.count(1), word.prevBufUnwritten()).withCountDelta(idx, 1)
	if !c.res.cas(word, opened) {
		return 0, NewError("open_entry", ErrCodeIO, "concurrent modification of closed word")
	}

	c.scheduleForceWriteTimerLocked()
	return 1, nil
}

func (c *JournalCore) scheduleForceWriteTimerLocked() {
	c.cancelForceWriteTimerLocked()
	c.forceWriteTimer = time.AfterFunc(c.forceWriteInterval, func() {
		c.mu.Lock()
		word := c.res.load()
		if word.isOpen() {
			if c.switchBufferLocked(true) != switchUnlocked {
				c.mu.Unlock()
			}
			return
		}
		c.mu.Unlock()
	})
}

func (c *JournalCore) cancelForceWriteTimerLocked() {
	if c.forceWriteTimer != nil {
		c.forceWriteTimer.Stop()
		c.forceWriteTimer = nil
	}
}

// ResPut decrements the reservation held by r. If r was the last holder
// of a now-Closed buffer, submission for that buffer is dispatched.
func (c *JournalCore) ResPut(r Reservation) {
	c.resPut(r)
}

func (c *JournalCore) resPut(r Reservation) {
	remaining := c.res.put(r.Idx)
	if remaining != 0 {
		return
	}

	buf := c.buffers[r.Idx]
	if buf.getState() != BufferClosed {
		return
	}
	if !buf.state.CompareAndSwap(int32(BufferClosed), int32(BufferSubmitted)) {
		return // another res_put already won the race to submit
	}

	go c.submitBuffer(r.Idx, buf)
}

func (c *JournalCore) submitBuffer(idx uint64, buf *EntryBuffer) {
	data := buf.serialize()

	err := c.devices.Submit(context.Background(), data)

	c.mu.Lock()
	if err != nil {
		c.res.halt()
		c.logErr("device write failed, latching journal error", err)
		buf.setState(BufferWritten)
		buf.wait.complete(err)
		c.wakeWaiters()
		c.mu.Unlock()
		return
	}

	c.devices.MarkBucketSeq(buf.seq)
	buf.setState(BufferWritten)

	// Clear prev_buf_unwritten now that the other buffer's write landed.
	for {
		old := c.res.load()
		next := ResWord(uint64(old) &^ (uint64(1) << prevShift))
		if c.res.cas(old, next) {
			break
		}
	}

	c.pins.Release(buf.seq)
	buf.setState(BufferFree)
	buf.wait.complete(nil)
	c.wakeWaiters()
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveReclaim(0)
	}
}

func (c *JournalCore) logErr(msg string, err error) {
	if c.logger != nil {
		c.logger.Errorf("%s: %v", msg, err)
	}
}

// ResMarkInode records that inode was touched by the entry currently
// occupying r's buffer. Called unlocked: the caller's live reservation
// already prevents that buffer from switching out from under it.
func (c *JournalCore) ResMarkInode(r Reservation, inode uint64) {
	c.buffers[r.Idx].markInode(inode)
}

// WriteReservation copies payload into the word range r was granted.
// Called unlocked, like ResMarkInode: the caller's live reservation keeps
// its buffer from switching out from under it, and producers holding
// disjoint reservations touch disjoint byte ranges of the same arena.
func (c *JournalCore) WriteReservation(r Reservation, payload []byte) error {
	if uint64(len(payload)) > uint64(r.Granted)*8 {
		return NewError("write_reservation", ErrCodeIO, "payload exceeds granted reservation")
	}
	c.buffers[r.Idx].writeAt(r.Offset, payload)
	return nil
}

// InodeJournalSeq answers "what is the most recent seq, of the two held
// in the buffers, that touched this inode?" A buffer's filter survives
// its flush and is cleared only when the buffer is reused for a new seq.
// A false positive only forces an unnecessary flush; a false negative is
// forbidden.
func (c *JournalCore) InodeJournalSeq(inode uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	word := c.res.load()
	idx := word.idx()
	if c.buffers[idx].testInode(inode) {
		return c.buffers[idx].seq
	}
	other := 1 - idx
	if c.buffers[other].testInode(inode) {
		return c.buffers[other].seq
	}
	return 0
}

// FlushSeqAsync registers cont to be woken when seq is durable. If seq is
// the currently open buffer's seq, it forces a switch first.
func (c *JournalCore) FlushSeqAsync(seq uint64, cont func(error)) {
	c.mu.Lock()
	word := c.res.load()
	idx := word.idx()
	if word.isOpen() && c.buffers[idx].seq == seq {
		if c.switchBufferLocked(true) != switchUnlocked {
			c.mu.Unlock()
		}
	} else {
		c.mu.Unlock()
	}

	for _, idx := range [2]uint64{0, 1} {
		buf := c.buffers[idx]
		if buf.seq == seq {
			ch := buf.wait.register()
			go func() { cont(<-ch) }()
			return
		}
	}
	// Already reclaimed (durable and past the pin FIFO): fire immediately.
	cont(nil)
}

// FlushSeq blocks the calling goroutine until seq is durable.
func (c *JournalCore) FlushSeq(ctx context.Context, seq uint64) error {
	errCh := make(chan error, 1)
	c.FlushSeqAsync(seq, func(err error) { errCh <- err })
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return NewError("flush_seq", ErrCodeInterrupted, "interrupted waiting for durability")
	}
}

// Flush durably writes out the current (or just-closed) seq.
func (c *JournalCore) Flush(ctx context.Context) error {
	c.mu.Lock()
	word := c.res.load()
	idx := word.idx()
	seq := c.buffers[idx].seq
	c.mu.Unlock()
	return c.FlushSeq(ctx, seq)
}

// Meta acquires a zero-payload reservation solely to create a new seq,
// then flushes it, producing a durable barrier when no real mutation is
// pending.
func (c *JournalCore) Meta(ctx context.Context) error {
	r, err := c.ResGet(ctx, 0, 0)
	if err != nil {
		return err
	}
	seq := r.Seq
	c.ResPut(r)
	return c.FlushSeq(ctx, seq)
}

// OpenSeqAsync attempts to open seq, queueing cont on the async-wait list
// if blocked on space.
func (c *JournalCore) OpenSeqAsync(seq uint64, cont func(error)) error {
	c.mu.Lock()
	word := c.res.load()
	idx := word.idx()

	switch {
	case seq < c.buffers[idx].seq:
		c.mu.Unlock()
		return NewSeqError("open_seq_async", seq, ErrCodeIO, "seq already exists")
	case seq == c.buffers[idx].seq && word.isOpen():
		c.mu.Unlock()
		return NewSeqError("open_seq_async", seq, ErrCodeIO, "seq already open")
	}

	rc, err := c.openEntryLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if rc == 1 {
		c.mu.Unlock()
		if cont != nil {
			cont(nil)
		}
		return nil
	}

	w := &waiter{ch: make(chan struct{}, 1)}
	c.waiters[w] = struct{}{}
	c.mu.Unlock()

	if cont != nil {
		go func() {
			<-w.ch
			cont(nil)
		}()
	}
	return nil
}

// Halt latches the reservation state into its error state and wakes
// every waiter; no further reservations succeed afterward.
func (c *JournalCore) Halt() {
	c.res.halt()
	c.mu.Lock()
	c.readOnly = true
	c.wakeWaiters()
	select {
	case <-c.reclaimStop:
	default:
		close(c.reclaimStop)
	}
	c.mu.Unlock()

	for _, buf := range c.buffers {
		buf.wait.complete(NewError("halt", ErrCodeIO, "journal halted"))
	}
}

// CondYield is the collaborator hook the reservation-consuming outer loop
// (B-tree iteration) uses to yield when the scheduler requests a
// reschedule; iter is called after yielding the processor.
func (c *JournalCore) CondYield(iter func()) {
	runtime.Gosched()
	iter()
}

// reclaimLoop runs reclaim_tick on a periodic timer until Halt stops it.
func (c *JournalCore) reclaimLoop() {
	ticker := time.NewTicker(c.reclaimTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reclaimTick()
		case <-c.reclaimStop:
			return
		}
	}
}

// reclaimTick drains reclaimable seqs from the pin FIFO and wakes any
// waiters if progress was made. The reservation slow path also runs the
// pin FIFO's Tick inline before parking, so forward progress never
// depends on the timer.
func (c *JournalCore) reclaimTick() {
	reclaimed, blocked := c.pins.Tick()

	if c.observer != nil {
		c.observer.ObserveReclaim(reclaimed)
	}

	if reclaimed > 0 {
		c.mu.Lock()
		c.wakeWaiters()
		c.mu.Unlock()
	}
	if blocked && c.logger != nil {
		c.logger.Warnf("reclaim blocked: seq %d has outstanding flushers", c.pins.LastSeq())
	}
}
