// Package journal implements the write-ahead journal core of a
// copy-on-write, multi-device block filesystem: a lock-free reservation
// fast path, a double-buffered switch state machine, pin-FIFO reclaim,
// and parallel multi-device write submission.
package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cowfs/cowjournal/internal/interfaces"
	ijournal "github.com/cowfs/cowjournal/internal/journal"
	"github.com/cowfs/cowjournal/internal/ioring"
)

// Device is a single journal device backing a Journal's DeviceRing. It is
// re-exported from internal/interfaces so callers never need to import
// an internal package directly.
type Device = interfaces.Device

// Logger is the logging sink used by a Journal's components.
type Logger = interfaces.Logger

// Reservation is a caller-exclusive range of u64 words inside the
// currently-open entry's buffer, returned by ResGet and consumed by ResPut.
type Reservation = ijournal.Reservation

// Options bundles the collaborators a Journal needs beyond its Config:
// context, logger and metrics observer.
type Options struct {
	Context  context.Context
	Logger   Logger
	Observer interfaces.Observer
}

// Journal is one filesystem's journal instance: a JournalCore bound to a
// DeviceRing. The core is never a singleton — each filesystem mount owns
// exactly one Journal.
type Journal struct {
	id      uuid.UUID
	core    *ijournal.JournalCore
	devices *ijournal.DeviceRing
	sb      *ijournal.SuperblockStore

	metrics  *Metrics
	observer interfaces.Observer

	started bool
}

// FsJournalInit constructs a Journal bound to devs but does not yet start
// its reclaim timers or accept reservations; call FsJournalStart to do that.
// Mirrors fs_journal_init in the consumer lifecycle API.
func FsJournalInit(cfg Config, devs []Device, options *Options) (*Journal, error) {
	if options == nil {
		options = &Options{}
	}

	metrics := NewMetrics()
	var observer interfaces.Observer = NoOpObserver{}
	if options.Observer != nil {
		observer = options.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	ring := ijournal.NewDeviceRing(observer, options.Logger)
	for _, d := range devs {
		ring.AddDevice(d)
	}

	var sb *ijournal.SuperblockStore
	if cfg.SuperblockPath != "" {
		sb = ijournal.NewSuperblockStore(cfg.SuperblockPath)
		ring.SetSuperblockStore(sb)
	}

	j := &Journal{
		id:       uuid.New(),
		devices:  ring,
		sb:       sb,
		metrics:  metrics,
		observer: observer,
	}
	return j, nil
}

// FsJournalStart brings up the JournalCore: restores a persisted bucket
// array if present, enables io_uring batching when configured, and starts
// the reclaim loop; the ring is sized by SetNrJournalBuckets. blacklistedSeqRanges is accepted for interface compatibility with
// a future replay driver; the journal core itself does not interpret it.
func (j *Journal) FsJournalStart(cfg Config, blacklistedSeqRanges [][2]uint64) error {
	if j.started {
		return NewError("fs_journal_start", ErrCodeIO, "journal already started")
	}

	if j.sb != nil {
		if buckets, err := j.sb.Load(); err == nil && len(buckets) > 0 {
			j.devices.RestoreBuckets(buckets)
		}
	}

	if cfg.EnableIOURing {
		// Batching is a throughput optimization; a failed ring setup
		// (e.g. io_uring disabled by seccomp) falls back silently to
		// Submit's per-device goroutine path.
		_ = j.devices.EnableIOURing(ioring.Config{Entries: cfg.IOURingEntries})
	}

	j.core = ijournal.NewJournalCore(j.devices, ijournal.Config{
		PinFIFODepth:        cfg.PinFIFODepth,
		ForceWriteInterval:  cfg.ForceWriteInterval,
		ReclaimTickInterval: cfg.ReclaimTickInterval,
	}, j.observer, nil)

	j.started = true
	return nil
}

// FsJournalStop halts the core and stops its timers; no further
// reservations succeed afterward.
func (j *Journal) FsJournalStop() {
	if !j.started {
		return
	}
	j.core.Halt()
	_ = j.devices.CloseIOURing()
	j.metrics.Stop()
	j.started = false
}

// FsJournalExit releases resources held by the Journal. Safe to call
// whether or not the journal was ever started.
func (j *Journal) FsJournalExit() {
	if j.started {
		j.FsJournalStop()
	}
}

// DevJournalInit attaches dev to the Journal's DeviceRing and returns the
// ring's new device identifier, mirroring dev_journal_init(superblock).
func (j *Journal) DevJournalInit(dev Device) uuid.UUID {
	return j.devices.AddDevice(dev)
}

// DevJournalExit is presently a no-op placeholder: device removal is not
// supported by DeviceRing (shrink/removal is explicitly out of scope,
// see SPEC_FULL.md §1's non-goal on online journal shrink).
func (j *Journal) DevJournalExit(id uuid.UUID) error {
	return fmt.Errorf("journal: device removal is unsupported")
}

// DevJournalStop blocks until no in-flight write targets the Journal's
// devices. The current implementation has no per-device stop signal, so
// this simply waits for an in-flight Flush to observe the devices quiet.
func (j *Journal) DevJournalStop(ctx context.Context) error {
	return j.core.Flush(ctx)
}

// SetNrJournalBuckets grows every attached device's bucket ring to
// targetNr buckets. Shrink is unsupported.
func (j *Journal) SetNrJournalBuckets(targetNr int) error {
	return j.devices.AddBuckets(targetNr)
}

// ResGet reserves need_min..need_max u64 words in the currently open entry,
// blocking on the slow path if the fast path cannot satisfy it inline.
func (j *Journal) ResGet(ctx context.Context, needMin, needMax uint32) (Reservation, error) {
	return j.core.ResGet(ctx, needMin, needMax)
}

// ResPut releases r; if it was the last holder of a closed buffer, this
// triggers write submission for that buffer.
func (j *Journal) ResPut(r Reservation) {
	j.core.ResPut(r)
}

// ResMarkInode records that inode was touched by the entry in r's buffer.
func (j *Journal) ResMarkInode(r Reservation, inode uint64) {
	j.core.ResMarkInode(r, inode)
}

// WriteReservation copies payload into the word range r reserved via
// ResGet. Callers still call ResPut once done writing, regardless of
// whether WriteReservation is ever called: an all-metadata entry (see
// Meta) legitimately reserves zero bytes and never writes payload.
func (j *Journal) WriteReservation(r Reservation, payload []byte) error {
	return j.core.WriteReservation(r, payload)
}

// InodeJournalSeq answers "what is the most recent seq, of the two held
// in the entry buffers, that touched this inode?", returning 0 if none.
// A flushed seq is still reported until its buffer is reused.
func (j *Journal) InodeJournalSeq(inode uint64) uint64 {
	return j.core.InodeJournalSeq(inode)
}

// FlushSeq blocks until seq is durable.
func (j *Journal) FlushSeq(ctx context.Context, seq uint64) error {
	return j.core.FlushSeq(ctx, seq)
}

// FlushSeqAsync registers cont to be woken when seq is durable.
func (j *Journal) FlushSeqAsync(seq uint64, cont func(error)) {
	j.core.FlushSeqAsync(seq, cont)
}

// Flush durably writes out the current (or just-closed) seq.
func (j *Journal) Flush(ctx context.Context) error {
	return j.core.Flush(ctx)
}

// Meta acquires a zero-payload reservation solely to create a new seq,
// then flushes it, producing a durable barrier with no pending mutation.
func (j *Journal) Meta(ctx context.Context) error {
	return j.core.Meta(ctx)
}

// OpenSeqAsync attempts to open seq for interior B-tree root updates.
func (j *Journal) OpenSeqAsync(seq uint64, cont func(error)) error {
	return j.core.OpenSeqAsync(seq, cont)
}

// Halt transitions the journal into its error state; no further
// reservations succeed afterward.
func (j *Journal) Halt() {
	j.core.Halt()
}

// JournalError reports whether the journal is latched into its error
// state (offset == ERROR).
func (j *Journal) JournalError() bool {
	return j.core.JournalError()
}

// ID identifies this Journal instance in logs and the debug snapshot.
func (j *Journal) ID() uuid.UUID { return j.id }

// Metrics returns the journal's metrics instance.
func (j *Journal) Metrics() *Metrics { return j.metrics }

// BucketCount reports the current per-device bucket count.
func (j *Journal) BucketCount() int { return j.devices.BucketCount() }

// Core exposes the underlying JournalCore for debug rendering
// (RenderReservationState, RenderPinLists) and other internal-package
// consumers such as cmd/journalctl.
func (j *Journal) Core() *ijournal.JournalCore { return j.core }
