package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cowfs/cowjournal/internal/constants"
	"github.com/cowfs/cowjournal/internal/interfaces"
	"github.com/cowfs/cowjournal/internal/ioring"
)

// fdDevice is implemented by devices backed by a real file descriptor
// (internal/devices.FileDevice); it lets Submit batch all per-device
// writes into a single io_uring_enter instead of one goroutine each.
type fdDevice interface {
	Fd() int32
}

// bucketSize is the fixed size in bytes of one journal bucket (a large
// contiguous on-disk extent reserved for journal writes).
const bucketSize = 4 * 1024 * 1024

// deviceSlot is one physical journal device and its bucket bookkeeping.
type deviceSlot struct {
	id         uuid.UUID
	dev        interfaces.Device
	buckets    []uint64 // physical bucket numbers
	bucketSeq  []uint64 // latest seq stored in each bucket
	curIdx     int      // writing into
	lastIdx    int      // oldest live
}

// DeviceRing is the per-device circular allocation of on-disk journal
// buckets, replicated across every attached device; an entry write is
// durable only once every device has acked.
type DeviceRing struct {
	mu      sync.Mutex
	devices []*deviceSlot

	lastSeqOndisk uint64

	superblock *SuperblockStore // optional; nil disables bucket-array persistence

	ring ioring.Ring // optional; set by EnableIOURing, used only when every device exposes fdDevice

	observer interfaces.Observer
	logger   interfaces.Logger
}

// EnableIOURing opts Submit into batched io_uring submission: every
// device's positioned write is staged on one ring and flushed with a
// single io_uring_enter, rather than one goroutine and one syscall per
// device. Devices that don't expose a file descriptor (e.g. in-memory
// devices used in tests) fall back to the per-device path automatically.
func (r *DeviceRing) EnableIOURing(cfg ioring.Config) error {
	ring, err := ioring.NewRing(cfg)
	if err != nil {
		return fmt.Errorf("journal: enable io_uring: %w", err)
	}
	r.mu.Lock()
	r.ring = ring
	r.mu.Unlock()
	return nil
}

// CloseIOURing releases the batched ring, if one was enabled.
func (r *DeviceRing) CloseIOURing() error {
	r.mu.Lock()
	ring := r.ring
	r.ring = nil
	r.mu.Unlock()
	if ring == nil {
		return nil
	}
	return ring.Close()
}

// SetSuperblockStore attaches a store used to persist the bucket array,
// shared by all devices, after AddBuckets grows it.
func (r *DeviceRing) SetSuperblockStore(s *SuperblockStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superblock = s
}

// NewDeviceRing creates an empty ring. Devices are attached with
// AddDevice, then sized via AddBuckets (mirroring add_journal_buckets).
func NewDeviceRing(observer interfaces.Observer, logger interfaces.Logger) *DeviceRing {
	return &DeviceRing{observer: observer, logger: logger}
}

// AddDevice attaches a new journal device with zero buckets allocated.
func (r *DeviceRing) AddDevice(dev interfaces.Device) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.devices = append(r.devices, &deviceSlot{id: id, dev: dev})
	return id
}

// clampBucketCount mirrors the device-init sizing formula: clamp(nbuckets/256,
// MinJournalBuckets, min(MaxJournalBuckets, MaxJournalRingSize/bucketSize)).
func clampBucketCount(nbuckets int) int {
	target := nbuckets / 256
	if target < constants.MinJournalBuckets {
		target = constants.MinJournalBuckets
	}
	upper := constants.MaxJournalBuckets
	if ringLimited := constants.MaxJournalRingSize / bucketSize; ringLimited < upper {
		upper = ringLimited
	}
	if target > upper {
		target = upper
	}
	return target
}

// AddBuckets grows every attached device's ring to targetNr buckets.
// Shrink is unsupported. New buckets[] and bucketSeq[] are allocated
// first, then swapped in under the ring's mutex; insertion point is
// lastIdx, shifting curIdx upward when needed so in-flight writes keep
// targeting the same physical buckets.
func (r *DeviceRing) AddBuckets(targetNr int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var grown []uint64
	for _, slot := range r.devices {
		if targetNr <= len(slot.buckets) {
			continue // shrink unsupported; no-op if already >= target
		}

		added := targetNr - len(slot.buckets)
		newBuckets := make([]uint64, 0, added)
		for i := 0; i < added; i++ {
			// External allocator stand-in: buckets are numbered
			// sequentially from the current high-water mark.
			newBuckets = append(newBuckets, uint64(len(slot.buckets)+i))
		}

		insertAt := slot.lastIdx
		slot.buckets = insertSliceAt(slot.buckets, insertAt, newBuckets)
		slot.bucketSeq = insertSliceAt(slot.bucketSeq, insertAt, make([]uint64, added))
		if slot.curIdx >= insertAt {
			slot.curIdx = (slot.curIdx + added) % len(slot.buckets)
		}

		if r.logger != nil {
			r.logger.Infof("device ring grown: dev=%s buckets=%d", slot.id, len(slot.buckets))
		}

		grown = slot.buckets
	}

	// All devices grow to the same targetNr, so every slot's bucket array
	// is identical at this point; persist once rather than once per device,
	// since SuperblockStore holds a single shared array, not one per device.
	if r.superblock != nil && grown != nil {
		if err := r.superblock.Persist(grown); err != nil {
			return err
		}
	}
	return nil
}

// RestoreBuckets seeds every attached device's bucket array from a
// previously-persisted array (SuperblockStore.Load), so a remount resumes
// with the same physical bucket layout AddBuckets last grew it to instead
// of starting from an empty ring. Per-device bucketSeq is not persisted
// and restarts at zero; curIdx/lastIdx stay at their zero value too. A
// full replay driver would still need to re-derive write position from
// on-disk jset headers, which RestoreBuckets alone does not attempt.
// Devices already sized (e.g. AddBuckets ran before restore) are left
// alone rather than overwritten.
func (r *DeviceRing) RestoreBuckets(buckets []uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, slot := range r.devices {
		if len(slot.buckets) != 0 {
			continue
		}
		slot.buckets = append([]uint64(nil), buckets...)
		slot.bucketSeq = make([]uint64, len(buckets))
		if r.logger != nil {
			r.logger.Infof("device ring restored from superblock: dev=%s buckets=%d", slot.id, len(slot.buckets))
		}
	}
}

func insertSliceAt(base []uint64, at int, ins []uint64) []uint64 {
	if at < 0 || at > len(base) {
		at = len(base)
	}
	out := make([]uint64, 0, len(base)+len(ins))
	out = append(out, base[:at]...)
	out = append(out, ins...)
	out = append(out, base[at:]...)
	return out
}

// BucketCount returns the per-device bucket count (all devices are kept
// in sync by AddBuckets, so the first device's count is representative).
func (r *DeviceRing) BucketCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.devices) == 0 {
		return 0
	}
	return len(r.devices[0].buckets)
}

// SectorsAvailable reports whether the ring has room for another entry
// write in the current round; a real implementation would inspect
// per-device free space, this reports available bucket headroom.
func (r *DeviceRing) SectorsAvailable() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.devices) == 0 {
		return 0
	}
	min := int64(bucketSize)
	for _, slot := range r.devices {
		if len(slot.buckets) == 0 {
			return 0
		}
		free := int64(len(slot.buckets)-slot.curIdx+slot.lastIdx) * bucketSize
		if free < min {
			min = free
		}
	}
	return min
}

// Submit writes data to every device in parallel, round-robining each
// device's curIdx. The entry is durable only once every device acks; on
// any device failure the caller is responsible for latching the journal
// into its error state.
func (r *DeviceRing) Submit(ctx context.Context, data []byte) error {
	r.mu.Lock()
	devices := make([]*deviceSlot, len(r.devices))
	copy(devices, r.devices)
	ring := r.ring
	r.mu.Unlock()

	if len(devices) == 0 {
		return nil
	}

	if ring != nil {
		if err := r.submitBatched(ring, devices, data); err != ErrBatchUnsupported {
			return err
		}
		// Fall through to the per-device path: not every device exposed
		// a file descriptor (e.g. a mix of real and in-memory devices).
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, slot := range devices {
		slot := slot
		g.Go(func() error {
			return r.writeToDevice(ctx, slot, data)
		})
	}
	return g.Wait()
}

// ErrBatchUnsupported signals submitBatched declined because some device
// in the ring doesn't expose a file descriptor; Submit then falls back
// to the per-device goroutine path.
var ErrBatchUnsupported = fmt.Errorf("journal: device ring not eligible for io_uring batching")

// submitBatched stages one positioned write per device on ring and
// flushes them with a single io_uring_enter, then waits for every
// completion and advances each device's curIdx exactly as writeToDevice
// does. Sync is skipped per-write here: real io_uring backends fold the
// data-integrity guarantee into IORING_OP_WRITEV callers that also chain
// an fsync SQE, which the minimal backend does not implement, so a plain
// Sync is issued per device after the batch completes; a Sync failure
// fails the write like a write error does.
func (r *DeviceRing) submitBatched(ring ioring.Ring, slots []*deviceSlot, data []byte) error {
	type pending struct {
		idx  int // position within slots
		dev  int // bucket index used for this write
		slot *deviceSlot
	}

	var staged []pending
	for i, slot := range slots {
		fdDev, ok := slot.dev.(fdDevice)
		if !ok {
			return ErrBatchUnsupported
		}

		r.mu.Lock()
		bucketIdx := slot.curIdx
		if len(slot.buckets) == 0 {
			r.mu.Unlock()
			continue
		}
		bucketOff := int64(bucketIdx) * bucketSize
		slot.curIdx = (bucketIdx + 1) % len(slot.buckets)
		r.mu.Unlock()

		userData := uint64(i)
		if err := ring.PrepareWrite(fdDev.Fd(), data, bucketOff, userData); err != nil {
			return WrapDeviceError("device_write", bucketIdx, err)
		}
		staged = append(staged, pending{idx: i, dev: bucketIdx, slot: slot})
	}

	if len(staged) == 0 {
		return nil
	}

	start := time.Now()
	if _, err := ring.FlushSubmissions(); err != nil {
		return WrapDeviceError("device_write", -1, err)
	}

	results, err := ring.WaitForCompletion(len(staged))
	if err != nil {
		return WrapDeviceError("device_write", -1, err)
	}
	latency := time.Since(start)

	byUserData := make(map[uint64]ioring.Result, len(results))
	for _, res := range results {
		byUserData[res.UserData()] = res
	}

	for _, p := range staged {
		res, ok := byUserData[uint64(p.idx)]
		if !ok {
			return WrapDeviceError("device_write", p.dev, fmt.Errorf("missing io_uring completion"))
		}
		writeErr := res.Error()
		if writeErr == nil {
			writeErr = p.slot.dev.Sync()
		}
		if r.observer != nil {
			r.observer.ObserveDeviceWrite(p.dev, uint64(len(data)), uint64(latency), writeErr == nil)
		}
		if writeErr != nil {
			return WrapDeviceError("device_write", p.dev, writeErr)
		}
	}
	return nil
}

func (r *DeviceRing) writeToDevice(ctx context.Context, slot *deviceSlot, data []byte) error {
	r.mu.Lock()
	idx := slot.curIdx
	if len(slot.buckets) == 0 {
		r.mu.Unlock()
		return nil
	}
	bucketOff := int64(idx) * bucketSize
	slot.curIdx = (idx + 1) % len(slot.buckets)
	r.mu.Unlock()

	start := time.Now()
	_, err := slot.dev.WriteAt(data, bucketOff)
	if err == nil {
		err = slot.dev.Sync()
	}
	latency := time.Since(start)

	if r.observer != nil {
		r.observer.ObserveDeviceWrite(idx, uint64(len(data)), uint64(latency), err == nil)
	}
	if err != nil {
		return WrapDeviceError("device_write", idx, err)
	}
	return nil
}

// MarkBucketSeq records the highest seq written into a device's current
// bucket, allowing reuse once lastSeqOndisk catches up.
func (r *DeviceRing) MarkBucketSeq(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, slot := range r.devices {
		if len(slot.bucketSeq) == 0 {
			continue
		}
		idx := slot.curIdx - 1
		if idx < 0 {
			idx = len(slot.bucketSeq) - 1
		}
		slot.bucketSeq[idx] = seq
	}
	if seq > r.lastSeqOndisk {
		r.lastSeqOndisk = seq
	}
}

// LastSeqOndisk returns the highest seq acknowledged durable across all
// devices.
func (r *DeviceRing) LastSeqOndisk() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeqOndisk
}
