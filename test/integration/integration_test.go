// +build integration

// Package integration exercises a full Journal lifecycle against real
// files on disk (as opposed to the package-level tests in
// internal/journal, which run against in-memory devices). Run with
// `go test -tags integration ./test/integration/...`.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	journal "github.com/cowfs/cowjournal"
	"github.com/cowfs/cowjournal/internal/devices"
)

func newFileJournal(t *testing.T, ndevices int) *journal.Journal {
	t.Helper()

	cfg := journal.DefaultConfig()
	cfg.ForceWriteInterval = time.Hour
	cfg.ReclaimTickInterval = 10 * time.Millisecond
	cfg.SuperblockPath = filepath.Join(t.TempDir(), "buckets.bin")

	var devs []journal.Device
	for i := 0; i < ndevices; i++ {
		path := filepath.Join(t.TempDir(), "journal-dev")
		dev, err := devices.OpenFileDevice(path, 32<<20)
		require.NoError(t, err)
		devs = append(devs, dev)
		t.Cleanup(func() { _ = dev.Close() })
	}

	j, err := journal.FsJournalInit(cfg, devs, nil)
	require.NoError(t, err)
	require.NoError(t, j.SetNrJournalBuckets(8))
	require.NoError(t, j.FsJournalStart(cfg, nil))
	t.Cleanup(j.FsJournalExit)
	return j
}

// Scenario 1: single-producer happy path, against a real file device.
func TestSingleProducerHappyPath(t *testing.T) {
	j := newFileJournal(t, 1)
	ctx := context.Background()

	r, err := j.ResGet(ctx, 64, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Seq)

	j.ResMarkInode(r, 42)
	j.ResPut(r)
	require.NoError(t, j.FlushSeq(ctx, r.Seq))
	assert.Equal(t, r.Seq, j.InodeJournalSeq(42))
}

// Scenario 2: two producers sharing one seq, disjoint byte ranges, both
// flushed by a single Flush call.
func TestTwoProducersShareSeq(t *testing.T) {
	j := newFileJournal(t, 1)
	ctx := context.Background()

	a, err := j.ResGet(ctx, 32, 32)
	require.NoError(t, err)
	b, err := j.ResGet(ctx, 32, 32)
	require.NoError(t, err)

	assert.Equal(t, a.Seq, b.Seq)
	assert.NotEqual(t, a.Offset, b.Offset)

	j.ResPut(a)
	j.ResPut(b)
	require.NoError(t, j.Flush(ctx))
}

// Scenario 3: a producer requesting more than the remaining room in the
// open entry forces a switch before it is granted. The entry's usable
// capacity is bounded well under MaxEntrySize (a per-B-tree suffix is
// reserved up front), so two ~400KB-class requests back to back are
// enough to exhaust one entry and force the second onto a fresh seq.
func TestForcedSwitchOnInsufficientRoom(t *testing.T) {
	j := newFileJournal(t, 1)
	ctx := context.Background()

	first, err := j.ResGet(ctx, 400_000, 400_000)
	require.NoError(t, err)
	j.ResPut(first)

	second, err := j.ResGet(ctx, 200_000, 200_000)
	require.NoError(t, err)
	assert.NotEqual(t, first.Seq, second.Seq, "a request that no longer fits must force a new seq")

	j.ResPut(second)
	require.NoError(t, j.FlushSeq(ctx, second.Seq))
}

// Scenario 4: halting the journal mid-flight fails every reservation
// thereafter without panicking or deadlocking a caller that still holds
// one from before the halt.
func TestHaltMidFlight(t *testing.T) {
	j := newFileJournal(t, 1)
	ctx := context.Background()

	r, err := j.ResGet(ctx, 8, 8)
	require.NoError(t, err)

	j.Halt()
	j.ResPut(r)

	_, err = j.ResGet(ctx, 8, 8)
	require.Error(t, err)
	assert.True(t, j.JournalError())
}

// Scenario 5: the inode filter answers InodeJournalSeq correctly across
// a flush boundary, returning 0 once the touching seq is durable only if
// no later reservation re-marks the inode (it is not cleared by flush
// alone — it tracks "most recent", not "unflushed").
func TestInodeFilterAcrossFlush(t *testing.T) {
	j := newFileJournal(t, 1)
	ctx := context.Background()

	r, err := j.ResGet(ctx, 8, 8)
	require.NoError(t, err)
	j.ResMarkInode(r, 0xCAFE)
	j.ResPut(r)
	require.NoError(t, j.FlushSeq(ctx, r.Seq))

	assert.Equal(t, r.Seq, j.InodeJournalSeq(0xCAFE))
	assert.Equal(t, uint64(0), j.InodeJournalSeq(0xBEEF))
}

// Scenario 6: adding journal buckets while reservations are in flight
// does not disturb already-granted reservations or their flush.
func TestDeviceGrowthDuringOperation(t *testing.T) {
	j := newFileJournal(t, 2)
	ctx := context.Background()

	r, err := j.ResGet(ctx, 8, 8)
	require.NoError(t, err)

	require.NoError(t, j.SetNrJournalBuckets(16))
	assert.Equal(t, 16, j.BucketCount())

	j.ResPut(r)
	require.NoError(t, j.FlushSeq(ctx, r.Seq))
}

// TestIOURingBatchedSubmission exercises the batched io_uring write path
// (falls back silently to the per-device path if io_uring setup fails in
// the test sandbox, e.g. under seccomp).
func TestIOURingBatchedSubmission(t *testing.T) {
	cfg := journal.DefaultConfig()
	cfg.ForceWriteInterval = time.Hour
	cfg.ReclaimTickInterval = 10 * time.Millisecond
	cfg.EnableIOURing = true
	cfg.IOURingEntries = 16

	path := filepath.Join(t.TempDir(), "journal-dev")
	dev, err := devices.OpenFileDevice(path, 32<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	j, err := journal.FsJournalInit(cfg, []journal.Device{dev}, nil)
	require.NoError(t, err)
	require.NoError(t, j.SetNrJournalBuckets(8))
	require.NoError(t, j.FsJournalStart(cfg, nil))
	t.Cleanup(j.FsJournalExit)

	ctx := context.Background()
	r, err := j.ResGet(ctx, 8, 8)
	require.NoError(t, err)
	j.ResPut(r)
	require.NoError(t, j.FlushSeq(ctx, r.Seq))
}
