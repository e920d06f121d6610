// Package constants holds sizing and timing defaults for the journal core.
package constants

import "time"

// Entry sizing. Entry buffers grow on demand between these bounds; both
// must be powers of two.
const (
	// MinEntrySize is the smallest an EntryBuffer's arena is allowed to be.
	MinEntrySize = 256 * 1024

	// MaxEntrySize is the largest an EntryBuffer's arena may grow to.
	MaxEntrySize = 4 * 1024 * 1024
)

// BTreeIDCount is the number of distinct B-tree IDs whose root pointer may
// be appended into the suffix reserved at open_entry time (see
// JsetKeysOverhead/MaxExtentSize below).
const BTreeIDCount = 16

// JsetKeysOverhead and MaxExtentSize bound the per-B-tree suffix reserved
// at open time so guaranteed-always entries (B-tree roots, bucket
// pointers) can be appended at write time without re-checking capacity.
const (
	JsetKeysOverhead = 8  // u64s of jset_entry header per reserved key
	MaxExtentSize    = 32 // u64s of worst-case bkey payload per reserved key
)

// Timer defaults. These are pure optimizations; correctness does not
// depend on them firing promptly.
const (
	// DefaultForceWriteInterval is how long an open entry may sit
	// unwritten before the delayed write timer forces a switch.
	DefaultForceWriteInterval = 1000 * time.Millisecond

	// DefaultReclaimTickInterval is the periodic reclaim cadence.
	DefaultReclaimTickInterval = 100 * time.Millisecond
)

// DefaultPinFIFODepth bounds how many in-flight (unreclaimed) sequences
// the FIFO may hold before open_entry reports no space and res_get waits
// for reclaim.
const DefaultPinFIFODepth = 64

// Device ring sizing, applied when a DeviceRing is first populated.
const (
	MinJournalBuckets  = 8
	MaxJournalBuckets  = 1024
	MaxJournalRingSize = 512 * 1024 * 1024 // 512MiB
)

// HasInodeFilterBits is the width of the per-buffer inode Bloom filter.
const HasInodeFilterBits = 256

// HasInodeFilterHashes is the number of hash rounds used by the Bloom
// filter; false positives only force an unnecessary flush, so a small k
// keeps Set() cheap on the hot reservation path.
const HasInodeFilterHashes = 4

// BucketSeqCleanupThreshold is a switch-count interval for bucket GC. The
// journal core does not consult it: it invokes the registered bucket GC
// callback on every switch with the running count, and a callback may
// compare that count against this value. The core never performs bucket
// GC itself.
const BucketSeqCleanupThreshold = 1 << 14
