package journal

import "github.com/cowfs/cowjournal/internal/constants"

// Re-export sizing and timing constants for the public API.
const (
	MinEntrySize               = constants.MinEntrySize
	MaxEntrySize               = constants.MaxEntrySize
	BTreeIDCount               = constants.BTreeIDCount
	JsetKeysOverhead           = constants.JsetKeysOverhead
	MaxExtentSize              = constants.MaxExtentSize
	DefaultForceWriteInterval  = constants.DefaultForceWriteInterval
	DefaultReclaimTickInterval = constants.DefaultReclaimTickInterval
	DefaultPinFIFODepth        = constants.DefaultPinFIFODepth
	MinJournalBuckets          = constants.MinJournalBuckets
	MaxJournalBuckets          = constants.MaxJournalBuckets
	MaxJournalRingSize         = constants.MaxJournalRingSize
	HasInodeFilterBits         = constants.HasInodeFilterBits
	HasInodeFilterHashes       = constants.HasInodeFilterHashes
	BucketSeqCleanupThreshold  = constants.BucketSeqCleanupThreshold
)
