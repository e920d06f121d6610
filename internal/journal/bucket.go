package journal

import (
	"bytes"
	"fmt"
	"os"

	atomicfile "github.com/natefinch/atomic"

	"github.com/cowfs/cowjournal/internal/format"
)

// SuperblockStore persists the dedicated superblock section recording
// the fixed list of journal bucket extents ({ le64 buckets[] }), using
// an atomic rename so a crash mid-write never leaves a torn bucket
// array on disk.
type SuperblockStore struct {
	path string
}

// NewSuperblockStore creates a store writing the bucket array to path.
func NewSuperblockStore(path string) *SuperblockStore {
	return &SuperblockStore{path: path}
}

// Persist atomically writes the device ring's current bucket list, one
// array shared by all devices. Called from AddBuckets after the new arrays are swapped
// in under the ring's mutex, matching "the superblock journal-bucket
// array is resized to match" from the allocation contract.
func (s *SuperblockStore) Persist(buckets []uint64) error {
	data := format.MarshalBucketArray(&format.BucketArray{Buckets: buckets})
	if err := atomicfile.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("journal: persist bucket array: %w", err)
	}
	return nil
}

// Load reads back a previously persisted bucket array, e.g. at mount.
func (s *SuperblockStore) Load() ([]uint64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("journal: load bucket array: %w", err)
	}
	arr, err := format.UnmarshalBucketArray(data)
	if err != nil {
		return nil, err
	}
	return arr.Buckets, nil
}
