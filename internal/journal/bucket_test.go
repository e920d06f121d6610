package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockStorePersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal-buckets.bin")
	store := NewSuperblockStore(path)

	buckets := []uint64{10, 11, 12, 13}
	require.NoError(t, store.Persist(buckets))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, buckets, loaded)
}

func TestSuperblockStoreLoadMissingFileFails(t *testing.T) {
	store := NewSuperblockStore(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	_, err := store.Load()
	assert.Error(t, err)
}

func TestSuperblockStorePersistOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal-buckets.bin")
	store := NewSuperblockStore(path)

	require.NoError(t, store.Persist([]uint64{1, 2}))
	require.NoError(t, store.Persist([]uint64{1, 2, 3, 4, 5}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, loaded)
}
