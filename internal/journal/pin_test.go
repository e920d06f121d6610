package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinFIFOPushAndLen(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, uint64(1), f.LastSeq())
	assert.Equal(t, uint64(1), f.CurSeq())
}

func TestPinFIFOFullAtDepth(t *testing.T) {
	f := NewPinFIFO(2)
	f.Push(1)
	f.Push(2)
	assert.True(t, f.Full())
}

func TestPinFIFOTickReclaimsZeroRefcount(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	f.Release(1) // drop the "open" hold; refcount now 0

	reclaimed, blocked := f.Tick()
	assert.Equal(t, 1, reclaimed)
	assert.False(t, blocked)
	assert.Nil(t, f.Get(1))
	assert.Equal(t, uint64(1), f.LastSeq())
}

func TestPinFIFOTickStopsAtOutstandingRefcount(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	f.Push(2)
	f.Release(2)

	reclaimed, blocked := f.Tick()
	assert.Equal(t, 0, reclaimed)
	assert.False(t, blocked)
	require.NotNil(t, f.Get(1))
}

func TestPinFIFORegisterFlusherRunsOnReclaim(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	f.Release(1)

	ran := false
	ok := f.RegisterFlusher(1, func(seq uint64) error {
		ran = true
		assert.Equal(t, uint64(1), seq)
		return nil
	})
	require.True(t, ok)

	reclaimed, _ := f.Tick()
	assert.Equal(t, 1, reclaimed)
	assert.True(t, ran)
}

func TestPinFIFORegisterFlusherErrorBlocksReclaim(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	f.Release(1)
	f.RegisterFlusher(1, func(seq uint64) error {
		return errors.New("allocator pressure")
	})

	reclaimed, blocked := f.Tick()
	assert.Equal(t, 0, reclaimed)
	assert.True(t, blocked)
	assert.NotNil(t, f.Get(1))
}

func TestPinFIFORegisterFlusherOnMissingSeqFails(t *testing.T) {
	f := NewPinFIFO(4)
	ok := f.RegisterFlusher(99, func(uint64) error { return nil })
	assert.False(t, ok)
}

func TestPinFIFOAcquireIncrementsRefcount(t *testing.T) {
	f := NewPinFIFO(4)
	f.Push(1)
	f.Acquire(1)
	f.Release(1) // back to 1 (the original open hold)

	reclaimed, _ := f.Tick()
	assert.Equal(t, 0, reclaimed)

	f.Release(1)
	reclaimed, _ = f.Tick()
	assert.Equal(t, 1, reclaimed)
}
