package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowfs/cowjournal/internal/constants"
)

func TestEntryBufferLifecycleStates(t *testing.T) {
	buf := newEntryBuffer(0)
	assert.Equal(t, BufferFree, buf.getState())

	buf.setState(BufferOpen)
	assert.Equal(t, BufferOpen, buf.getState())
	assert.Equal(t, "open", buf.getState().String())
}

func TestEntryBufferEnsureCapacityGrowsPowerOfTwo(t *testing.T) {
	buf := newEntryBuffer(0)
	require.Equal(t, uint32(constants.MinEntrySize), buf.size)

	ok := buf.ensureCapacity(constants.MinEntrySize + 1)
	require.True(t, ok)
	assert.Equal(t, uint32(constants.MinEntrySize*2), buf.size)
}

func TestEntryBufferEnsureCapacityRejectsOversize(t *testing.T) {
	buf := newEntryBuffer(0)
	ok := buf.ensureCapacity(constants.MaxEntrySize + 1)
	assert.False(t, ok)
}

func TestEntryBufferInodeFilter(t *testing.T) {
	buf := newEntryBuffer(0)
	buf.reinit(1, 0)

	assert.False(t, buf.testInode(0xABCDEF))
	buf.markInode(0xABCDEF)
	assert.True(t, buf.testInode(0xABCDEF))
}

func TestEntryBufferReinitClearsFilterAndSeq(t *testing.T) {
	buf := newEntryBuffer(0)
	buf.reinit(1, 0)
	buf.markInode(42)
	require.True(t, buf.testInode(42))

	buf.reinit(2, 0)
	assert.Equal(t, uint64(2), buf.seq)
	assert.False(t, buf.testInode(42))
}

func TestEntryBufferSerializeLength(t *testing.T) {
	buf := newEntryBuffer(0)
	buf.reinit(7, 0)
	buf.writeAt(0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	buf.seal(7, 1)

	data := buf.serialize()
	assert.Equal(t, 24+8, len(data))
}

func TestWaitListCompleteWakesRegisteredWaiters(t *testing.T) {
	wl := newWaitList()
	ch := wl.register()

	select {
	case <-ch:
		t.Fatal("channel fired before complete")
	default:
	}

	wl.complete(nil)
	err := <-ch
	assert.NoError(t, err)
}

func TestWaitListLateRegistrationSelfCompletes(t *testing.T) {
	wl := newWaitList()
	wl.complete(nil)

	ch := wl.register()
	err := <-ch
	assert.NoError(t, err)
}

func TestWaitListResetAllowsReuse(t *testing.T) {
	wl := newWaitList()
	wl.complete(nil)
	wl.reset()

	ch := wl.register()
	select {
	case <-ch:
		t.Fatal("channel should not have fired after reset")
	default:
	}
}
