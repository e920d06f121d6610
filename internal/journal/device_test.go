package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowfs/cowjournal/internal/devices"
)

func TestClampBucketCount(t *testing.T) {
	assert.Equal(t, 8, clampBucketCount(0))
	assert.Equal(t, 8, clampBucketCount(1000))
	assert.Equal(t, 8, clampBucketCount(256)) // raw target is 1, clamped up to MinJournalBuckets=8
	assert.Equal(t, 128, clampBucketCount(1024*1024)) // raw target 4096, capped at MaxJournalRingSize/bucketSize=128
}

func TestDeviceRingAddDeviceAndBuckets(t *testing.T) {
	ring := NewDeviceRing(NoOpObserverForTest{}, nil)
	ring.AddDevice(devices.NewMemory(8 << 20))
	ring.AddDevice(devices.NewMemory(8 << 20))

	require.NoError(t, ring.AddBuckets(4))
	assert.Equal(t, 4, ring.BucketCount())

	require.NoError(t, ring.AddBuckets(8))
	assert.Equal(t, 8, ring.BucketCount())
}

func TestDeviceRingAddBucketsMonotoneEquivalence(t *testing.T) {
	ringA := NewDeviceRing(NoOpObserverForTest{}, nil)
	ringA.AddDevice(devices.NewMemory(8 << 20))
	require.NoError(t, ringA.AddBuckets(4))
	require.NoError(t, ringA.AddBuckets(10))

	ringB := NewDeviceRing(NoOpObserverForTest{}, nil)
	ringB.AddDevice(devices.NewMemory(8 << 20))
	require.NoError(t, ringB.AddBuckets(10))

	assert.Equal(t, ringB.BucketCount(), ringA.BucketCount())
}

func TestDeviceRingAddBucketsShrinkIsNoop(t *testing.T) {
	ring := NewDeviceRing(NoOpObserverForTest{}, nil)
	ring.AddDevice(devices.NewMemory(8 << 20))
	require.NoError(t, ring.AddBuckets(8))
	require.NoError(t, ring.AddBuckets(4))
	assert.Equal(t, 8, ring.BucketCount())
}

func TestDeviceRingSubmitWritesAllDevices(t *testing.T) {
	devA := devices.NewMemory(8 << 20)
	devB := devices.NewMemory(8 << 20)

	ring := NewDeviceRing(NoOpObserverForTest{}, nil)
	ring.AddDevice(devA)
	ring.AddDevice(devB)
	require.NoError(t, ring.AddBuckets(2))

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, ring.Submit(context.Background(), payload))

	got := make([]byte, 64)
	_, err := devA.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = devB.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDeviceRingSubmitFailsOnAnyDeviceError(t *testing.T) {
	good := devices.NewMemory(8 << 20)
	bad := &failingDevice{Memory: devices.NewMemory(8 << 20)}

	ring := NewDeviceRing(NoOpObserverForTest{}, nil)
	ring.AddDevice(good)
	ring.AddDevice(bad)
	require.NoError(t, ring.AddBuckets(2))

	err := ring.Submit(context.Background(), []byte("entry"))
	assert.Error(t, err)
}

// failingDevice wraps devices.Memory but always fails WriteAt, exercising
// the parallel-submission error path.
type failingDevice struct {
	*devices.Memory
}

func (f *failingDevice) WriteAt(p []byte, off int64) (int, error) {
	return 0, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "simulated device write failure" }

// NoOpObserverForTest satisfies interfaces.Observer without pulling in the
// root package (which would create an import cycle with internal/journal).
type NoOpObserverForTest struct{}

func (NoOpObserverForTest) ObserveReservation(uint32, bool)             {}
func (NoOpObserverForTest) ObserveSwitch()                              {}
func (NoOpObserverForTest) ObserveReclaim(int)                          {}
func (NoOpObserverForTest) ObserveDeviceWrite(int, uint64, uint64, bool) {}
