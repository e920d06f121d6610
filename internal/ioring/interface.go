// Package ioring provides a minimal io_uring-backed submission path for
// batching journal bucket writes across multiple devices into as few
// io_uring_enter syscalls as possible.
package ioring

import (
	"errors"
)

// ErrRingFull is returned when the submission queue is full. The
// DeviceRing never has more in-flight writes than it has devices, so this
// should not occur in normal operation.
var ErrRingFull = errors.New("submission queue full")

// Ring batches positioned writes to journal devices.
type Ring interface {
	// Close closes the ring and releases resources.
	Close() error

	// PrepareWrite stages a positioned write without submitting to the
	// kernel. The SQE is written to ring memory but not visible until
	// FlushSubmissions is called, enabling one syscall per batch of
	// per-device writes for a single journal entry.
	PrepareWrite(fd int32, data []byte, offset int64, userData uint64) error

	// FlushSubmissions submits all prepared SQEs with one io_uring_enter
	// syscall and returns the number submitted.
	FlushSubmissions() (uint32, error)

	// WaitForCompletion blocks until at least one completion is
	// available (or minComplete, if > 1) and returns them.
	WaitForCompletion(minComplete int) ([]Result, error)
}

// Result is the outcome of one submitted write.
type Result interface {
	UserData() uint64
	Value() int32 // bytes written, or negative errno
	Error() error
}

// Config configures a new Ring.
type Config struct {
	Entries uint32 // submission queue depth; one entry per journal device is typical
}
