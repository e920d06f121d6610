// Package interfaces provides internal interface definitions for cowjournal.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

// Device is a single journal device: a byte-addressable extent that the
// DeviceRing writes journal buckets into. Implementations back onto a real
// block device, a plain file, or memory for tests.
type Device interface {
	WriteAt(p []byte, off int64) (n int, err error)
	ReadAt(p []byte, off int64) (n int, err error)
	Sync() error
	Size() int64
	Close() error
}

// Logger is the logging sink used by journal components.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer collects journal metrics. Implementations must be thread-safe;
// methods are called from the reservation fast path and the reclaim loop.
type Observer interface {
	ObserveReservation(granted uint32, blocked bool)
	ObserveSwitch()
	ObserveReclaim(count int)
	ObserveDeviceWrite(deviceIdx int, bytes uint64, latencyNs uint64, success bool)
}
