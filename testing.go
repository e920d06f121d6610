package journal

import "sync"

// MockDevice provides a mock implementation of Device for testing,
// tracking method calls for verification. Exposes only the journal's
// simpler Device interface (no discard/zero/resize surfaces — those are
// block-device concerns out of this module's scope).
type MockDevice struct {
	mu     sync.RWMutex
	data   []byte
	size   int64
	closed bool
	synced bool

	readCalls  int
	writeCalls int
	syncCalls  int

	// FailWrites, if set, makes every WriteAt return this error instead of
	// succeeding; used to exercise the journal's ERROR-latching path.
	FailWrites error
}

// NewMockDevice creates a mock device with the specified size.
func NewMockDevice(size int64) *MockDevice {
	return &MockDevice{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements Device.
func (m *MockDevice) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if m.closed {
		return 0, ErrIO
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	return copy(p, m.data[off:off+int64(len(p))]), nil
}

// WriteAt implements Device.
func (m *MockDevice) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.closed {
		return 0, ErrIO
	}
	if m.FailWrites != nil {
		return 0, m.FailWrites
	}
	if off >= m.size {
		return 0, ErrNoSpace
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	return copy(m.data[off:off+int64(len(p))], p), nil
}

// Size implements Device.
func (m *MockDevice) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Sync implements Device.
func (m *MockDevice) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCalls++
	m.synced = true
	return nil
}

// Close implements Device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockDevice) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// IsSynced reports whether Sync has been called at least once.
func (m *MockDevice) IsSynced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

// CallCounts returns the number of times each method has been called.
func (m *MockDevice) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"sync":  m.syncCalls,
	}
}

// Reset clears all call counters and state flags, keeping the device's
// data and size.
func (m *MockDevice) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls = 0
	m.writeCalls = 0
	m.syncCalls = 0
	m.synced = false
}

// Compile-time interface check.
var _ Device = (*MockDevice)(nil)
