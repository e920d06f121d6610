// Package devices provides Device implementations for journal buckets:
// a sharded in-memory device for tests, and a real file-backed device
// for production use.
package devices

import (
	"fmt"
	"sync"
)

// MemShardSize is the size of each memory shard (64KB), chosen for the
// same reason a block backend shards at this size: good parallelism for
// concurrent per-device bucket writes from the DeviceRing without
// locking the whole device on every write.
const MemShardSize = 64 * 1024

// Memory is a RAM-backed journal device. It uses sharded locking so
// multiple in-flight bucket writes to disjoint regions don't serialize
// on a single mutex.
type Memory struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// NewMemory creates a new memory-backed device of the given size.
func NewMemory(size int64) *Memory {
	numShards := (size + MemShardSize - 1) / MemShardSize
	if numShards < 1 {
		numShards = 1
	}
	return &Memory{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / MemShardSize)
	end = int((off + length - 1) / MemShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// ReadAt implements interfaces.Device.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return n, nil
}

// WriteAt implements interfaces.Device.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, fmt.Errorf("devices: write beyond end of device (off=%d size=%d)", off, m.size)
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
	return n, nil
}

// Size implements interfaces.Device.
func (m *Memory) Size() int64 { return m.size }

// Sync implements interfaces.Device. A memory device has nothing to flush.
func (m *Memory) Sync() error { return nil }

// Close implements interfaces.Device.
func (m *Memory) Close() error {
	m.data = nil
	return nil
}
