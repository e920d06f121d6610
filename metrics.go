package journal

import (
	"sync/atomic"
	"time"

	"github.com/cowfs/cowjournal/internal/interfaces"
)

// LatencyBuckets defines the device-write latency histogram buckets in
// nanoseconds. Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a journal
// core: reservations, buffer switches, reclaim progress, and per-device
// write latency.
type Metrics struct {
	// Reservation fast/slow path
	ReservationsGranted atomic.Uint64
	ReservationsBlocked atomic.Uint64

	// Buffer-switch state machine
	Switches atomic.Uint64

	// Reclaim
	ReclaimTicks   atomic.Uint64
	SeqsReclaimed  atomic.Uint64
	ReclaimBlocked atomic.Uint64

	// Device writes
	DeviceWriteOps    atomic.Uint64
	DeviceWriteBytes  atomic.Uint64
	DeviceWriteErrors atomic.Uint64

	// Performance tracking (device-write latency)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] contains
	// the count of writes with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordReservation records a res_get outcome.
func (m *Metrics) RecordReservation(granted uint32, blocked bool) {
	if blocked {
		m.ReservationsBlocked.Add(1)
		return
	}
	if granted > 0 {
		m.ReservationsGranted.Add(1)
	}
}

// RecordSwitch records a completed switch_buffer call.
func (m *Metrics) RecordSwitch() {
	m.Switches.Add(1)
}

// RecordReclaim records one reclaim_tick's progress.
func (m *Metrics) RecordReclaim(count int) {
	m.ReclaimTicks.Add(1)
	if count > 0 {
		m.SeqsReclaimed.Add(uint64(count))
	} else {
		m.ReclaimBlocked.Add(1)
	}
}

// RecordDeviceWrite records a completed (or failed) per-device write.
func (m *Metrics) RecordDeviceWrite(bytes uint64, latencyNs uint64, success bool) {
	m.DeviceWriteOps.Add(1)
	if success {
		m.DeviceWriteBytes.Add(bytes)
	} else {
		m.DeviceWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the journal as stopped (halt() called).
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	ReservationsGranted uint64
	ReservationsBlocked uint64
	Switches            uint64
	ReclaimTicks        uint64
	SeqsReclaimed       uint64
	ReclaimBlocked      uint64

	DeviceWriteOps    uint64
	DeviceWriteBytes  uint64
	DeviceWriteErrors uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	WriteIOPS      float64
	WriteBandwidth float64
	ErrorRate      float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReservationsGranted: m.ReservationsGranted.Load(),
		ReservationsBlocked: m.ReservationsBlocked.Load(),
		Switches:            m.Switches.Load(),
		ReclaimTicks:        m.ReclaimTicks.Load(),
		SeqsReclaimed:       m.SeqsReclaimed.Load(),
		ReclaimBlocked:      m.ReclaimBlocked.Load(),
		DeviceWriteOps:      m.DeviceWriteOps.Load(),
		DeviceWriteBytes:    m.DeviceWriteBytes.Load(),
		DeviceWriteErrors:   m.DeviceWriteErrors.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.WriteIOPS = float64(snap.DeviceWriteOps) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.DeviceWriteBytes) / uptimeSeconds
	}

	if snap.DeviceWriteOps > 0 {
		snap.ErrorRate = float64(snap.DeviceWriteErrors) / float64(snap.DeviceWriteOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.ReservationsGranted.Store(0)
	m.ReservationsBlocked.Store(0)
	m.Switches.Store(0)
	m.ReclaimTicks.Store(0)
	m.SeqsReclaimed.Store(0)
	m.ReclaimBlocked.Store(0)
	m.DeviceWriteOps.Store(0)
	m.DeviceWriteBytes.Store(0)
	m.DeviceWriteErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver is a no-op implementation of interfaces.Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveReservation(uint32, bool)           {}
func (NoOpObserver) ObserveSwitch()                            {}
func (NoOpObserver) ObserveReclaim(int)                        {}
func (NoOpObserver) ObserveDeviceWrite(int, uint64, uint64, bool) {}

// MetricsObserver implements interfaces.Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveReservation(granted uint32, blocked bool) {
	o.metrics.RecordReservation(granted, blocked)
}

func (o *MetricsObserver) ObserveSwitch() {
	o.metrics.RecordSwitch()
}

func (o *MetricsObserver) ObserveReclaim(count int) {
	o.metrics.RecordReclaim(count)
}

func (o *MetricsObserver) ObserveDeviceWrite(deviceIdx int, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordDeviceWrite(bytes, latencyNs, success)
}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
