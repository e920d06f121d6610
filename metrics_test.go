package journal

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.DeviceWriteOps != 0 {
		t.Errorf("Expected 0 initial device writes, got %d", snap.DeviceWriteOps)
	}

	m.RecordReservation(512, false)
	m.RecordReservation(0, true)
	m.RecordSwitch()
	m.RecordReclaim(3)
	m.RecordReclaim(0)
	m.RecordDeviceWrite(1024, 1_000_000, true)  // 1KB, 1ms, success
	m.RecordDeviceWrite(512, 500_000, false)    // 512B, 0.5ms, error

	snap = m.Snapshot()

	if snap.ReservationsGranted != 1 {
		t.Errorf("Expected 1 reservation granted, got %d", snap.ReservationsGranted)
	}
	if snap.ReservationsBlocked != 1 {
		t.Errorf("Expected 1 reservation blocked, got %d", snap.ReservationsBlocked)
	}
	if snap.Switches != 1 {
		t.Errorf("Expected 1 switch, got %d", snap.Switches)
	}
	if snap.SeqsReclaimed != 3 {
		t.Errorf("Expected 3 seqs reclaimed, got %d", snap.SeqsReclaimed)
	}
	if snap.ReclaimBlocked != 1 {
		t.Errorf("Expected 1 blocked reclaim tick, got %d", snap.ReclaimBlocked)
	}
	if snap.DeviceWriteOps != 2 {
		t.Errorf("Expected 2 device write ops, got %d", snap.DeviceWriteOps)
	}
	if snap.DeviceWriteBytes != 1024 {
		t.Errorf("Expected 1024 device write bytes, got %d", snap.DeviceWriteBytes)
	}
	if snap.DeviceWriteErrors != 1 {
		t.Errorf("Expected 1 device write error, got %d", snap.DeviceWriteErrors)
	}

	expectedErrorRate := float64(1) / float64(2) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordDeviceWrite(1024, 1_000_000, true) // 1ms
	m.RecordDeviceWrite(1024, 2_000_000, true) // 2ms

	snap := m.Snapshot()

	expectedAvgNs := uint64(1_500_000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordDeviceWrite(1024, 1_000_000, true)
	m.RecordSwitch()

	snap := m.Snapshot()
	if snap.DeviceWriteOps == 0 {
		t.Error("Expected some operations before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.DeviceWriteOps != 0 {
		t.Errorf("Expected 0 device writes after reset, got %d", snap.DeviceWriteOps)
	}
	if snap.Switches != 0 {
		t.Errorf("Expected 0 switches after reset, got %d", snap.Switches)
	}
}

func TestObserver(t *testing.T) {
	observer := NoOpObserver{}
	observer.ObserveReservation(512, false)
	observer.ObserveSwitch()
	observer.ObserveReclaim(1)
	observer.ObserveDeviceWrite(0, 1024, 1_000_000, true)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveDeviceWrite(0, 1024, 1_000_000, true)
	metricsObserver.ObserveDeviceWrite(1, 2048, 2_000_000, true)

	snap := m.Snapshot()
	if snap.DeviceWriteOps != 2 {
		t.Errorf("Expected 2 device write ops from observer, got %d", snap.DeviceWriteOps)
	}
	if snap.DeviceWriteBytes != 1024+2048 {
		t.Errorf("Expected %d device write bytes from observer, got %d", 1024+2048, snap.DeviceWriteBytes)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordDeviceWrite(1024, 1_000_000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()

	if snap.WriteIOPS < 0.9 || snap.WriteIOPS > 1.1 {
		t.Errorf("Expected WriteIOPS ~1.0, got %.2f", snap.WriteIOPS)
	}
	if snap.WriteBandwidth < 1000 || snap.WriteBandwidth > 1050 {
		t.Errorf("Expected WriteBandwidth ~1024, got %.2f", snap.WriteBandwidth)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordDeviceWrite(1024, 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordDeviceWrite(1024, 5_000_000, true) // 5ms
	}
	m.RecordDeviceWrite(1024, 50_000_000, true) // 50ms outlier

	snap := m.Snapshot()

	if snap.DeviceWriteOps != 100 {
		t.Errorf("Expected 100 total device writes, got %d", snap.DeviceWriteOps)
	}

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	totalInBuckets := uint64(0)
	for i := 0; i < len(snap.LatencyHistogram); i++ {
		totalInBuckets += snap.LatencyHistogram[i]
	}
	if totalInBuckets == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}
