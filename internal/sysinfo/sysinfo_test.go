package sysinfo

import "testing"

func TestSnapshotReportsRuntimeFields(t *testing.T) {
	stats := Snapshot()
	if stats.NumCPU <= 0 {
		t.Errorf("NumCPU = %d, want > 0", stats.NumCPU)
	}
	if stats.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want > 0", stats.Goroutines)
	}
}
