package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(50, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(50, 30*time.Millisecond, 20*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.ExamplesPerSec-2000) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ExamplesPerSec)
	}
	if math.Abs(snap.AvgFitMS-25) > 1e-9 || math.Abs(snap.AvgPredictMS-15) > 1e-9 {
		t.Fatalf("unexpected averages fit=%.3f predict=%.3f", snap.AvgFitMS, snap.AvgPredictMS)
	}
	if w.examples != 0 || w.cycles != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 || snap.Cycles != 2 {
		t.Fatalf("expected last loss 0.8 over 2 cycles, got %+v", snap)
	}
}
