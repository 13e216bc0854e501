package metrics

import "time"

// Window accumulates timing stats across training cycles.
type Window struct {
	examples int
	fit      time.Duration
	predict  time.Duration
	cycles   int
	lastLoss float64
}

// Record adds one cycle: examples visited by the optimizer, time spent in
// Fit and Predict, and the cycle's loss.
func (w *Window) Record(examples int, fitTime, predictTime time.Duration, loss float64) {
	w.examples += examples
	w.fit += fitTime
	w.predict += predictTime
	w.cycles++
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Cycles: w.cycles}
	if w.fit > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.fit.Seconds()
	}
	if w.cycles > 0 {
		snap.AvgFitMS = (w.fit.Seconds() * 1000) / float64(w.cycles)
		snap.AvgPredictMS = (w.predict.Seconds() * 1000) / float64(w.cycles)
	}
	snap.LastLoss = w.lastLoss

	w.examples = 0
	w.fit = 0
	w.predict = 0
	w.cycles = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Cycles         int
	ExamplesPerSec float64
	AvgFitMS       float64
	AvgPredictMS   float64
	LastLoss       float64
}
