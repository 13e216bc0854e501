package trainer

import "fmt"

// Phase names the step of a cycle that failed.
type Phase string

const (
	PhaseFit      Phase = "fit"
	PhasePredict  Phase = "predict"
	PhaseEvaluate Phase = "evaluate"
)

// TrainingError reports a failure inside a training cycle. Cycles are
// numbered from 1.
type TrainingError struct {
	Cycle int
	Phase Phase
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("trainer: cycle %d %s: %v", e.Cycle, e.Phase, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }
