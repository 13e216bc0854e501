package trainer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/metrics"
	"melody-forge/internal/model"
	"melody-forge/internal/optimizer"
)

// RunConfig captures the knobs required by the training driver.
type RunConfig struct {
	Cycles    int
	Optimizer optimizer.Config
	Metric    metrics.Metric
	// ResetEachCycle clears the optimizer moments before every cycle, not
	// just the first one.
	ResetEachCycle bool
	// LogEvery is the number of cycles between throughput snapshots.
	LogEvery int
	RunID    string
	Logger   *logrus.Logger
	OnCycle  func(CycleStats)
}

// CycleStats is one entry of the training log.
type CycleStats struct {
	Cycle          int
	Accuracy       float64
	Loss           float64
	Iterations     int
	Converged      bool
	ResetPolicy    bool
	OptimizerSteps int
	FitTime        time.Duration
	PredictTime    time.Duration
}

// Log is the ordered per-cycle history of a run.
type Log []CycleStats

// Final returns the last entry, or false for an empty log.
func (l Log) Final() (CycleStats, bool) {
	if len(l) == 0 {
		return CycleStats{}, false
	}
	return l[len(l)-1], true
}

// Train runs exactly cfg.Cycles fit/predict/evaluate cycles of exec over the
// training windows. The first cycle starts from fresh optimizer state, later
// cycles warm-restart unless ResetEachCycle is set.
func Train(ctx context.Context, exec model.Executor, inputs *tensor.Dense, targets *mat.Dense, cfg RunConfig) (Log, error) {
	if cfg.Cycles < 0 {
		return nil, errors.New("trainer: cycles must be >= 0")
	}
	if cfg.Metric == "" {
		cfg.Metric = metrics.FirstStep
	}
	if !cfg.Metric.Valid() {
		return nil, errors.New("trainer: unknown metric " + string(cfg.Metric))
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	entry := logger.WithField("component", "trainer")
	if cfg.RunID != "" {
		entry = entry.WithField("run_id", cfg.RunID)
	}

	history := make(Log, 0, cfg.Cycles)
	if cfg.Cycles == 0 {
		return history, nil
	}
	if err := cfg.Optimizer.Validate(); err != nil {
		return nil, err
	}

	state := optimizer.NewState(cfg.Optimizer)
	var window metrics.Window
	for cycle := 1; cycle <= cfg.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return history, &TrainingError{Cycle: cycle, Phase: PhaseFit, Err: err}
		}
		resetPolicy := state.ResetPolicy

		startFit := time.Now()
		res, err := exec.Fit(ctx, inputs, targets, state)
		if err != nil {
			return history, &TrainingError{Cycle: cycle, Phase: PhaseFit, Err: err}
		}
		fitTime := time.Since(startFit)
		state.ResetPolicy = cfg.ResetEachCycle

		startPredict := time.Now()
		predicted, err := exec.Predict(inputs)
		if err != nil {
			return history, &TrainingError{Cycle: cycle, Phase: PhasePredict, Err: err}
		}
		predictTime := time.Since(startPredict)

		acc, err := evaluate(cfg.Metric, predicted, inputs, targets)
		if err != nil {
			return history, &TrainingError{Cycle: cycle, Phase: PhaseEvaluate, Err: err}
		}

		stats := CycleStats{
			Cycle:          cycle,
			Accuracy:       acc,
			Loss:           res.Loss,
			Iterations:     res.Iterations,
			Converged:      res.Converged,
			ResetPolicy:    resetPolicy,
			OptimizerSteps: state.Steps,
			FitTime:        fitTime,
			PredictTime:    predictTime,
		}
		history = append(history, stats)
		window.Record(res.Examples, fitTime, predictTime, res.Loss)

		entry.WithFields(logrus.Fields{
			"cycle":        cycle,
			"accuracy":     acc,
			"loss":         res.Loss,
			"iterations":   res.Iterations,
			"converged":    res.Converged,
			"reset_policy": resetPolicy,
		}).Info("cycle complete")

		if cycle%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			entry.WithFields(logrus.Fields{
				"cycle":            cycle,
				"examples_per_sec": snap.ExamplesPerSec,
				"fit_ms":           snap.AvgFitMS,
				"predict_ms":       snap.AvgPredictMS,
				"loss":             snap.LastLoss,
			}).Debug("throughput")
		}
		if cfg.OnCycle != nil {
			cfg.OnCycle(stats)
		}
	}
	return history, nil
}

func evaluate(metric metrics.Metric, predicted, inputs *tensor.Dense, targets *mat.Dense) (float64, error) {
	if metric == metrics.NextNote {
		return metrics.NextNoteAccuracy(predicted, targets)
	}
	return metrics.Accuracy(predicted, inputs)
}
