// Package pipeline runs a complete training job: load, window, train and
// export.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"melody-forge/internal/config"
	"melody-forge/internal/dataset"
	"melody-forge/internal/export"
	"melody-forge/internal/metrics"
	"melody-forge/internal/model"
	"melody-forge/internal/model/loomnet"
	"melody-forge/internal/trainer"
)

// Result is what a run produced. Executor is set once training has finished,
// even when the export step failed, so the export can be retried.
type Result struct {
	RunID       string
	Windows     *dataset.Windows
	Log         trainer.Log
	Predictions []float64
	Executor    model.Executor
}

// Run executes cfg end to end. cfg must already be validated.
func Run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Result, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	res := &Result{RunID: uuid.NewString()}
	log := logger.WithField("run_id", res.RunID)

	series, err := dataset.LoadSeries(cfg.Data.TrainPath, cfg.Data.SkipRows)
	if err != nil {
		return res, err
	}
	windows, err := dataset.Build(series, cfg.Data.WindowLength)
	if err != nil {
		return res, err
	}
	res.Windows = windows
	heldOut, err := dataset.LoadSeries(cfg.Data.TestPath, cfg.Data.SkipRows)
	if err != nil {
		return res, err
	}
	targets, _ := windows.Targets.Dims()
	log.WithFields(logrus.Fields{
		"notes":    len(series),
		"targets":  targets,
		"classes":  windows.NumClasses,
		"held_out": len(heldOut),
	}).Info("data loaded")

	exec, err := NewExecutor(cfg, windows)
	if err != nil {
		return res, err
	}
	log.WithField("backend", cfg.Model.Backend).Info("executor ready")

	history, err := trainer.Train(ctx, exec, windows.Inputs, windows.Targets, trainer.RunConfig{
		Cycles:         cfg.Train.Cycles,
		Optimizer:      cfg.Optimizer(),
		Metric:         metrics.Metric(cfg.Train.Metric),
		ResetEachCycle: cfg.Train.ResetEachCycle,
		LogEvery:       cfg.Train.LogEvery,
		RunID:          res.RunID,
		Logger:         logger,
	})
	res.Log = history
	if err != nil {
		return res, err
	}
	res.Executor = exec
	if final, ok := history.Final(); ok {
		log.WithFields(logrus.Fields{
			"cycles":   len(history),
			"accuracy": final.Accuracy,
			"loss":     final.Loss,
		}).Info("training finished")
	}

	row, err := Export(cfg, exec, heldOut)
	if err != nil {
		return res, err
	}
	res.Predictions = row
	log.WithFields(logrus.Fields{
		"path":        cfg.Data.ResultPath,
		"predictions": len(res.Predictions),
	}).Info("results written")
	return res, nil
}

// Export predicts heldOut with p and writes the result row.
func Export(cfg *config.Config, p model.Predictor, heldOut []float64) ([]float64, error) {
	row, err := export.Predictions(p, heldOut, cfg.Data.WindowLength)
	if err != nil {
		return nil, err
	}
	if err := export.WriteFile(cfg.Data.ResultPath, row); err != nil {
		return row, err
	}
	return row, nil
}

// NewExecutor builds the configured backend for windows.
func NewExecutor(cfg *config.Config, windows *dataset.Windows) (model.Executor, error) {
	switch cfg.Model.Backend {
	case config.BackendLinear:
		return model.NewLinear(windows.Length, windows.NumClasses, cfg.Model.Seed), nil
	case config.BackendLoom:
		arch := model.DefaultArchitecture(windows.NumClasses, cfg.ModelOptions())
		return loomnet.New(arch, windows.Length, cfg.Model.Seed)
	default:
		return nil, fmt.Errorf("pipeline: unknown backend %q", cfg.Model.Backend)
	}
}
