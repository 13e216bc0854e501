package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"

	"melody-forge/internal/config"
	"melody-forge/internal/dataset"
	"melody-forge/internal/export"
	"melody-forge/internal/pipeline"
	"melody-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/default.yaml", "Path to YAML config")
	trainPath := flag.String("train", "", "Override training series CSV")
	testPath := flag.String("test", "", "Override held-out series CSV")
	outPath := flag.String("out", "", "Override result CSV path")
	window := flag.Int("window", 0, "Window length")
	cycles := flag.Int("cycles", -1, "Number of training cycles (0 skips training)")
	iterations := flag.Int("iterations", 0, "Optimizer steps per cycle")
	stepSize := flag.Float64("step-size", 0, "Optimizer step size")
	batchSize := flag.Int("batch-size", 0, "Examples per optimizer step")
	backend := flag.String("backend", "", "Executor backend (loom or linear)")
	metric := flag.String("metric", "", "Accuracy metric (first-step or next-note)")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logLevel := flag.String("log-level", "", "Log level")
	logFormat := flag.String("log-format", "", "Log format (text or json)")

	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	var cyclesOverride *int
	if *cycles >= 0 {
		cyclesOverride = cycles
	}
	cfg.ApplyOverrides(config.Overrides{
		TrainPath:          *trainPath,
		TestPath:           *testPath,
		ResultPath:         *outPath,
		WindowLength:       *window,
		Cycles:             cyclesOverride,
		IterationsPerCycle: *iterations,
		StepSize:           *stepSize,
		BatchSize:          *batchSize,
		Backend:            *backend,
		Metric:             *metric,
		Seed:               *seed,
		LogLevel:           *logLevel,
		LogFormat:          *logFormat,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	configureLogger(logger, cfg.Log)

	logger.WithFields(logrus.Fields{
		"cpu":   cpuid.CPU.BrandName,
		"cores": cpuid.CPU.PhysicalCores,
		"avx2":  cpuid.CPU.Supports(cpuid.AVX2),
		"fma3":  cpuid.CPU.Supports(cpuid.FMA3),
	}).Info("host")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, logger)
	if err != nil {
		logger.WithField("run_id", res.RunID).Fatalf("%s failed: %v", stage(err), err)
	}
}

func configureLogger(logger *logrus.Logger, cfg config.LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func stage(err error) string {
	var de *dataset.DataFormatError
	var te *trainer.TrainingError
	var ee *export.ExportError
	switch {
	case errors.As(err, &de):
		return "data"
	case errors.As(err, &te):
		return fmt.Sprintf("training cycle %d", te.Cycle)
	case errors.As(err, &ee):
		return "export"
	default:
		return "run"
	}
}
