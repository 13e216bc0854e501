package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"melody-forge/internal/metrics"
	"melody-forge/internal/model"
	"melody-forge/internal/optimizer"
)

// Backend names an executor implementation.
const (
	BackendLoom   = "loom"
	BackendLinear = "linear"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Data  DataConfig  `yaml:"data"`
	Model ModelConfig `yaml:"model"`
	Train TrainConfig `yaml:"train"`
	Log   LogConfig   `yaml:"log"`
}

// DataConfig locates the input series and the result file.
type DataConfig struct {
	TrainPath    string `yaml:"train_path"`
	TestPath     string `yaml:"test_path"`
	ResultPath   string `yaml:"result_path"`
	WindowLength int    `yaml:"window_length"`
	SkipRows     int    `yaml:"skip_rows"`
}

// ModelConfig sizes the network.
type ModelConfig struct {
	Backend    string  `yaml:"backend"`
	Projection int     `yaml:"projection"`
	HiddenSize int     `yaml:"hidden_size"`
	DenseSize  int     `yaml:"dense_size"`
	Dropout    float64 `yaml:"dropout"`
	Seed       int64   `yaml:"seed"`
}

// TrainConfig drives the cycle loop and the optimizer.
type TrainConfig struct {
	Cycles             int     `yaml:"cycles"`
	IterationsPerCycle int     `yaml:"iterations_per_cycle"`
	StepSize           float64 `yaml:"step_size"`
	BatchSize          int     `yaml:"batch_size"`
	Tolerance          float64 `yaml:"tolerance"`
	Beta1              float64 `yaml:"beta1"`
	Beta2              float64 `yaml:"beta2"`
	Epsilon            float64 `yaml:"epsilon"`
	Shuffle            bool    `yaml:"shuffle"`
	ResetEachCycle     bool    `yaml:"reset_each_cycle"`
	Metric             string  `yaml:"metric"`
	LogEvery           int     `yaml:"log_every"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainPath          string
	TestPath           string
	ResultPath         string
	WindowLength       int
	// Cycles is applied when non-nil, so zero cycles can be requested.
	Cycles             *int
	IterationsPerCycle int
	StepSize           float64
	BatchSize          int
	Backend            string
	Metric             string
	Seed               int64
	LogLevel           string
	LogFormat          string
}

// Default returns the reference training run.
func Default() *Config {
	opt := optimizer.DefaultConfig()
	arch := model.DefaultOptions()
	return &Config{
		Data: DataConfig{
			ResultPath:   "results.csv",
			WindowLength: 3,
		},
		Model: ModelConfig{
			Backend:    BackendLoom,
			Projection: arch.Projection,
			HiddenSize: arch.Hidden,
			DenseSize:  arch.DenseSize,
			Dropout:    arch.Dropout,
			Seed:       42,
		},
		Train: TrainConfig{
			Cycles:             50,
			IterationsPerCycle: opt.IterationsPerCycle,
			StepSize:           opt.StepSize,
			BatchSize:          opt.BatchSize,
			Tolerance:          opt.Tolerance,
			Beta1:              opt.Beta1,
			Beta2:              opt.Beta2,
			Epsilon:            opt.Epsilon,
			Metric:             string(metrics.FirstStep),
			LogEvery:           10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults. Callers validate after applying
// their overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.TrainPath != "" {
		c.Data.TrainPath = o.TrainPath
	}
	if o.TestPath != "" {
		c.Data.TestPath = o.TestPath
	}
	if o.ResultPath != "" {
		c.Data.ResultPath = o.ResultPath
	}
	if o.WindowLength > 0 {
		c.Data.WindowLength = o.WindowLength
	}
	if o.Cycles != nil {
		c.Train.Cycles = *o.Cycles
	}
	if o.IterationsPerCycle > 0 {
		c.Train.IterationsPerCycle = o.IterationsPerCycle
	}
	if o.StepSize > 0 {
		c.Train.StepSize = o.StepSize
	}
	if o.BatchSize > 0 {
		c.Train.BatchSize = o.BatchSize
	}
	if o.Backend != "" {
		c.Model.Backend = o.Backend
	}
	if o.Metric != "" {
		c.Train.Metric = o.Metric
	}
	if o.Seed != 0 {
		c.Model.Seed = o.Seed
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Log.Format = o.LogFormat
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Data.TrainPath == "" {
		return errors.New("data.train_path must be set")
	}
	if c.Data.TestPath == "" {
		return errors.New("data.test_path must be set")
	}
	if c.Data.ResultPath == "" {
		return errors.New("data.result_path must be set")
	}
	if c.Data.WindowLength <= 0 {
		return fmt.Errorf("data.window_length must be > 0 (got %d)", c.Data.WindowLength)
	}
	if c.Data.SkipRows < 0 {
		return fmt.Errorf("data.skip_rows must be >= 0 (got %d)", c.Data.SkipRows)
	}
	switch c.Model.Backend {
	case BackendLoom, BackendLinear:
	default:
		return fmt.Errorf("model.backend %q unknown (want %s or %s)", c.Model.Backend, BackendLoom, BackendLinear)
	}
	if c.Model.Projection <= 0 || c.Model.HiddenSize <= 0 || c.Model.DenseSize <= 0 {
		return fmt.Errorf("model sizes must be > 0 (projection=%d hidden_size=%d dense_size=%d)",
			c.Model.Projection, c.Model.HiddenSize, c.Model.DenseSize)
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("model.dropout must be in [0,1) (got %g)", c.Model.Dropout)
	}
	if c.Train.Cycles < 0 {
		return fmt.Errorf("train.cycles must be >= 0 (got %d)", c.Train.Cycles)
	}
	if !metrics.Metric(c.Train.Metric).Valid() {
		return fmt.Errorf("train.metric %q unknown", c.Train.Metric)
	}
	if err := c.Optimizer().Validate(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if c.Train.LogEvery <= 0 {
		c.Train.LogEvery = 10
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown (want text or json)", c.Log.Format)
	}
	return nil
}

// Optimizer returns the optimizer hyperparameters of the run.
func (c *Config) Optimizer() optimizer.Config {
	return optimizer.Config{
		StepSize:           c.Train.StepSize,
		BatchSize:          c.Train.BatchSize,
		IterationsPerCycle: c.Train.IterationsPerCycle,
		Tolerance:          c.Train.Tolerance,
		Beta1:              c.Train.Beta1,
		Beta2:              c.Train.Beta2,
		Epsilon:            c.Train.Epsilon,
		Shuffle:            c.Train.Shuffle,
		Seed:               c.Model.Seed,
	}
}

// ModelOptions returns the sizes of the default architecture.
func (c *Config) ModelOptions() model.Options {
	return model.Options{
		Projection: c.Model.Projection,
		Hidden:     c.Model.HiddenSize,
		DenseSize:  c.Model.DenseSize,
		Dropout:    c.Model.Dropout,
	}
}
