// Package optimizer implements the mini-batch Adam optimizer consumed by the
// executors. Its state is an explicit value owned by the caller.
package optimizer

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the optimizer hyperparameters.
type Config struct {
	StepSize           float64
	BatchSize          int
	IterationsPerCycle int
	Tolerance          float64
	Beta1              float64
	Beta2              float64
	Epsilon            float64
	Shuffle            bool
	Seed               int64
}

// DefaultConfig returns the hyperparameters of the reference training run.
func DefaultConfig() Config {
	return Config{
		StepSize:           5e-20,
		BatchSize:          5,
		IterationsPerCycle: 10000,
		Tolerance:          1e-8,
		Beta1:              0.9,
		Beta2:              0.999,
		Epsilon:            1e-8,
	}
}

// Validate verifies the configuration is usable.
func (c Config) Validate() error {
	if c.StepSize <= 0 {
		return fmt.Errorf("optimizer: step size must be > 0 (got %g)", c.StepSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("optimizer: batch size must be > 0 (got %d)", c.BatchSize)
	}
	if c.IterationsPerCycle < 0 {
		return fmt.Errorf("optimizer: iterations per cycle must be >= 0 (got %d)", c.IterationsPerCycle)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("optimizer: tolerance must be >= 0 (got %g)", c.Tolerance)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("optimizer: betas must be in [0,1) (got %g, %g)", c.Beta1, c.Beta2)
	}
	if c.Epsilon <= 0 {
		return errors.New("optimizer: epsilon must be > 0")
	}
	return nil
}

// State is the Adam state carried across Optimize calls. When ResetPolicy
// is set, the next Optimize call starts from fresh moment estimates.
type State struct {
	Config      Config
	ResetPolicy bool
	// Steps is the Adam time step used for bias correction.
	Steps int
	// Resets counts how many Optimize calls cleared the moments.
	Resets int

	m map[string][]float64
	v map[string][]float64
}

// NewState returns a state that resets on its first use.
func NewState(cfg Config) *State {
	return &State{
		Config:      cfg,
		ResetPolicy: true,
		m:           make(map[string][]float64),
		v:           make(map[string][]float64),
	}
}

// Begin starts one Optimize invocation.
func (s *State) Begin() {
	if s.m == nil {
		s.m = make(map[string][]float64)
		s.v = make(map[string][]float64)
	}
	if !s.ResetPolicy {
		return
	}
	for k := range s.m {
		delete(s.m, k)
		delete(s.v, k)
	}
	s.Steps = 0
	s.Resets++
}

// Blocks reports how many parameter blocks carry moment estimates.
func (s *State) Blocks() int { return len(s.m) }

// Float is the element type of a parameter block.
type Float interface {
	~float32 | ~float64
}

// Apply performs one Adam update of weights from grads scaled by scale.
// Moments are tracked per key; s.Steps must already count this step.
func Apply[T Float](s *State, key string, weights, grads []T, scale float64) {
	if len(weights) == 0 || len(grads) < len(weights) {
		return
	}
	if s.m == nil {
		s.m = make(map[string][]float64)
		s.v = make(map[string][]float64)
	}
	m, ok := s.m[key]
	if !ok || len(m) != len(weights) {
		m = make([]float64, len(weights))
		s.m[key] = m
		s.v[key] = make([]float64, len(weights))
	}
	v := s.v[key]

	cfg := s.Config
	t := float64(s.Steps)
	if t < 1 {
		t = 1
	}
	correction1 := 1 - math.Pow(cfg.Beta1, t)
	correction2 := 1 - math.Pow(cfg.Beta2, t)

	for i := range weights {
		g := float64(grads[i]) * scale
		m[i] = cfg.Beta1*m[i] + (1-cfg.Beta1)*g
		v[i] = cfg.Beta2*v[i] + (1-cfg.Beta2)*g*g
		mHat := m[i] / correction1
		vHat := v[i] / correction2
		weights[i] -= T(cfg.StepSize * mHat / (math.Sqrt(vHat) + cfg.Epsilon))
	}
}
