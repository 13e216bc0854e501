package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrDiverged indicates a non-finite objective during optimization.
var ErrDiverged = errors.New("optimizer: objective diverged")

// Objective is a separable loss over NumFunctions examples.
type Objective interface {
	NumFunctions() int
	// Gradient evaluates the examples at indices, accumulates their
	// gradients and returns the summed loss.
	Gradient(indices []int) (float64, error)
	// Update applies the accumulated gradient of batch examples through
	// state and clears the accumulator.
	Update(state *State, batch int)
}

// Result summarises one Optimize call.
type Result struct {
	// Loss is the mean per-example loss over the last complete pass, or
	// over the examples seen when no pass completed.
	Loss       float64
	Iterations int
	Epochs     int
	Converged  bool
	Examples   int
}

// Optimize runs up to state.Config.IterationsPerCycle mini-batch steps over
// obj. A pass whose total loss differs from the previous pass by less than
// Tolerance stops the run early.
func Optimize(ctx context.Context, obj Objective, state *State) (Result, error) {
	cfg := state.Config
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	n := obj.NumFunctions()
	if n <= 0 {
		return Result{}, errors.New("optimizer: objective has no examples")
	}
	state.Begin()

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	var rng *rand.Rand
	if cfg.Shuffle {
		rng = rand.New(rand.NewSource(cfg.Seed + int64(state.Steps)))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var res Result
	lastPass := math.Inf(1)
	pass := 0.0
	current := 0
	for res.Iterations < cfg.IterationsPerCycle {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		batch := cfg.BatchSize
		if current+batch > n {
			batch = n - current
		}
		loss, err := obj.Gradient(order[current : current+batch])
		if err != nil {
			return res, fmt.Errorf("optimizer: step %d: %w", res.Iterations, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return res, fmt.Errorf("%w at step %d", ErrDiverged, res.Iterations)
		}
		state.Steps++
		obj.Update(state, batch)
		res.Iterations++
		res.Examples += batch
		pass += loss
		current += batch

		if current < n {
			continue
		}
		res.Epochs++
		res.Loss = pass / float64(n)
		if math.Abs(lastPass-pass) < cfg.Tolerance {
			res.Converged = true
			return res, nil
		}
		lastPass = pass
		pass = 0
		current = 0
		if rng != nil {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
	}
	if res.Epochs == 0 && current > 0 {
		res.Loss = pass / float64(current)
	}
	return res, nil
}
