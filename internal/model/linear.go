package model

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/optimizer"
	"melody-forge/internal/seqtensor"
)

// Linear is a softmax regression over the one-hot encoding of a window.
// The prediction at step t only sees the prefix 0..t of its window.
type Linear struct {
	numClasses int
	steps      int
	inputSize  int
	weights    []float64
	bias       []float64
	weightGrad []float64
	biasGrad   []float64
}

// NewLinear constructs the model with random initialization.
func NewLinear(steps, numClasses int, seed int64) *Linear {
	if numClasses <= 0 {
		numClasses = 1
	}
	if steps <= 0 {
		steps = 1
	}
	inputSize := steps * numClasses
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, numClasses*inputSize)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &Linear{
		numClasses: numClasses,
		steps:      steps,
		inputSize:  inputSize,
		weights:    weights,
		bias:       make([]float64, numClasses),
		weightGrad: make([]float64, len(weights)),
		biasGrad:   make([]float64, numClasses),
	}
}

// Parameters returns a copy of weights followed by biases.
func (m *Linear) Parameters() []float64 {
	out := make([]float64, 0, len(m.weights)+len(m.bias))
	out = append(out, m.weights...)
	return append(out, m.bias...)
}

// Fit runs one optimizer invocation over the (window, next note) pairs.
func (m *Linear) Fit(ctx context.Context, inputs *tensor.Dense, targets *mat.Dense, state *optimizer.State) (optimizer.Result, error) {
	if _, err := CheckFitShapes(inputs, targets, m.numClasses); err != nil {
		return optimizer.Result{}, err
	}
	obj := &linearObjective{m: m, inputs: inputs, classes: TargetClasses(targets)}
	return optimizer.Optimize(ctx, obj, state)
}

// Predict decodes the most likely note at every step of every sequence.
func (m *Linear) Predict(inputs *tensor.Dense) (*tensor.Dense, error) {
	_, seqs, steps, err := seqtensor.Dims(inputs)
	if err != nil {
		return nil, err
	}
	out := seqtensor.New(1, seqs, steps)
	logits := make([]float64, m.numClasses)
	for j := 0; j < seqs; j++ {
		window := seqtensor.Sequence(inputs, 0, j)
		for t := 0; t < steps; t++ {
			m.logits(logits, m.active(window, t))
			seqtensor.Set(out, 0, j, t, float64(floats.MaxIdx(logits)))
		}
	}
	return out, nil
}

// active lists the one-hot input positions set by window[0..t]. Values that
// are not valid note indices, or steps beyond the model's span, contribute
// nothing.
func (m *Linear) active(window []float64, t int) []int {
	idx := make([]int, 0, t+1)
	for s := 0; s <= t && s < m.steps; s++ {
		v := window[s]
		if v != math.Trunc(v) || v < 0 || int(v) >= m.numClasses {
			continue
		}
		idx = append(idx, s*m.numClasses+int(v))
	}
	return idx
}

func (m *Linear) logits(dst []float64, active []int) {
	for c := 0; c < m.numClasses; c++ {
		sum := m.bias[c]
		row := m.weights[c*m.inputSize : (c+1)*m.inputSize]
		for _, k := range active {
			sum += row[k]
		}
		dst[c] = sum
	}
}

type linearObjective struct {
	m       *Linear
	inputs  *tensor.Dense
	classes []int
}

func (o *linearObjective) NumFunctions() int { return len(o.classes) }

func (o *linearObjective) Gradient(indices []int) (float64, error) {
	m := o.m
	probs := make([]float64, m.numClasses)
	total := 0.0
	for _, i := range indices {
		window := seqtensor.Sequence(o.inputs, 0, i)
		active := m.active(window, len(window)-1)
		m.logits(probs, active)
		LogSoftmaxInPlace(probs)
		label := o.classes[i]
		total -= probs[label]
		for c := range probs {
			probs[c] = math.Exp(probs[c])
		}
		probs[label] -= 1
		for c, g := range probs {
			m.biasGrad[c] += g
			row := m.weightGrad[c*m.inputSize : (c+1)*m.inputSize]
			for _, k := range active {
				row[k] += g
			}
		}
	}
	return total, nil
}

func (o *linearObjective) Update(state *optimizer.State, batch int) {
	m := o.m
	scale := 1 / float64(batch)
	optimizer.Apply(state, "linear/weights", m.weights, m.weightGrad, scale)
	optimizer.Apply(state, "linear/bias", m.bias, m.biasGrad, scale)
	for i := range m.weightGrad {
		m.weightGrad[i] = 0
	}
	for i := range m.biasGrad {
		m.biasGrad[i] = 0
	}
}
