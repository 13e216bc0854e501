package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/optimizer"
)

// Predictor maps a [1, sequences, steps] input tensor to a tensor of the
// same shape holding the decoded note index predicted at every step.
type Predictor interface {
	Predict(inputs *tensor.Dense) (*tensor.Dense, error)
}

// Executor is the trainable sequence model driven by the trainer. Fit
// pairs input sequence i with target row i for every target row and runs
// one optimizer invocation with state.
type Executor interface {
	Predictor
	Fit(ctx context.Context, inputs *tensor.Dense, targets *mat.Dense, state *optimizer.State) (optimizer.Result, error)
}
