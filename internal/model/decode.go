package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/seqtensor"
)

// LogSoftmaxInPlace replaces logits with their log-probabilities.
func LogSoftmaxInPlace(logits []float64) {
	if len(logits) == 0 {
		return
	}
	maxLogit := floats.Max(logits)
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(v - maxLogit)
	}
	norm := maxLogit + math.Log(sum)
	floats.AddConst(-norm, logits)
}

// TargetClasses returns the hot column of every target row.
func TargetClasses(targets *mat.Dense) []int {
	rows, cols := targets.Dims()
	out := make([]int, rows)
	row := make([]float64, cols)
	for i := range out {
		mat.Row(row, i, targets)
		out[i] = floats.MaxIdx(row)
	}
	return out
}

// CheckFitShapes validates a Fit call and returns the sequence length.
func CheckFitShapes(inputs *tensor.Dense, targets *mat.Dense, numClasses int) (steps int, err error) {
	features, seqs, steps, err := seqtensor.Dims(inputs)
	if err != nil {
		return 0, err
	}
	if features != 1 {
		return 0, fmt.Errorf("model: want 1 input feature, got %d", features)
	}
	rows, cols := targets.Dims()
	if rows > seqs {
		return 0, fmt.Errorf("model: %d target rows for %d input sequences", rows, seqs)
	}
	if cols != numClasses {
		return 0, fmt.Errorf("model: targets have %d classes, model has %d", cols, numClasses)
	}
	return steps, nil
}
