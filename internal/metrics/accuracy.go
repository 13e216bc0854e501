package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/seqtensor"
)

// Metric selects how training accuracy is scored.
type Metric string

const (
	// FirstStep compares the last predicted step against the first step of
	// the input window for the same sequence.
	FirstStep Metric = "first-step"
	// NextNote compares the last predicted step against the one-hot target.
	NextNote Metric = "next-note"
)

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	return m == FirstStep || m == NextNote
}

// Accuracy returns the percentage of sequences whose rounded prediction at
// the final time step equals the rounded ground truth at the first time
// step, both read from feature 0.
func Accuracy(predicted, actual *tensor.Dense) (float64, error) {
	_, predSeqs, predSteps, err := seqtensor.Dims(predicted)
	if err != nil {
		return 0, fmt.Errorf("accuracy: predicted: %w", err)
	}
	_, actualSeqs, actualSteps, err := seqtensor.Dims(actual)
	if err != nil {
		return 0, fmt.Errorf("accuracy: actual: %w", err)
	}
	if predSeqs != actualSeqs {
		return 0, fmt.Errorf("accuracy: %d predicted sequences for %d actual", predSeqs, actualSeqs)
	}
	if predSeqs == 0 || predSteps == 0 || actualSteps == 0 {
		return 0, nil
	}
	matches := 0
	for j := 0; j < predSeqs; j++ {
		if math.Round(seqtensor.At(predicted, 0, j, predSteps-1)) == math.Round(seqtensor.At(actual, 0, j, 0)) {
			matches++
		}
	}
	return float64(matches) / float64(predSeqs) * 100, nil
}

// NextNoteAccuracy scores the last predicted step of each sequence against
// the hot column of its target row. Sequences without a target row are not
// counted.
func NextNoteAccuracy(predicted *tensor.Dense, targets *mat.Dense) (float64, error) {
	_, predSeqs, predSteps, err := seqtensor.Dims(predicted)
	if err != nil {
		return 0, fmt.Errorf("accuracy: predicted: %w", err)
	}
	rows, cols := targets.Dims()
	if rows > predSeqs {
		return 0, fmt.Errorf("accuracy: %d target rows for %d predicted sequences", rows, predSeqs)
	}
	if rows == 0 || predSteps == 0 {
		return 0, nil
	}
	row := make([]float64, cols)
	matches := 0
	for j := 0; j < rows; j++ {
		mat.Row(row, j, targets)
		if int(math.Round(seqtensor.At(predicted, 0, j, predSteps-1))) == floats.MaxIdx(row) {
			matches++
		}
	}
	return float64(matches) / float64(rows) * 100, nil
}
