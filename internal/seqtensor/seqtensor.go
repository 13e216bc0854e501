// Package seqtensor holds the rank-3 [features, sequences, steps] tensors
// shared by the windower, the executors and the exporter.
package seqtensor

import (
	"fmt"

	"gorgonia.org/tensor"
)

// New allocates a zeroed float64 tensor shaped [features, sequences, steps].
func New(features, sequences, steps int) *tensor.Dense {
	backing := make([]float64, features*sequences*steps)
	return tensor.New(tensor.WithShape(features, sequences, steps), tensor.WithBacking(backing))
}

// Dims returns the three dimensions of t.
func Dims(t *tensor.Dense) (features, sequences, steps int, err error) {
	if t == nil {
		return 0, 0, 0, fmt.Errorf("seqtensor: nil tensor")
	}
	shape := t.Shape()
	if len(shape) != 3 {
		return 0, 0, 0, fmt.Errorf("seqtensor: want rank 3, got shape %v", shape)
	}
	if _, ok := t.Data().([]float64); !ok {
		return 0, 0, 0, fmt.Errorf("seqtensor: want float64 backing, got %v", t.Dtype())
	}
	return shape[0], shape[1], shape[2], nil
}

// At reads t[f, seq, step]. Indices are not range checked beyond the
// backing slice bounds.
func At(t *tensor.Dense, f, seq, step int) float64 {
	shape := t.Shape()
	return t.Data().([]float64)[(f*shape[1]+seq)*shape[2]+step]
}

// Set writes v at t[f, seq, step].
func Set(t *tensor.Dense, f, seq, step int, v float64) {
	shape := t.Shape()
	t.Data().([]float64)[(f*shape[1]+seq)*shape[2]+step] = v
}

// Sequence returns the steps of feature f for one sequence. The slice
// aliases the tensor's storage.
func Sequence(t *tensor.Dense, f, seq int) []float64 {
	shape := t.Shape()
	start := (f*shape[1] + seq) * shape[2]
	return t.Data().([]float64)[start : start+shape[2]]
}
