// Package export turns held-out notes into model predictions and writes the
// single-row result file.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gorgonia.org/tensor"

	"melody-forge/internal/model"
	"melody-forge/internal/seqtensor"
)

// ExportError reports a failure of the export stage after training: running
// the trained predictor over the held-out notes, or writing the result row.
// Path is empty when the failure happened before anything was written.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// BuildInferenceInputs places heldOut[i] at step 0 of sequence i in a
// [1, M, length] tensor. The other steps stay zero; this is not the sliding
// window used for training.
func BuildInferenceInputs(heldOut []float64, length int) (*tensor.Dense, error) {
	if length <= 0 {
		return nil, fmt.Errorf("export: window length must be > 0 (got %d)", length)
	}
	if len(heldOut) == 0 {
		return nil, errors.New("export: no held-out notes")
	}
	t := seqtensor.New(1, len(heldOut), length)
	for i, v := range heldOut {
		seqtensor.Set(t, 0, i, 0, v)
	}
	return t, nil
}

// Predictions runs p over the held-out notes and returns the prediction at
// the last step of every sequence, in input order.
func Predictions(p model.Predictor, heldOut []float64, length int) ([]float64, error) {
	if len(heldOut) == 0 {
		return []float64{}, nil
	}
	inputs, err := BuildInferenceInputs(heldOut, length)
	if err != nil {
		return nil, &ExportError{Err: err}
	}
	out, err := p.Predict(inputs)
	if err != nil {
		return nil, &ExportError{Err: fmt.Errorf("predict: %w", err)}
	}
	_, seqs, steps, err := seqtensor.Dims(out)
	if err != nil {
		return nil, &ExportError{Err: err}
	}
	if seqs != len(heldOut) || steps != length {
		return nil, &ExportError{Err: fmt.Errorf("prediction shape [1,%d,%d], want [1,%d,%d]", seqs, steps, len(heldOut), length)}
	}
	row := make([]float64, seqs)
	for i := range row {
		row[i] = seqtensor.At(out, 0, i, length-1)
	}
	return row, nil
}

// WriteRow writes row as one CSV record.
func WriteRow(w io.Writer, row []float64) error {
	record := make([]string, len(row))
	for i, v := range row {
		record[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces path with the single-row result file.
func WriteFile(path string, row []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := WriteRow(f, row); err != nil {
		f.Close()
		return &ExportError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}
