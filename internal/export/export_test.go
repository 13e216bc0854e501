package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"

	"melody-forge/internal/seqtensor"
)

// stepZeroEcho predicts, at every step, the note found at step 0 plus one.
type stepZeroEcho struct {
	calls int
	seen  *tensor.Dense
}

func (p *stepZeroEcho) Predict(inputs *tensor.Dense) (*tensor.Dense, error) {
	p.calls++
	p.seen = inputs
	_, n, steps, err := seqtensor.Dims(inputs)
	if err != nil {
		return nil, err
	}
	out := seqtensor.New(1, n, steps)
	for j := 0; j < n; j++ {
		for s := 0; s < steps; s++ {
			seqtensor.Set(out, 0, j, s, seqtensor.At(inputs, 0, j, 0)+1)
		}
	}
	return out, nil
}

type failingPredictor struct{}

func (failingPredictor) Predict(*tensor.Dense) (*tensor.Dense, error) {
	return nil, errors.New("no model")
}

func TestBuildInferenceInputsPopulatesStepZeroOnly(t *testing.T) {
	in, err := BuildInferenceInputs([]float64{4, 7}, 3)
	if err != nil {
		t.Fatalf("BuildInferenceInputs: %v", err)
	}
	want := [][]float64{{4, 0, 0}, {7, 0, 0}}
	for j, seq := range want {
		for s, v := range seq {
			if got := seqtensor.At(in, 0, j, s); got != v {
				t.Fatalf("[0,%d,%d]=%v want %v", j, s, got, v)
			}
		}
	}
}

func TestPredictionsPreservesOrder(t *testing.T) {
	p := &stepZeroEcho{}
	row, err := Predictions(p, []float64{5, 1, 3}, 4)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	want := []float64{6, 2, 4}
	if len(row) != len(want) {
		t.Fatalf("row=%v want %v", row, want)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row=%v want %v", row, want)
		}
	}
	if _, n, steps, _ := seqtensor.Dims(p.seen); n != 3 || steps != 4 {
		t.Fatalf("model saw n=%d steps=%d", n, steps)
	}
}

func TestPredictionsEmptySkipsModel(t *testing.T) {
	p := &stepZeroEcho{}
	row, err := Predictions(p, nil, 3)
	if err != nil || len(row) != 0 || p.calls != 0 {
		t.Fatalf("row=%v err=%v calls=%d", row, err, p.calls)
	}
}

func TestPredictionsWrapsModelFailure(t *testing.T) {
	_, err := Predictions(failingPredictor{}, []float64{1}, 3)
	var ee *ExportError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExportError, got %v", err)
	}
}

func TestWriteRowFormatsShortest(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRow(&buf, []float64{3, 0, 12, 2.5}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if got := buf.String(); got != "3,0,12,2.5\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	if err := WriteFile(path, []float64{1, 2}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "1,2\n" {
		t.Fatalf("file=%q", data)
	}
}

func TestWriteFileReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "results.csv")
	err := WriteFile(path, []float64{1})
	var ee *ExportError
	if !errors.As(err, &ee) || ee.Path != path {
		t.Fatalf("expected ExportError for %s, got %v", path, err)
	}
}
