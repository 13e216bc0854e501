package loomnet

import (
	"context"
	"strings"
	"testing"

	"melody-forge/internal/dataset"
	"melody-forge/internal/model"
	"melody-forge/internal/optimizer"
	"melody-forge/internal/seqtensor"
)

func smallArch(numClasses int) model.Architecture {
	return model.Architecture{
		model.Dense(1, 4),
		model.Recurrent(6),
		model.Dense(6, 5),
		model.Dropout(0.25),
		model.Dense(5, numClasses),
		model.LogSoftmax(),
	}
}

func TestNewSplitsSegments(t *testing.T) {
	e, err := New(smallArch(3), 3, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// dense | lstm | dense, dropout | dense
	if e.Segments() != 4 {
		t.Fatalf("segments=%d want 4", e.Segments())
	}
	if e.segments[2].dropout != 0.25 || e.segments[3].dropout != 0 {
		t.Fatalf("dropout attached to wrong segment: %v %v", e.segments[2].dropout, e.segments[3].dropout)
	}
	if e.NumClasses() != 3 {
		t.Fatalf("classes=%d want 3", e.NumClasses())
	}
}

func TestNewRejectsBadArchitecture(t *testing.T) {
	if _, err := New(model.Architecture{model.Dense(2, 3), model.LogSoftmax()}, 3, 1); err == nil {
		t.Fatalf("expected size mismatch to fail")
	}
	if _, err := New(model.Architecture{model.Dropout(0.1), model.Dense(1, 2), model.LogSoftmax()}, 3, 1); err == nil {
		t.Fatalf("expected leading dropout to fail")
	}
	if _, err := New(smallArch(3), 0, 1); err == nil {
		t.Fatalf("expected zero window length to fail")
	}
}

func TestFitAndPredictShapes(t *testing.T) {
	series := dataset.Series{0, 1, 2, 0, 1, 2, 0, 1}
	w, err := dataset.Build(series, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, err := New(smallArch(w.NumClasses), w.Length, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := optimizer.DefaultConfig()
	cfg.StepSize = 1e-3
	cfg.BatchSize = 2
	cfg.IterationsPerCycle = 4
	cfg.Tolerance = 0
	res, err := e.Fit(context.Background(), w.Inputs, w.Targets, optimizer.NewState(cfg))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Iterations != 4 {
		t.Fatalf("iterations=%d want 4", res.Iterations)
	}

	pred, err := e.Predict(w.Inputs)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	_, n, steps, err := seqtensor.Dims(pred)
	if err != nil || n != 6 || steps != 3 {
		t.Fatalf("prediction shape n=%d steps=%d err=%v", n, steps, err)
	}
	for j := 0; j < n; j++ {
		for s := 0; s < steps; s++ {
			v := seqtensor.At(pred, 0, j, s)
			if v < 0 || int(v) >= w.NumClasses {
				t.Fatalf("prediction %v out of class range", v)
			}
		}
	}
}

func TestPredictRejectsOtherWindowLength(t *testing.T) {
	e, err := New(smallArch(3), 3, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Predict(seqtensor.New(1, 2, 4)); err == nil {
		t.Fatalf("expected window length mismatch to fail")
	}
}

func TestDenseIsSharedAcrossSteps(t *testing.T) {
	short, err := New(smallArch(3), 3, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	long, err := New(smallArch(3), 6, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(short.Parameters()) != len(long.Parameters()) {
		t.Fatalf("parameter count depends on window length: %d vs %d", len(short.Parameters()), len(long.Parameters()))
	}
}

func TestStepOutputIgnoresLaterSteps(t *testing.T) {
	e, err := New(smallArch(3), 3, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := e.forward([]float64{1, 2, 0}, nil)
	b := e.forward([]float64{1, 0, 2}, nil)
	for c := 0; c < e.NumClasses(); c++ {
		if a[c] != b[c] {
			t.Fatalf("step 0 logit %d changed with later steps: %v vs %v", c, a[c], b[c])
		}
	}
}

func snapshot(e *Executor) map[string][]float32 {
	out := make(map[string][]float32)
	for _, s := range e.segments {
		for _, layer := range s.blocks {
			for _, b := range layer {
				out[b.key] = append([]float32(nil), b.weights...)
			}
		}
	}
	return out
}

func TestFitUpdatesEveryParameterBlock(t *testing.T) {
	w, err := dataset.Build(dataset.Series{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, err := New(smallArch(w.NumClasses), w.Length, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := snapshot(e)
	lstmBlocks := 0
	for key := range before {
		if strings.Contains(key, "ih_") || strings.Contains(key, "hh_") {
			lstmBlocks++
		}
	}
	if lstmBlocks != 8 {
		t.Fatalf("expected 8 lstm weight blocks, got %d", lstmBlocks)
	}

	cfg := optimizer.DefaultConfig()
	cfg.StepSize = 1e-2
	cfg.BatchSize = 3
	cfg.IterationsPerCycle = 20
	cfg.Tolerance = 0
	if _, err := e.Fit(context.Background(), w.Inputs, w.Targets, optimizer.NewState(cfg)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	after := snapshot(e)
	for key, old := range before {
		moved := false
		for i := range old {
			if old[i] != after[key][i] {
				moved = true
				break
			}
		}
		if !moved {
			t.Fatalf("block %s unchanged after Fit", key)
		}
	}
}

func TestFitReducesLossOnCyclicSeries(t *testing.T) {
	series := make(dataset.Series, 30)
	for i := range series {
		series[i] = float64(i % 3)
	}
	w, err := dataset.Build(series, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, err := New(smallArch(w.NumClasses), w.Length, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start, err := e.Loss(w.Inputs, w.Targets)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	cfg := optimizer.DefaultConfig()
	cfg.StepSize = 1e-2
	cfg.BatchSize = 4
	cfg.IterationsPerCycle = 300
	cfg.Tolerance = 0
	if _, err := e.Fit(context.Background(), w.Inputs, w.Targets, optimizer.NewState(cfg)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	end, err := e.Loss(w.Inputs, w.Targets)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if end >= start {
		t.Fatalf("loss did not fall: %.4f -> %.4f", start, end)
	}
}
