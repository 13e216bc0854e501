package dataset

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/seqtensor"
)

func TestBuildInputWindowsSlides(t *testing.T) {
	series := Series{0, 1, 2, 3, 4, 5}
	inputs, err := BuildInputWindows(series, 3)
	if err != nil {
		t.Fatalf("BuildInputWindows: %v", err)
	}
	want := [][]float64{{0, 1, 2}, {1, 2, 3}, {2, 3, 4}, {3, 4, 5}}
	f, n, s, err := seqtensor.Dims(inputs)
	if err != nil {
		t.Fatalf("Dims: %v", err)
	}
	if f != 1 || n != len(want) || s != 3 {
		t.Fatalf("shape=[%d %d %d] want [1 %d 3]", f, n, s, len(want))
	}
	for i, w := range want {
		if got := seqtensor.Sequence(inputs, 0, i); !floats.Equal(got, w) {
			t.Fatalf("window %d = %v want %v", i, got, w)
		}
	}
}

func TestBuildInputWindowsCountMatchesSeriesLength(t *testing.T) {
	for _, tc := range []struct{ n, l int }{{1, 1}, {5, 5}, {10, 3}, {17, 4}} {
		series := make(Series, tc.n)
		for i := range series {
			series[i] = float64(i % 7)
		}
		inputs, err := BuildInputWindows(series, tc.l)
		if err != nil {
			t.Fatalf("n=%d l=%d: %v", tc.n, tc.l, err)
		}
		_, n, s, _ := seqtensor.Dims(inputs)
		if n != tc.n-tc.l+1 || s != tc.l {
			t.Fatalf("n=%d l=%d: got %d windows of %d", tc.n, tc.l, n, s)
		}
		for i := 0; i < n; i++ {
			if !floats.Equal(seqtensor.Sequence(inputs, 0, i), series[i:i+tc.l]) {
				t.Fatalf("n=%d l=%d: window %d mismatch", tc.n, tc.l, i)
			}
		}
	}
}

func TestBuildInputWindowsRejectsShortSeries(t *testing.T) {
	_, err := BuildInputWindows(Series{1, 2}, 3)
	var dfe *DataFormatError
	if !errors.As(err, &dfe) || !errors.Is(err, ErrSeriesTooShort) {
		t.Fatalf("expected DataFormatError(ErrSeriesTooShort), got %v", err)
	}
	if _, err := BuildInputWindows(Series{1, 2}, 0); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("expected ErrBadWindow, got %v", err)
	}
}

func TestBuildTargetsAlignsWithWindows(t *testing.T) {
	series := Series{0, 1, 2, 3, 4, 5}
	targets, err := BuildTargets(series, 3, 6)
	if err != nil {
		t.Fatalf("BuildTargets: %v", err)
	}
	rows, cols := targets.Dims()
	if rows != 3 || cols != 6 {
		t.Fatalf("dims=%dx%d want 3x6", rows, cols)
	}
	for i, note := range []int{3, 4, 5} {
		for c := 0; c < cols; c++ {
			want := 0.0
			if c == note {
				want = 1
			}
			if got := targets.At(i, c); got != want {
				t.Fatalf("row %d col %d = %v want %v", i, c, got, want)
			}
		}
	}
}

func TestBuildTargetsRowsAreOneHot(t *testing.T) {
	series := Series{4, 0, 2, 2, 1, 4, 3, 0, 0, 1}
	targets, err := BuildTargets(series, 2, 5)
	if err != nil {
		t.Fatalf("BuildTargets: %v", err)
	}
	rows, _ := targets.Dims()
	for i := 0; i < rows; i++ {
		row := mat.Row(nil, i, targets)
		if sum := floats.Sum(row); sum != 1 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
		if floats.MaxIdx(row) != int(series[i+2]) {
			t.Fatalf("row %d hot at %d want %v", i, floats.MaxIdx(row), series[i+2])
		}
	}
}

func TestBuildTargetsBoundary(t *testing.T) {
	series := Series{0, 1, 2, 3}
	if _, err := BuildTargets(series, 2, 4); err != nil {
		t.Fatalf("note 3 with 4 classes should be valid: %v", err)
	}
	_, err := BuildTargets(series, 2, 3)
	var dfe *DataFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected DataFormatError, got %v", err)
	}
	if !errors.Is(err, ErrNoteOutOfRange) || dfe.Record != 3 {
		t.Fatalf("expected out-of-range at 3, got %v", err)
	}
}

func TestBuildTargetsRejectsNegativeAndFractional(t *testing.T) {
	if _, err := BuildTargets(Series{0, 1, -1}, 2, 4); !errors.Is(err, ErrNoteOutOfRange) {
		t.Fatalf("expected ErrNoteOutOfRange, got %v", err)
	}
	if _, err := BuildTargets(Series{0, 1, 1.5}, 2, 4); !errors.Is(err, ErrNotNoteIndex) {
		t.Fatalf("expected ErrNotNoteIndex, got %v", err)
	}
	if _, err := BuildTargets(Series{0, 1}, 2, 4); !errors.Is(err, ErrSeriesTooShort) {
		t.Fatalf("expected ErrSeriesTooShort, got %v", err)
	}
}

func TestNumClassesIsZeroBased(t *testing.T) {
	n, err := NumClasses(Series{2, 7, 0, 3})
	if err != nil {
		t.Fatalf("NumClasses: %v", err)
	}
	if n != 8 {
		t.Fatalf("NumClasses=%d want 8", n)
	}
	if _, err := NumClasses(Series{}); !errors.Is(err, ErrSeriesTooShort) {
		t.Fatalf("expected ErrSeriesTooShort, got %v", err)
	}
}

func TestBuildProducesConsistentViews(t *testing.T) {
	w, err := Build(Series{0, 1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if w.NumClasses != 6 {
		t.Fatalf("NumClasses=%d", w.NumClasses)
	}
	_, n, _, _ := seqtensor.Dims(w.Inputs)
	rows, _ := w.Targets.Dims()
	if n != rows+1 {
		t.Fatalf("expected one more window than targets, got %d windows %d targets", n, rows)
	}
}
