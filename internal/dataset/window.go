package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/seqtensor"
)

// Windows is the training view of a series: sliding input windows plus the
// one-hot note that follows each of them.
type Windows struct {
	Inputs     *tensor.Dense // [1, N-L+1, L]
	Targets    *mat.Dense    // [N-L, NumClasses]
	NumClasses int
	Length     int
}

// Build derives the class count, the input windows and the targets from series.
func Build(series Series, length int) (*Windows, error) {
	numClasses, err := NumClasses(series)
	if err != nil {
		return nil, err
	}
	inputs, err := BuildInputWindows(series, length)
	if err != nil {
		return nil, err
	}
	targets, err := BuildTargets(series, length, numClasses)
	if err != nil {
		return nil, err
	}
	return &Windows{Inputs: inputs, Targets: targets, NumClasses: numClasses, Length: length}, nil
}

// NumClasses returns max(series)+1; note indices are zero-based class columns.
func NumClasses(series Series) (int, error) {
	if len(series) == 0 {
		return 0, formatErr("", -1, fmt.Errorf("%w: empty series", ErrSeriesTooShort))
	}
	maxNote := 0
	for i, v := range series {
		note, err := noteIndex(v)
		if err != nil {
			return 0, formatErr("", i, err)
		}
		if note > maxNote {
			maxNote = note
		}
	}
	return maxNote + 1, nil
}

// BuildInputWindows returns the N-L+1 sliding windows of series; window i
// holds series[i .. i+L-1]. The final window ends on the last value.
func BuildInputWindows(series Series, length int) (*tensor.Dense, error) {
	if length <= 0 {
		return nil, formatErr("", -1, fmt.Errorf("%w: window length %d", ErrBadWindow, length))
	}
	if len(series) < length {
		return nil, formatErr("", -1, fmt.Errorf("%w: %d values for window length %d", ErrSeriesTooShort, len(series), length))
	}
	count := len(series) - length + 1
	out := seqtensor.New(1, count, length)
	for i := 0; i < count; i++ {
		copy(seqtensor.Sequence(out, 0, i), series[i:i+length])
	}
	return out, nil
}

// BuildTargets one-hot encodes series[p] for p in [L, N-1]; row p-L is the
// note that follows window p-L.
func BuildTargets(series Series, length, numClasses int) (*mat.Dense, error) {
	if length <= 0 || numClasses <= 0 {
		return nil, formatErr("", -1, fmt.Errorf("%w: window length %d, classes %d", ErrBadWindow, length, numClasses))
	}
	if len(series) <= length {
		return nil, formatErr("", -1, fmt.Errorf("%w: %d values leave no target after window length %d", ErrSeriesTooShort, len(series), length))
	}
	out := mat.NewDense(len(series)-length, numClasses, nil)
	for p := length; p < len(series); p++ {
		note, err := noteIndex(series[p])
		if err != nil {
			return nil, formatErr("", p, err)
		}
		if note >= numClasses {
			return nil, formatErr("", p, fmt.Errorf("%w: %d >= %d classes", ErrNoteOutOfRange, note, numClasses))
		}
		out.Set(p-length, note, 1)
	}
	return out, nil
}

func noteIndex(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %v", ErrNotNoteIndex, v)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %v is negative", ErrNoteOutOfRange, v)
	}
	return int(v), nil
}
