package model

import (
	"errors"
	"fmt"
)

// Kind identifies a layer descriptor.
type Kind int

const (
	KindDense Kind = iota
	KindRecurrent
	KindDropout
	KindLogSoftmax
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindRecurrent:
		return "recurrent"
	case KindDropout:
		return "dropout"
	case KindLogSoftmax:
		return "logsoftmax"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Layer describes one stage of the per-step network. Sizes are per time step.
type Layer struct {
	Kind Kind
	In   int
	Out  int
	Rate float64
}

// Dense is a per-step fully connected layer.
func Dense(in, out int) Layer { return Layer{Kind: KindDense, In: in, Out: out} }

// Recurrent is an LSTM cell with the given hidden size; its input size is
// taken from the previous layer.
func Recurrent(hidden int) Layer { return Layer{Kind: KindRecurrent, Out: hidden} }

// Dropout zeroes activations with probability rate during training.
func Dropout(rate float64) Layer { return Layer{Kind: KindDropout, Rate: rate} }

// LogSoftmax normalises each step's outputs into log-probabilities.
func LogSoftmax() Layer { return Layer{Kind: KindLogSoftmax} }

// Architecture is the ordered layer stack an executor compiles.
type Architecture []Layer

// Options sizes the default stack.
type Options struct {
	Projection int
	Hidden     int
	DenseSize  int
	Dropout    float64
}

// DefaultOptions mirrors the reference network.
func DefaultOptions() Options {
	return Options{Projection: 8, Hidden: 512, DenseSize: 256, Dropout: 0.3}
}

// DefaultArchitecture builds Dense -> LSTM -> Dense -> Dropout -> Dense -> LogSoftmax
// for single-feature input and numClasses outputs.
func DefaultArchitecture(numClasses int, opts Options) Architecture {
	return Architecture{
		Dense(1, opts.Projection),
		Recurrent(opts.Hidden),
		Dense(opts.Hidden, opts.DenseSize),
		Dropout(opts.Dropout),
		Dense(opts.DenseSize, numClasses),
		LogSoftmax(),
	}
}

// Validate checks that sizes chain from features inputs per step and that
// the stack ends in LogSoftmax.
func (a Architecture) Validate(features int) error {
	if len(a) == 0 {
		return errors.New("model: empty architecture")
	}
	if a[len(a)-1].Kind != KindLogSoftmax {
		return errors.New("model: architecture must end with logsoftmax")
	}
	width := features
	for i, l := range a {
		switch l.Kind {
		case KindDense:
			if l.In != width {
				return fmt.Errorf("model: layer %d dense expects %d inputs, previous layer gives %d", i, l.In, width)
			}
			if l.Out <= 0 {
				return fmt.Errorf("model: layer %d dense output must be > 0", i)
			}
			width = l.Out
		case KindRecurrent:
			if l.Out <= 0 {
				return fmt.Errorf("model: layer %d recurrent hidden size must be > 0", i)
			}
			width = l.Out
		case KindDropout:
			if l.Rate < 0 || l.Rate >= 1 {
				return fmt.Errorf("model: layer %d dropout rate %g outside [0,1)", i, l.Rate)
			}
		case KindLogSoftmax:
			if i != len(a)-1 {
				return fmt.Errorf("model: layer %d logsoftmax must be last", i)
			}
		default:
			return fmt.Errorf("model: layer %d unknown kind %v", i, l.Kind)
		}
	}
	return nil
}

// OutputSize is the per-step width reaching LogSoftmax.
func (a Architecture) OutputSize(features int) int {
	width := features
	for _, l := range a {
		if l.Kind == KindDense || l.Kind == KindRecurrent {
			width = l.Out
		}
	}
	return width
}
