// Package loomnet compiles a model.Architecture onto loom networks.
//
// A loom network runs every layer with one batch size, so the stack is cut
// into segments: a run of Dense descriptors becomes a network whose batch is
// the window length (one row per step, weights shared across steps), a
// Recurrent descriptor becomes a network holding one LSTM unrolled over the
// window. loom has no dropout layer, so Dropout also cuts a segment and its
// mask is applied between segments.
package loomnet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/openfluke/loom/nn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"melody-forge/internal/model"
	"melody-forge/internal/optimizer"
	"melody-forge/internal/seqtensor"
)

const linearActivation = nn.ActivationType(-1)

// block is one trainable parameter slice of a layer together with its
// gradient accumulator. offset locates the slice inside the layer's
// gradient vector as loom reports it.
type block struct {
	key      string
	weights  []float32
	acc      []float32
	fromBias bool
	offset   int
}

type segment struct {
	net *nn.Network
	// dropout applies to this segment's output during Fit.
	dropout float64
	blocks  [][]*block
}

// Executor trains and runs an Architecture for windows of a fixed length.
type Executor struct {
	steps      int
	numClasses int
	segments   []*segment
	rng        *rand.Rand
}

// New compiles arch for single-feature windows of steps notes.
func New(arch model.Architecture, steps int, seed int64) (*Executor, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("loomnet: window length must be > 0 (got %d)", steps)
	}
	if err := arch.Validate(1); err != nil {
		return nil, err
	}
	e := &Executor{
		steps:      steps,
		numClasses: arch.OutputSize(1),
		rng:        rand.New(rand.NewSource(seed)),
	}

	width := 1
	segIn := width
	batch := 0
	var layers []nn.LayerConfig
	flush := func() {
		if len(layers) == 0 {
			return
		}
		e.segments = append(e.segments, newSegment(len(e.segments), layers, steps*segIn, batch))
		layers = nil
		segIn = width
	}
	for _, l := range arch {
		switch l.Kind {
		case model.KindDense:
			if batch != steps {
				flush()
				batch = steps
			}
			layers = append(layers, nn.InitDenseLayer(l.In, l.Out, linearActivation))
			width = l.Out
		case model.KindRecurrent:
			flush()
			batch = 1
			layers = append(layers, nn.InitLSTMLayer(width, l.Out, 1, steps))
			width = l.Out
			flush()
		case model.KindDropout:
			flush()
			if len(e.segments) == 0 {
				return nil, errors.New("loomnet: dropout must follow a dense or recurrent layer")
			}
			last := e.segments[len(e.segments)-1]
			last.dropout = 1 - (1-last.dropout)*(1-l.Rate)
		case model.KindLogSoftmax:
			flush()
		}
	}
	if len(e.segments) == 0 {
		return nil, errors.New("loomnet: architecture has no trainable layers")
	}
	return e, nil
}

func newSegment(index int, layers []nn.LayerConfig, inputs, batch int) *segment {
	net := nn.NewNetwork(inputs, 1, 1, len(layers))
	net.BatchSize = batch
	for i, cfg := range layers {
		net.SetLayer(0, 0, i, cfg)
	}
	s := &segment{net: net, blocks: make([][]*block, len(net.Layers))}
	for i := range net.Layers {
		s.blocks[i] = layerBlocks(fmt.Sprintf("s%dl%d", index, i), &net.Layers[i])
	}
	return s
}

// layerBlocks lists the trainable slices of cfg in the order loom
// concatenates their gradients.
func layerBlocks(prefix string, cfg *nn.LayerConfig) []*block {
	var out []*block
	add := func(name string, weights []float32, fromBias bool, offset int) int {
		if len(weights) == 0 {
			return offset
		}
		out = append(out, &block{
			key:      prefix + name,
			weights:  weights,
			acc:      make([]float32, len(weights)),
			fromBias: fromBias,
			offset:   offset,
		})
		return offset + len(weights)
	}
	switch cfg.Type {
	case nn.LayerLSTM:
		off := 0
		off = add("ih_i", cfg.WeightIH_i, false, off)
		off = add("hh_i", cfg.WeightHH_i, false, off)
		off = add("b_i", cfg.BiasH_i, false, off)
		off = add("ih_f", cfg.WeightIH_f, false, off)
		off = add("hh_f", cfg.WeightHH_f, false, off)
		off = add("b_f", cfg.BiasH_f, false, off)
		off = add("ih_g", cfg.WeightIH_g, false, off)
		off = add("hh_g", cfg.WeightHH_g, false, off)
		off = add("b_g", cfg.BiasH_g, false, off)
		off = add("ih_o", cfg.WeightIH_o, false, off)
		off = add("hh_o", cfg.WeightHH_o, false, off)
		add("b_o", cfg.BiasH_o, false, off)
	default:
		add("k", cfg.Kernel, false, 0)
		add("b", cfg.Bias, true, 0)
	}
	return out
}

// Segments reports how many loom networks the architecture compiled into.
func (e *Executor) Segments() int { return len(e.segments) }

// NumClasses is the number of note classes scored at every step.
func (e *Executor) NumClasses() int { return e.numClasses }

// Parameters returns a copy of every trainable value, segment by segment.
func (e *Executor) Parameters() []float32 {
	var out []float32
	for _, s := range e.segments {
		for _, layer := range s.blocks {
			for _, b := range layer {
				out = append(out, b.weights...)
			}
		}
	}
	return out
}

// forward runs one window through every segment. masks, when non-nil,
// receives the dropout mask applied after each segment.
func (e *Executor) forward(window []float64, masks [][]float32) []float32 {
	x := make([]float32, len(window))
	for i, v := range window {
		x[i] = float32(v)
	}
	for si, s := range e.segments {
		y, _ := s.net.ForwardCPU(x)
		out := make([]float32, len(y))
		copy(out, y)
		if masks != nil && s.dropout > 0 {
			keep := 1 - s.dropout
			mask := make([]float32, len(out))
			for i := range out {
				if e.rng.Float64() < keep {
					mask[i] = float32(1 / keep)
				}
				out[i] *= mask[i]
			}
			masks[si] = mask
		}
		x = out
	}
	return x
}

func (e *Executor) checkWindow(steps int) error {
	if steps != e.steps {
		return fmt.Errorf("loomnet: window length %d, executor compiled for %d", steps, e.steps)
	}
	return nil
}

// Predict decodes the argmax note at every step of every window.
func (e *Executor) Predict(inputs *tensor.Dense) (*tensor.Dense, error) {
	_, seqs, steps, err := seqtensor.Dims(inputs)
	if err != nil {
		return nil, err
	}
	if err := e.checkWindow(steps); err != nil {
		return nil, err
	}
	out := seqtensor.New(1, seqs, steps)
	logits := make([]float64, e.numClasses)
	for j := 0; j < seqs; j++ {
		y := e.forward(seqtensor.Sequence(inputs, 0, j), nil)
		for t := 0; t < steps; t++ {
			e.stepLogits(logits, y, t)
			model.LogSoftmaxInPlace(logits)
			seqtensor.Set(out, 0, j, t, float64(floats.MaxIdx(logits)))
		}
	}
	return out, nil
}

// Loss is the mean last-step negative log-likelihood of the targets,
// evaluated without dropout.
func (e *Executor) Loss(inputs *tensor.Dense, targets *mat.Dense) (float64, error) {
	steps, err := model.CheckFitShapes(inputs, targets, e.numClasses)
	if err != nil {
		return 0, err
	}
	if err := e.checkWindow(steps); err != nil {
		return 0, err
	}
	classes := model.TargetClasses(targets)
	if len(classes) == 0 {
		return 0, nil
	}
	logp := make([]float64, e.numClasses)
	total := 0.0
	for i, label := range classes {
		y := e.forward(seqtensor.Sequence(inputs, 0, i), nil)
		e.stepLogits(logp, y, steps-1)
		model.LogSoftmaxInPlace(logp)
		total -= logp[label]
	}
	return total / float64(len(classes)), nil
}

func (e *Executor) stepLogits(dst []float64, y []float32, t int) {
	group := y[t*e.numClasses : (t+1)*e.numClasses]
	for c, v := range group {
		dst[c] = float64(v)
	}
}

// Fit runs one optimizer invocation. The loss is the negative
// log-likelihood of each target note at the window's last step.
func (e *Executor) Fit(ctx context.Context, inputs *tensor.Dense, targets *mat.Dense, state *optimizer.State) (optimizer.Result, error) {
	steps, err := model.CheckFitShapes(inputs, targets, e.numClasses)
	if err != nil {
		return optimizer.Result{}, err
	}
	if err := e.checkWindow(steps); err != nil {
		return optimizer.Result{}, err
	}
	obj := &objective{e: e, inputs: inputs, classes: model.TargetClasses(targets)}
	return optimizer.Optimize(ctx, obj, state)
}

type objective struct {
	e       *Executor
	inputs  *tensor.Dense
	classes []int
}

func (o *objective) NumFunctions() int { return len(o.classes) }

func (o *objective) Gradient(indices []int) (float64, error) {
	e := o.e
	last := e.steps - 1
	logp := make([]float64, e.numClasses)
	masks := make([][]float32, len(e.segments))
	total := 0.0
	for _, i := range indices {
		for k := range masks {
			masks[k] = nil
		}
		y := e.forward(seqtensor.Sequence(o.inputs, 0, i), masks)
		e.stepLogits(logp, y, last)
		model.LogSoftmaxInPlace(logp)
		label := o.classes[i]
		total -= logp[label]

		grad := make([]float32, len(y))
		group := grad[last*e.numClasses:]
		for c, lp := range logp {
			group[c] = float32(math.Exp(lp))
		}
		group[label] -= 1

		for si := len(e.segments) - 1; si >= 0; si-- {
			s := e.segments[si]
			gin, _ := s.net.BackwardCPU(grad)
			s.accumulate()
			if si == 0 {
				break
			}
			next := make([]float32, len(gin))
			copy(next, gin)
			if mask := masks[si-1]; mask != nil && len(mask) == len(next) {
				for k := range next {
					next[k] *= mask[k]
				}
			}
			grad = next
		}
	}
	return total, nil
}

// accumulate adds the gradients of the last backward pass; loom overwrites
// them on every call.
func (s *segment) accumulate() {
	kg := s.net.KernelGradients()
	bg := s.net.BiasGradients()
	for l, layer := range s.blocks {
		for _, b := range layer {
			src := kg
			if b.fromBias {
				src = bg
			}
			if l >= len(src) || len(src[l]) < b.offset+len(b.acc) {
				continue
			}
			g := src[l][b.offset : b.offset+len(b.acc)]
			for i, v := range g {
				b.acc[i] += v
			}
		}
	}
}

func (o *objective) Update(state *optimizer.State, batch int) {
	scale := 1 / float64(batch)
	for _, s := range o.e.segments {
		for _, layer := range s.blocks {
			for _, b := range layer {
				optimizer.Apply(state, b.key, b.weights, b.acc, scale)
				clear(b.acc)
			}
		}
	}
}
