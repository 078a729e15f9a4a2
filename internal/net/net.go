// Package net provides core neural network types.
package net

import (
	"fmt"
	"io"
	"strings"

	"github.com/FlavioCFOliveira/neurontrack/internal/layer"
	"github.com/FlavioCFOliveira/neurontrack/internal/loss"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
)

// Network is an ordered stack of layers trained with a loss and an optimizer.
type Network struct {
	name   string
	layers []layer.Layer
	loss   loss.Loss
	opt    opt.Optimizer

	// Pre-allocated loss gradient buffer for training
	lossGradBuf []float64
}

// New creates a new neural network with the given layers.
func New(name string, layers []layer.Layer, lossFn loss.Loss, optimizer opt.Optimizer) *Network {
	return &Network{
		name:   name,
		layers: layers,
		loss:   lossFn,
		opt:    optimizer,
	}
}

// Name returns the model name recorded in checkpoints.
func (n *Network) Name() string { return n.name }

// Layers returns the network's layers slice.
func (n *Network) Layers() []layer.Layer { return n.layers }

// Optimizer returns the optimizer used by TrainBatch.
func (n *Network) Optimizer() opt.Optimizer { return n.opt }

// Loss returns the training loss.
func (n *Network) Loss() loss.Loss { return n.loss }

// Forward performs a forward pass through all layers.
func (n *Network) Forward(x []float64) []float64 {
	curr := x
	for _, l := range n.layers {
		curr = l.Forward(curr)
	}
	return curr
}

// Backward performs a backward pass through all layers.
func (n *Network) Backward(grad []float64) []float64 {
	curr := grad
	for i := len(n.layers) - 1; i >= 0; i-- {
		curr = n.layers[i].Backward(curr)
	}
	return curr
}

// SetTraining switches every layer that distinguishes training from inference.
func (n *Network) SetTraining(training bool) {
	for _, l := range n.layers {
		if ts, ok := l.(layer.TrainingSetter); ok {
			ts.SetTraining(training)
		}
	}
}

// Predict returns the class with the highest score.
func (n *Network) Predict(x []float64) int {
	return Argmax(n.Forward(x))
}

// TrainBatch runs forward and backward for every sample, averages the
// accumulated gradients over the batch and applies one optimizer step.
// It returns the summed (not averaged) loss and the per-sample predictions
// made during the forward passes.
func (n *Network) TrainBatch(x [][]float64, y []int) (float64, []int) {
	if len(x) != len(y) {
		panic("TrainBatch: inputs and labels differ in length")
	}
	if len(x) == 0 {
		return 0, nil
	}

	for _, l := range n.layers {
		l.ClearGradients()
	}

	var total float64
	preds := make([]int, len(x))
	for i := range x {
		out := n.Forward(x[i])
		total += n.loss.Forward(out, y[i])
		preds[i] = Argmax(out)

		if cap(n.lossGradBuf) < len(out) {
			n.lossGradBuf = make([]float64, len(out))
		}
		grad := n.lossGradBuf[:len(out)]
		n.loss.BackwardInPlace(out, y[i], grad)
		n.Backward(grad)
	}

	inv := 1.0 / float64(len(x))
	for key, l := range n.layers {
		grads := l.Gradients()
		if len(grads) == 0 {
			continue
		}
		for i := range grads {
			grads[i] *= inv
		}
		n.opt.Update(key, l.Params(), grads)
	}
	return total, preds
}

// Evaluate returns the mean loss and the accuracy over a labelled set.
// Layers are left in inference mode.
func (n *Network) Evaluate(x [][]float64, y []int) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	n.SetTraining(false)
	var total float64
	correct := 0
	for i := range x {
		out := n.Forward(x[i])
		total += n.loss.Forward(out, y[i])
		if Argmax(out) == y[i] {
			correct++
		}
	}
	return total / float64(len(x)), float64(correct) / float64(len(x))
}

// NumParams returns the number of trainable parameters.
func (n *Network) NumParams() int {
	total := 0
	for _, l := range n.layers {
		total += len(l.Params())
	}
	return total
}

// Summary writes a table of the network architecture to w.
func (n *Network) Summary(w io.Writer) {
	rule := strings.Repeat("_", 65)
	fmt.Fprintf(w, "Model: %s\n", n.name)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	for i, l := range n.layers {
		lType := fmt.Sprintf("%T", l)
		if j := strings.LastIndexByte(lType, '.'); j >= 0 {
			lType = lType[j+1:]
		}
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%s_%d", lType, i), outShape(l), len(l.Params()))
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", n.NumParams())
	fmt.Fprintln(w, rule)
}

type shaped interface {
	OutShape() (int, int, int)
}

func outShape(l layer.Layer) string {
	if s, ok := l.(shaped); ok {
		c, h, w := s.OutShape()
		return fmt.Sprintf("(%d, %d, %d)", c, h, w)
	}
	return fmt.Sprintf("(%d)", l.OutSize())
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
