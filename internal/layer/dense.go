package layer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/neurontrack/internal/activations"
)

// Dense is a fully connected layer.
// Weights are row-major: weight for output o, input i is at params[o*in+i];
// the out biases follow the weights.
type Dense struct {
	in, out int
	act     activations.Activation

	params []float64
	grads  []float64

	// Reusable buffers
	inputBuf  []float64
	preActBuf []float64
	outputBuf []float64
	dzBuf     []float64
	gradInBuf []float64
}

// NewDense creates a dense layer with Xavier uniform initialisation and zero biases.
func NewDense(in, out int, act activations.Activation, rng *RNG) *Dense {
	if act == nil {
		act = activations.Linear{}
	}
	d := &Dense{
		in:        in,
		out:       out,
		act:       act,
		params:    make([]float64, out*in+out),
		grads:     make([]float64, out*in+out),
		inputBuf:  make([]float64, in),
		preActBuf: make([]float64, out),
		outputBuf: make([]float64, out),
		dzBuf:     make([]float64, out),
		gradInBuf: make([]float64, in),
	}
	scale := math.Sqrt(6.0 / float64(in+out))
	for i := range d.weights() {
		d.params[i] = rng.Uniform(scale)
	}
	return d
}

func (d *Dense) weights() []float64 { return d.params[:d.out*d.in] }
func (d *Dense) biases() []float64  { return d.params[d.out*d.in:] }

// Forward computes act(Wx + b).
func (d *Dense) Forward(x []float64) []float64 {
	if len(x) != d.in {
		panic("Dense: input length does not match layer input size")
	}
	copy(d.inputBuf, x)
	w, b := d.weights(), d.biases()
	for o := 0; o < d.out; o++ {
		z := floats.Dot(w[o*d.in:(o+1)*d.in], d.inputBuf) + b[o]
		d.preActBuf[o] = z
		d.outputBuf[o] = d.act.Activate(z)
	}
	return d.outputBuf
}

// Backward accumulates dW = dz·xᵀ, db = dz and returns Wᵀ·dz.
func (d *Dense) Backward(grad []float64) []float64 {
	w := d.weights()
	gradW := d.grads[:d.out*d.in]
	gradB := d.grads[d.out*d.in:]

	clear(d.gradInBuf)
	for o := 0; o < d.out; o++ {
		dz := grad[o] * d.act.Derivative(d.preActBuf[o])
		d.dzBuf[o] = dz
		gradB[o] += dz
		if dz == 0 {
			continue
		}
		floats.AddScaled(gradW[o*d.in:(o+1)*d.in], dz, d.inputBuf)
		floats.AddScaled(d.gradInBuf, dz, w[o*d.in:(o+1)*d.in])
	}
	return d.gradInBuf
}

func (d *Dense) Params() []float64    { return d.params }
func (d *Dense) Gradients() []float64 { return d.grads }
func (d *Dense) ClearGradients()      { clear(d.grads) }

// InSize returns the input size of the layer.
func (d *Dense) InSize() int { return d.in }

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int { return d.out }

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation { return d.act }
