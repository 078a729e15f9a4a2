package layer

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/neurontrack/internal/activations"
)

// Conv2D implements a 2D convolutional layer with direct convolution.
// Input and output are flattened CHW.
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	inputHeight, inputWidth int
	outH, outW              int

	act activations.Activation

	// Weights [outChannels, inChannels, kernelSize, kernelSize] followed by
	// outChannels biases.
	params []float64
	grads  []float64

	savedInput []float64
	preActBuf  []float64
	outputBuf  []float64
	gradInBuf  []float64
}

// NewConv2D creates a convolution over inputs of inChannels×inputHeight×inputWidth.
// Weights use He uniform initialisation, biases start at zero.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding, inputHeight, inputWidth int,
	act activations.Activation, rng *RNG) *Conv2D {

	if stride <= 0 {
		stride = 1
	}
	if act == nil {
		act = activations.Linear{}
	}
	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		inputHeight: inputHeight,
		inputWidth:  inputWidth,
		act:         act,
	}
	c.outH = (inputHeight+2*padding-kernelSize)/stride + 1
	c.outW = (inputWidth+2*padding-kernelSize)/stride + 1
	if c.outH <= 0 || c.outW <= 0 {
		panic(fmt.Sprintf("Conv2D: kernel %d does not fit input %dx%d", kernelSize, inputHeight, inputWidth))
	}

	nWeights := outChannels * inChannels * kernelSize * kernelSize
	c.params = make([]float64, nWeights+outChannels)
	c.grads = make([]float64, nWeights+outChannels)

	fanIn := float64(inChannels * kernelSize * kernelSize)
	scale := math.Sqrt(6.0 / fanIn)
	for i := 0; i < nWeights; i++ {
		c.params[i] = rng.Uniform(scale)
	}

	outSize := outChannels * c.outH * c.outW
	c.savedInput = make([]float64, inChannels*inputHeight*inputWidth)
	c.gradInBuf = make([]float64, inChannels*inputHeight*inputWidth)
	c.preActBuf = make([]float64, outSize)
	c.outputBuf = make([]float64, outSize)
	return c
}

func (c *Conv2D) nWeights() int {
	return c.outChannels * c.inChannels * c.kernelSize * c.kernelSize
}

// Forward convolves input (flattened [inChannels, H, W]).
func (c *Conv2D) Forward(input []float64) []float64 {
	if len(input) != len(c.savedInput) {
		panic(fmt.Sprintf("Conv2D: input length %d, want %d", len(input), len(c.savedInput)))
	}
	copy(c.savedInput, input)

	k := c.kernelSize
	weights := c.params[:c.nWeights()]
	biases := c.params[c.nWeights():]
	outSize := c.outH * c.outW
	icStride := k * k
	ocStride := c.inChannels * icStride
	inPlane := c.inputHeight * c.inputWidth

	clear(c.preActBuf)
	for oc := 0; oc < c.outChannels; oc++ {
		ocOut := c.preActBuf[oc*outSize : (oc+1)*outSize]
		for ic := 0; ic < c.inChannels; ic++ {
			wBase := oc*ocStride + ic*icStride
			plane := input[ic*inPlane : (ic+1)*inPlane]
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					wVal := weights[wBase+kh*k+kw]
					for oh := 0; oh < c.outH; oh++ {
						inH := oh*c.stride + kh - c.padding
						if inH < 0 || inH >= c.inputHeight {
							continue
						}
						row := plane[inH*c.inputWidth : (inH+1)*c.inputWidth]
						out := ocOut[oh*c.outW : (oh+1)*c.outW]
						for ow := range out {
							inW := ow*c.stride + kw - c.padding
							if inW >= 0 && inW < c.inputWidth {
								out[ow] += wVal * row[inW]
							}
						}
					}
				}
			}
		}
		for i := range ocOut {
			z := ocOut[i] + biases[oc]
			ocOut[i] = z
			c.outputBuf[oc*outSize+i] = c.act.Activate(z)
		}
	}
	return c.outputBuf
}

// Backward accumulates weight and bias gradients and returns dL/d(input).
func (c *Conv2D) Backward(grad []float64) []float64 {
	k := c.kernelSize
	nw := c.nWeights()
	weights := c.params[:nw]
	gradW := c.grads[:nw]
	gradB := c.grads[nw:]
	outSize := c.outH * c.outW
	icStride := k * k
	ocStride := c.inChannels * icStride
	inPlane := c.inputHeight * c.inputWidth

	clear(c.gradInBuf)
	for oc := 0; oc < c.outChannels; oc++ {
		for oh := 0; oh < c.outH; oh++ {
			for ow := 0; ow < c.outW; ow++ {
				pos := oc*outSize + oh*c.outW + ow
				dz := grad[pos] * c.act.Derivative(c.preActBuf[pos])
				if dz == 0 {
					continue
				}
				gradB[oc] += dz
				for ic := 0; ic < c.inChannels; ic++ {
					wBase := oc*ocStride + ic*icStride
					inBase := ic * inPlane
					for kh := 0; kh < k; kh++ {
						inH := oh*c.stride + kh - c.padding
						if inH < 0 || inH >= c.inputHeight {
							continue
						}
						for kw := 0; kw < k; kw++ {
							inW := ow*c.stride + kw - c.padding
							if inW < 0 || inW >= c.inputWidth {
								continue
							}
							idx := inBase + inH*c.inputWidth + inW
							wIdx := wBase + kh*k + kw
							gradW[wIdx] += dz * c.savedInput[idx]
							c.gradInBuf[idx] += dz * weights[wIdx]
						}
					}
				}
			}
		}
	}
	return c.gradInBuf
}

func (c *Conv2D) Params() []float64    { return c.params }
func (c *Conv2D) Gradients() []float64 { return c.grads }
func (c *Conv2D) ClearGradients()      { clear(c.grads) }
func (c *Conv2D) OutSize() int         { return len(c.outputBuf) }

// OutShape returns the output channels, height and width.
func (c *Conv2D) OutShape() (int, int, int) {
	return c.outChannels, c.outH, c.outW
}
