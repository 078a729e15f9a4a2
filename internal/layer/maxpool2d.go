package layer

import "fmt"

// MaxPool2D downsamples each channel by taking the maximum over square
// windows. The argmax of every window is remembered so the backward pass
// routes the gradient to the winning input only.
type MaxPool2D struct {
	channels                int
	kernelSize, stride      int
	inputHeight, inputWidth int
	outH, outW              int

	outputBuf []float64
	gradInBuf []float64
	argmaxBuf []int
}

// NewMaxPool2D creates a pooling layer for channels×inputHeight×inputWidth inputs.
// A stride of 0 defaults to kernelSize.
func NewMaxPool2D(channels, inputHeight, inputWidth, kernelSize, stride int) *MaxPool2D {
	if stride <= 0 {
		stride = kernelSize
	}
	m := &MaxPool2D{
		channels:    channels,
		kernelSize:  kernelSize,
		stride:      stride,
		inputHeight: inputHeight,
		inputWidth:  inputWidth,
		outH:        (inputHeight-kernelSize)/stride + 1,
		outW:        (inputWidth-kernelSize)/stride + 1,
	}
	if m.outH <= 0 || m.outW <= 0 {
		panic(fmt.Sprintf("MaxPool2D: window %d does not fit input %dx%d", kernelSize, inputHeight, inputWidth))
	}
	out := channels * m.outH * m.outW
	m.outputBuf = make([]float64, out)
	m.argmaxBuf = make([]int, out)
	m.gradInBuf = make([]float64, channels*inputHeight*inputWidth)
	return m
}

func (m *MaxPool2D) Forward(x []float64) []float64 {
	if len(x) != len(m.gradInBuf) {
		panic(fmt.Sprintf("MaxPool2D: input length %d, want %d", len(x), len(m.gradInBuf)))
	}
	inPlane := m.inputHeight * m.inputWidth
	outPlane := m.outH * m.outW
	for c := 0; c < m.channels; c++ {
		for oh := 0; oh < m.outH; oh++ {
			for ow := 0; ow < m.outW; ow++ {
				// Seeding from the first cell keeps NaN windows routable.
				bestIdx := c*inPlane + oh*m.stride*m.inputWidth + ow*m.stride
				best := x[bestIdx]
				for kh := 0; kh < m.kernelSize; kh++ {
					ih := oh*m.stride + kh
					for kw := 0; kw < m.kernelSize; kw++ {
						idx := c*inPlane + ih*m.inputWidth + ow*m.stride + kw
						if x[idx] > best {
							best = x[idx]
							bestIdx = idx
						}
					}
				}
				pos := c*outPlane + oh*m.outW + ow
				m.outputBuf[pos] = best
				m.argmaxBuf[pos] = bestIdx
			}
		}
	}
	return m.outputBuf
}

func (m *MaxPool2D) Backward(grad []float64) []float64 {
	clear(m.gradInBuf)
	for pos, idx := range m.argmaxBuf {
		m.gradInBuf[idx] += grad[pos]
	}
	return m.gradInBuf
}

// Params returns nil: pooling has no learnable parameters.
func (m *MaxPool2D) Params() []float64    { return nil }
func (m *MaxPool2D) Gradients() []float64 { return nil }
func (m *MaxPool2D) ClearGradients()      {}
func (m *MaxPool2D) OutSize() int         { return len(m.outputBuf) }

// OutShape returns the output channels, height and width.
func (m *MaxPool2D) OutShape() (int, int, int) {
	return m.channels, m.outH, m.outW
}
