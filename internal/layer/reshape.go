package layer

// Flatten marks the boundary between spatial layers and dense layers.
// Samples are already stored flat, so values and gradients pass through.
type Flatten struct {
	size int
}

// NewFlatten creates a flatten layer for inputs of the given length.
func NewFlatten(size int) *Flatten {
	return &Flatten{size: size}
}

func (f *Flatten) Forward(x []float64) []float64 {
	if len(x) != f.size {
		panic("Flatten: input length does not match configured size")
	}
	return x
}

func (f *Flatten) Backward(grad []float64) []float64 { return grad }
func (f *Flatten) Params() []float64                 { return nil }
func (f *Flatten) Gradients() []float64              { return nil }
func (f *Flatten) ClearGradients()                   {}
func (f *Flatten) OutSize() int                      { return f.size }
