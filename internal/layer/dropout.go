package layer

// Dropout implements inverted dropout.
// During training each input is zeroed with probability p and the survivors
// are scaled by 1/(1-p). During inference inputs pass through unchanged.
type Dropout struct {
	p        float64
	training bool
	size     int

	outputBuf []float64
	maskBuf   []float64
	gradInBuf []float64

	rng *RNG
}

// NewDropout creates a dropout layer. Training mode is on by default.
func NewDropout(p float64, size int, rng *RNG) *Dropout {
	if p < 0 || p >= 1 {
		panic("Dropout: rate must be in [0, 1)")
	}
	return &Dropout{
		p:         p,
		training:  true,
		size:      size,
		outputBuf: make([]float64, size),
		maskBuf:   make([]float64, size),
		gradInBuf: make([]float64, size),
		rng:       rng,
	}
}

// SetTraining sets whether the layer should be in training or inference mode.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// IsTraining returns whether the layer is in training mode.
func (d *Dropout) IsTraining() bool {
	return d.training
}

// Rate returns the drop probability.
func (d *Dropout) Rate() float64 { return d.p }

func (d *Dropout) Forward(x []float64) []float64 {
	if !d.training || d.p == 0 {
		for i := range d.maskBuf {
			d.maskBuf[i] = 1
		}
		copy(d.outputBuf, x)
		return d.outputBuf
	}

	scale := 1.0 / (1.0 - d.p)
	for i := range x {
		if d.rng.Float64() < d.p {
			d.maskBuf[i] = 0
		} else {
			d.maskBuf[i] = scale
		}
		d.outputBuf[i] = x[i] * d.maskBuf[i]
	}
	return d.outputBuf
}

func (d *Dropout) Backward(grad []float64) []float64 {
	for i := range grad {
		d.gradInBuf[i] = grad[i] * d.maskBuf[i]
	}
	return d.gradInBuf
}

func (d *Dropout) Params() []float64    { return nil }
func (d *Dropout) Gradients() []float64 { return nil }
func (d *Dropout) ClearGradients()      {}
func (d *Dropout) OutSize() int         { return d.size }
