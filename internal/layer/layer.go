// Package layer provides neural network layer implementations.
//
// Layers process one sample at a time. Backward accumulates parameter
// gradients so a batch is trained by running Forward/Backward per sample
// and stepping the optimizer once.
package layer

import "math/rand"

// Layer is a neural network layer.
type Layer interface {
	Forward(x []float64) []float64

	// Backward takes dL/d(output) of the most recent Forward call, adds the
	// parameter gradients to the layer's gradient buffer and returns dL/d(input).
	Backward(grad []float64) []float64

	// Params returns the layer's parameters as a live, contiguous view.
	Params() []float64

	// Gradients returns the accumulated gradients, aligned with Params.
	Gradients() []float64

	ClearGradients()
	OutSize() int
}

// TrainingSetter is implemented by layers that behave differently during
// training and inference.
type TrainingSetter interface {
	SetTraining(training bool)
}

// RNG is the seedable source used for weight initialisation and dropout masks.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates a deterministic generator.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a value in [0, 1).
func (g *RNG) Float64() float64 {
	return g.r.Float64()
}

// Uniform returns a value in [-scale, scale).
func (g *RNG) Uniform(scale float64) float64 {
	return g.r.Float64()*2*scale - scale
}

// Intn returns a value in [0, n).
func (g *RNG) Intn(n int) int {
	return g.r.Intn(n)
}
