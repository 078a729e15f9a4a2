// Package activations provides element-wise activation functions.
package activations

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) from the pre-activation value.
	Derivative(x float64) float64

	// Name identifies the activation in summaries.
	Name() string
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func (ReLU) Name() string { return "relu" }

// Linear is the identity. Output layers that feed a from-logits loss use it.
type Linear struct{}

func (Linear) Activate(x float64) float64   { return x }
func (Linear) Derivative(x float64) float64 { return 1 }
func (Linear) Name() string                 { return "linear" }
