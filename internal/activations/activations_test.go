package activations

import (
	"math"
	"testing"
)

func TestReLU(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		input    float64
		expected float64
		deriv    float64
	}{
		{-1.0, 0.0, 0.0}, // Negative -> 0
		{0.0, 0.0, 0.0},  // x must be > 0 for a unit slope
		{1.0, 1.0, 1.0},
		{2.5, 2.5, 1.0},
		{-0.1, 0.0, 0.0},
	}

	for _, tt := range tests {
		if out := relu.Activate(tt.input); math.Abs(out-tt.expected) > 1e-12 {
			t.Errorf("ReLU(%v) = %v, want %v", tt.input, out, tt.expected)
		}
		if d := relu.Derivative(tt.input); d != tt.deriv {
			t.Errorf("ReLU.Derivative(%v) = %v, want %v", tt.input, d, tt.deriv)
		}
	}
}

func TestLinear(t *testing.T) {
	for _, x := range []float64{-3, 0, 0.5, 7} {
		if got := (Linear{}).Activate(x); got != x {
			t.Errorf("Linear(%v) = %v", x, got)
		}
		if got := (Linear{}).Derivative(x); got != 1 {
			t.Errorf("Linear.Derivative(%v) = %v, want 1", x, got)
		}
	}
}
