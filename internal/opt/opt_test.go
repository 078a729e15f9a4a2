package opt

import (
	"math"
	"testing"
)

// TestSGDStep tests plain SGD: params - lr * gradients.
func TestSGDStep(t *testing.T) {
	sgd := NewSGD(0.1, 0, 0, false)

	params := []float64{1.0, 2.0, 3.0}
	sgd.Update(0, params, []float64{0.1, 0.2, 0.3})

	expected := []float64{0.99, 1.98, 2.97}
	for i := range params {
		if math.Abs(params[i]-expected[i]) > 1e-12 {
			t.Errorf("params[%d] = %v, want %v", i, params[i], expected[i])
		}
	}
}

// TestSGDWeightDecay tests that weight decay shrinks params with zero gradient.
func TestSGDWeightDecay(t *testing.T) {
	sgd := NewSGD(0.5, 0, 0.1, false)
	params := []float64{2.0}
	grads := []float64{0}
	sgd.Update(0, params, grads)

	// w -= lr * wd * w
	if want := 2.0 - 0.5*0.1*2.0; math.Abs(params[0]-want) > 1e-12 {
		t.Errorf("params[0] = %v, want %v", params[0], want)
	}
	if grads[0] != 0 {
		t.Error("weight decay must not modify the caller's gradient buffer")
	}
}

// TestSGDMomentum tests classic and Nesterov momentum over two steps.
func TestSGDMomentum(t *testing.T) {
	const lr, mu = 0.1, 0.9

	classic := NewSGD(lr, mu, 0, false)
	p := []float64{0}
	classic.Update(0, p, []float64{1}) // v=-0.1, p=-0.1
	classic.Update(0, p, []float64{1}) // v=-0.19, p=-0.29
	if math.Abs(p[0]+0.29) > 1e-12 {
		t.Errorf("classic momentum p = %v, want -0.29", p[0])
	}

	nag := NewSGD(lr, mu, 0, true)
	q := []float64{0}
	nag.Update(0, q, []float64{1}) // v=-0.1,  q += 0.9*-0.1 - 0.1 = -0.19
	nag.Update(0, q, []float64{1}) // v=-0.19, q += 0.9*-0.19 - 0.1 = -0.271
	if math.Abs(q[0]+0.461) > 1e-12 {
		t.Errorf("nesterov momentum q = %v, want -0.461", q[0])
	}
}

// TestSGDKeysAreIndependent tests that velocity is tracked per key.
func TestSGDKeysAreIndependent(t *testing.T) {
	sgd := NewSGD(0.1, 0.9, 0, false)
	a := []float64{0}
	b := []float64{0}
	sgd.Update(0, a, []float64{1})
	sgd.Update(0, a, []float64{1})
	sgd.Update(1, b, []float64{1})
	if math.Abs(b[0]+0.1) > 1e-12 {
		t.Errorf("key 1 should start with zero velocity, got %v", b[0])
	}
}

// TestAdamFirstStep tests that Adam's first step moves each param by ~lr.
func TestAdamFirstStep(t *testing.T) {
	adam := NewAdam(0.01)
	params := []float64{1, 1}
	adam.Update(0, params, []float64{5, -0.001})
	// With bias correction, the first update is lr * g/|g|.
	if math.Abs(params[0]-0.99) > 1e-6 {
		t.Errorf("params[0] = %v, want 0.99", params[0])
	}
	if math.Abs(params[1]-1.01) > 1e-4 {
		t.Errorf("params[1] = %v, want ~1.01", params[1])
	}
}

// TestAdamMinimizesQuadratic tests convergence on f(x) = (x-3)^2.
func TestAdamMinimizesQuadratic(t *testing.T) {
	adam := NewAdam(0.1)
	x := []float64{0}
	for i := 0; i < 500; i++ {
		adam.Update(0, x, []float64{2 * (x[0] - 3)})
	}
	if math.Abs(x[0]-3) > 0.1 {
		t.Errorf("x = %v, want ~3", x[0])
	}
}

// TestNew tests the optimizer factory.
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"sgd", "sgd", false},
		{"NAG", "nag", false},
		{"adam", "adam", false},
		{"rmsprop", "", true},
	}
	for _, tt := range tests {
		o, err := New(tt.name, Settings{LearningRate: 0.1, Momentum: 0.9})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err == nil && o.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.name, o.Name(), tt.want)
		}
	}
	if _, err := New("sgd", Settings{}); err == nil {
		t.Error("zero learning rate should be rejected")
	}
}
