package loss

import (
	"math"
	"testing"
)

// TestSoftmaxCrossEntropyUniform tests that equal logits give log(K).
func TestSoftmaxCrossEntropyUniform(t *testing.T) {
	l := SoftmaxCrossEntropy{}
	got := l.Forward([]float64{0, 0, 0, 0}, 2)
	if want := math.Log(4); math.Abs(got-want) > 1e-12 {
		t.Errorf("loss = %v, want %v", got, want)
	}
}

// TestSoftmaxCrossEntropyStable tests that large logits do not overflow.
func TestSoftmaxCrossEntropyStable(t *testing.T) {
	l := SoftmaxCrossEntropy{}
	got := l.Forward([]float64{1000, 0, -1000}, 0)
	if math.IsNaN(got) || math.IsInf(got, 0) || got > 1e-9 {
		t.Errorf("loss = %v, want ~0", got)
	}
	got = l.Forward([]float64{1000, 0, -1000}, 1)
	if math.Abs(got-1000) > 1e-6 {
		t.Errorf("loss = %v, want ~1000", got)
	}
}

// TestSoftmaxCrossEntropyGradient tests the gradient against finite differences.
func TestSoftmaxCrossEntropyGradient(t *testing.T) {
	l := SoftmaxCrossEntropy{}
	z := []float64{0.3, -1.2, 2.0, 0.1}
	label := 1
	grad := make([]float64, len(z))
	l.BackwardInPlace(z, label, grad)

	const eps = 1e-6
	sum := 0.0
	for i := range z {
		orig := z[i]
		z[i] = orig + eps
		plus := l.Forward(z, label)
		z[i] = orig - eps
		minus := l.Forward(z, label)
		z[i] = orig
		num := (plus - minus) / (2 * eps)
		if math.Abs(num-grad[i]) > 1e-6 {
			t.Errorf("grad[%d] = %v, numerical %v", i, grad[i], num)
		}
		sum += grad[i]
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("gradient should sum to 0, got %v", sum)
	}
}

// TestSoftmax tests that probabilities are positive and sum to one.
func TestSoftmax(t *testing.T) {
	z := []float64{1, 2, 3}
	p := make([]float64, 3)
	Softmax(z, p)
	sum := 0.0
	for i, v := range p {
		if v <= 0 {
			t.Errorf("p[%d] = %v, want > 0", i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("sum = %v, want 1", sum)
	}
	if !(p[0] < p[1] && p[1] < p[2]) {
		t.Errorf("softmax should preserve order: %v", p)
	}
}

// TestLabelOutOfRange tests that an invalid label panics.
func TestLabelOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for label out of range")
		}
	}()
	SoftmaxCrossEntropy{}.Forward([]float64{1, 2}, 2)
}
