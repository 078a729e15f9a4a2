// Package loss provides classification loss functions.
package loss

import "math"

// Loss is a loss over one sample's network output and its integer class label.
type Loss interface {
	// Forward computes the loss for one sample.
	Forward(output []float64, label int) float64

	// BackwardInPlace writes dL/d(output) into grad.
	BackwardInPlace(output []float64, label int, grad []float64)

	Name() string
}

// SoftmaxCrossEntropy is categorical cross-entropy applied to raw logits:
// L = logsumexp(z) - z[label]. It fuses softmax into the loss so the network's
// last layer stays linear, like Keras' from_logits=True and Gluon's
// SoftmaxCrossEntropyLoss.
type SoftmaxCrossEntropy struct{}

// Forward computes the loss with the max-subtraction trick.
func (SoftmaxCrossEntropy) Forward(logits []float64, label int) float64 {
	checkLabel(logits, label)
	m := maxOf(logits)
	sum := 0.0
	for _, z := range logits {
		sum += math.Exp(z - m)
	}
	return m + math.Log(sum) - logits[label]
}

// BackwardInPlace computes softmax(z) - onehot(label).
func (SoftmaxCrossEntropy) BackwardInPlace(logits []float64, label int, grad []float64) {
	checkLabel(logits, label)
	if len(grad) != len(logits) {
		panic("SoftmaxCrossEntropy: gradient buffer length mismatch")
	}
	Softmax(logits, grad)
	grad[label] -= 1
}

func (SoftmaxCrossEntropy) Name() string { return "softmax_cross_entropy" }

// Softmax writes the normalised exponentials of z into dst.
func Softmax(z, dst []float64) {
	m := maxOf(z)
	sum := 0.0
	for i, v := range z {
		e := math.Exp(v - m)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

func maxOf(z []float64) float64 {
	m := math.Inf(-1)
	for _, v := range z {
		if v > m {
			m = v
		}
	}
	return m
}

func checkLabel(z []float64, label int) {
	if label < 0 || label >= len(z) {
		panic("SoftmaxCrossEntropy: label out of range")
	}
}
