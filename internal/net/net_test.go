package net

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FlavioCFOliveira/neurontrack/internal/activations"
	"github.com/FlavioCFOliveira/neurontrack/internal/layer"
	"github.com/FlavioCFOliveira/neurontrack/internal/loss"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
)

func newToyNetwork(seed int64) *Network {
	rng := layer.NewRNG(seed)
	return New("toy", []layer.Layer{
		layer.NewDense(2, 8, activations.ReLU{}, rng),
		layer.NewDense(8, 2, activations.Linear{}, rng),
	}, loss.SoftmaxCrossEntropy{}, opt.NewAdam(0.05))
}

// toyData labels a point 1 when x0 > x1.
func toyData(n int, seed int64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		a, b := r.Float64()*2-1, r.Float64()*2-1
		x[i] = []float64{a, b}
		if a > b {
			y[i] = 1
		}
	}
	return x, y
}

// TestNetworkForward tests forward pass output size.
func TestNetworkForward(t *testing.T) {
	network := newToyNetwork(1)
	out := network.Forward([]float64{0.5, -0.5})
	if len(out) != 2 {
		t.Errorf("Output length = %d, want 2", len(out))
	}
	if p := network.Predict([]float64{0.5, -0.5}); p != Argmax(out) {
		t.Errorf("Predict = %d, want %d", p, Argmax(out))
	}
}

// TestTrainBatchReturnsLossSum tests that TrainBatch reports the summed loss.
func TestTrainBatchReturnsLossSum(t *testing.T) {
	network := New("lin", []layer.Layer{
		layer.NewDense(2, 3, activations.Linear{}, layer.NewRNG(1)),
	}, loss.SoftmaxCrossEntropy{}, opt.NewSGD(1e-12, 0, 0, false))
	clear(network.Layers()[0].Params())

	// All-zero params give uniform logits: each sample costs log(3).
	l, preds := network.TrainBatch([][]float64{{1, 2}, {3, 4}}, []int{0, 2})
	if want := 2 * math.Log(3); math.Abs(l-want) > 1e-9 {
		t.Errorf("loss = %v, want %v", l, want)
	}
	if len(preds) != 2 {
		t.Errorf("len(preds) = %d, want 2", len(preds))
	}
}

// TestTrainBatchAveragesGradients tests that the update uses the batch mean gradient.
func TestTrainBatchAveragesGradients(t *testing.T) {
	build := func() *Network {
		n := New("lin", []layer.Layer{
			layer.NewDense(1, 2, activations.Linear{}, layer.NewRNG(3)),
		}, loss.SoftmaxCrossEntropy{}, opt.NewSGD(0.5, 0, 0, false))
		return n
	}
	single := build()
	double := build()

	single.TrainBatch([][]float64{{1}}, []int{1})
	double.TrainBatch([][]float64{{1}, {1}}, []int{1, 1})

	a := single.Layers()[0].Params()
	b := double.Layers()[0].Params()
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Errorf("param %d: duplicated batch %v, single %v", i, b[i], a[i])
		}
	}
}

// TestNetworkLearnsToyProblem tests that training separates a linear boundary.
func TestNetworkLearnsToyProblem(t *testing.T) {
	network := newToyNetwork(7)
	x, y := toyData(256, 3)
	for epoch := 0; epoch < 60; epoch++ {
		for i := 0; i < len(x); i += 16 {
			network.TrainBatch(x[i:i+16], y[i:i+16])
		}
	}
	testX, testY := toyData(200, 99)
	_, acc := network.Evaluate(testX, testY)
	if acc < 0.9 {
		t.Errorf("accuracy = %.3f, want >= 0.9", acc)
	}
}

// TestCheckpointRoundTrip tests Save followed by Load into a fresh network.
func TestCheckpointRoundTrip(t *testing.T) {
	src := newToyNetwork(1)
	dst := newToyNetwork(2)
	path := filepath.Join(t.TempDir(), "toy.params")

	if err := src.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := dst.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i, l := range src.Layers() {
		want := l.Params()
		got := dst.Layers()[i].Params()
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("layer %d param %d = %v, want %v", i, j, got[j], want[j])
			}
		}
	}
}

// TestCheckpointMismatch tests that an incompatible architecture is rejected untouched.
func TestCheckpointMismatch(t *testing.T) {
	src := newToyNetwork(1)
	var buf bytes.Buffer
	if err := src.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rng := layer.NewRNG(1)
	other := New("wide", []layer.Layer{
		layer.NewDense(2, 16, activations.ReLU{}, rng),
		layer.NewDense(16, 2, activations.Linear{}, rng),
	}, loss.SoftmaxCrossEntropy{}, opt.NewAdam(0.01))
	before := append([]float64(nil), other.Layers()[0].Params()...)

	err := other.Decode(&buf)
	if err == nil {
		t.Fatal("expected error loading mismatched parameters")
	}
	if !strings.Contains(err.Error(), "layer 0") {
		t.Errorf("error %q should name the layer", err)
	}
	for i, v := range other.Layers()[0].Params() {
		if v != before[i] {
			t.Fatal("failed load must not modify parameters")
		}
	}
}

// TestCheckpointBadMagic tests that foreign files are rejected.
func TestCheckpointBadMagic(t *testing.T) {
	if err := newToyNetwork(1).Decode(strings.NewReader("not gob")); err == nil {
		t.Error("expected decode error")
	}
}

// TestSummary tests that the summary lists layers and the parameter total.
func TestSummary(t *testing.T) {
	network := newToyNetwork(1)
	var buf bytes.Buffer
	network.Summary(&buf)
	out := buf.String()
	for _, want := range []string{"Model: toy", "Dense_0", "Dense_1", "Total params: 42"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// TestArgmax tests ties and ordinary maxima.
func TestArgmax(t *testing.T) {
	if got := Argmax([]float64{1, 3, 3, 2}); got != 1 {
		t.Errorf("Argmax = %d, want 1", got)
	}
	if got := Argmax([]float64{-5}); got != 0 {
		t.Errorf("Argmax = %d, want 0", got)
	}
}
