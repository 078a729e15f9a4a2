// Package zoo builds named classifier architectures.
package zoo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/activations"
	"github.com/FlavioCFOliveira/neurontrack/internal/layer"
)

// Options are the keyword arguments passed to every model constructor.
type Options struct {
	Classes  int
	DropRate float64 // used by cifar_wide* models only
	Seed     int64
}

type constructor func(o Options) []layer.Layer

var models = map[string]constructor{
	"cifar_simplecnn":     simpleCNN,
	"cifar_vgg_lite":      vggLite,
	"cifar_wide_cnn_16_1": wideCNN(16, 1),
	"cifar_wide_cnn_16_2": wideCNN(16, 2),
	"mnist_mlp":           mnistMLP,
}

// Names lists the registered models in sorted order.
func Names() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns freshly initialised layers for the named model. Names are
// case-insensitive.
func Get(name string, o Options) ([]layer.Layer, error) {
	name = strings.ToLower(name)
	build, ok := models[name]
	if !ok {
		return nil, errors.Errorf("model %q is not supported; available models: %s",
			name, strings.Join(Names(), ", "))
	}
	if o.Classes <= 0 {
		o.Classes = 10
	}
	if o.DropRate < 0 || o.DropRate >= 1 {
		return nil, errors.Errorf("drop rate must be in [0, 1) (got %g)", o.DropRate)
	}
	if !strings.HasPrefix(name, "cifar_wide") && o.DropRate > 0 {
		klog.V(1).InfoS("drop rate ignored", "model", name, "drop_rate", o.DropRate)
		o.DropRate = 0
	}
	return build(o), nil
}

// stack tracks the running C×H×W shape while layers are appended.
type stack struct {
	rng     *layer.RNG
	c, h, w int
	layers  []layer.Layer
}

func newStack(seed int64, c, h, w int) *stack {
	return &stack{rng: layer.NewRNG(seed), c: c, h: h, w: w}
}

// conv adds a 3x3, stride 1, same-padded convolution with ReLU.
func (s *stack) conv(out int) *stack {
	s.layers = append(s.layers, layer.NewConv2D(s.c, out, 3, 1, 1, s.h, s.w, activations.ReLU{}, s.rng))
	s.c = out
	return s
}

func (s *stack) pool() *stack {
	p := layer.NewMaxPool2D(s.c, s.h, s.w, 2, 2)
	s.layers = append(s.layers, p)
	s.c, s.h, s.w = p.OutShape()
	return s
}

func (s *stack) flatten() *stack {
	s.layers = append(s.layers, layer.NewFlatten(s.size()))
	return s
}

func (s *stack) dropout(p float64) *stack {
	if p > 0 {
		s.layers = append(s.layers, layer.NewDropout(p, s.size(), s.rng))
	}
	return s
}

func (s *stack) dense(out int, act activations.Activation) *stack {
	s.layers = append(s.layers, layer.NewDense(s.size(), out, act, s.rng))
	s.c, s.h, s.w = out, 1, 1
	return s
}

func (s *stack) size() int { return s.c * s.h * s.w }

func simpleCNN(o Options) []layer.Layer {
	return newStack(o.Seed, 3, 32, 32).
		conv(16).pool().
		conv(32).pool().
		flatten().
		dense(64, activations.ReLU{}).
		dense(o.Classes, activations.Linear{}).
		layers
}

func vggLite(o Options) []layer.Layer {
	return newStack(o.Seed, 3, 32, 32).
		conv(16).conv(16).pool().
		conv(32).conv(32).pool().
		flatten().
		dense(128, activations.ReLU{}).
		dropout(0.5).
		dense(o.Classes, activations.Linear{}).
		layers
}

// wideCNN follows the wide residual network layout without the shortcuts:
// three stages of (depth-4)/6 convolutions with 16k, 32k and 64k channels.
func wideCNN(depth, k int) constructor {
	if (depth-4)%6 != 0 || depth < 10 {
		panic(fmt.Sprintf("zoo: invalid wide depth %d", depth))
	}
	n := (depth - 4) / 6
	return func(o Options) []layer.Layer {
		s := newStack(o.Seed, 3, 32, 32).conv(16)
		for stage, width := range []int{16 * k, 32 * k, 64 * k} {
			if stage > 0 {
				s.pool()
			}
			for i := 0; i < n; i++ {
				s.conv(width).dropout(o.DropRate)
			}
		}
		return s.pool().flatten().dense(o.Classes, activations.Linear{}).layers
	}
}

func mnistMLP(o Options) []layer.Layer {
	return newStack(o.Seed, 1, 28, 28).
		flatten().
		dense(128, activations.ReLU{}).
		dense(128, activations.ReLU{}).
		dropout(0.2).
		dense(o.Classes, activations.Linear{}).
		layers
}
