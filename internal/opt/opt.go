// Package opt provides optimization algorithms and learning-rate schedules.
package opt

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Optimizer updates parameters in place from their gradients.
// Stateful optimizers keep one state slot per key; the network uses the
// layer index as key.
type Optimizer interface {
	Update(key int, params, grads []float64)
	LearningRate() float64
	SetLearningRate(lr float64)
	Name() string
}

// Settings holds the hyperparameters accepted by New.
type Settings struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

// New builds an optimizer by name: "sgd", "nag" (Nesterov momentum) or "adam".
func New(name string, s Settings) (Optimizer, error) {
	if s.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be > 0 (got %v)", s.LearningRate)
	}
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(s.LearningRate, s.Momentum, s.WeightDecay, false), nil
	case "nag":
		return NewSGD(s.LearningRate, s.Momentum, s.WeightDecay, true), nil
	case "adam":
		a := NewAdam(s.LearningRate)
		a.WeightDecay = s.WeightDecay
		return a, nil
	}
	return nil, errors.Errorf("unknown optimizer %q", name)
}

// SGD is stochastic gradient descent with optional momentum, Nesterov
// momentum and L2 weight decay (added to the gradient).
type SGD struct {
	lr          float64
	Momentum    float64
	WeightDecay float64
	Nesterov    bool

	velocity map[int][]float64
	gradBuf  []float64
}

// NewSGD creates an SGD optimizer.
func NewSGD(lr, momentum, weightDecay float64, nesterov bool) *SGD {
	return &SGD{
		lr:          lr,
		Momentum:    momentum,
		WeightDecay: weightDecay,
		Nesterov:    nesterov,
		velocity:    make(map[int][]float64),
	}
}

// Update applies
//
//	g = grad + wd*w
//	v = momentum*v - lr*g
//	w += v                          (classic)
//	w += momentum*v - lr*g          (Nesterov)
func (s *SGD) Update(key int, params, grads []float64) {
	if len(params) == 0 {
		return
	}
	g := s.effectiveGrad(params, grads)
	if s.Momentum == 0 {
		floats.AddScaled(params, -s.lr, g)
		return
	}

	v, ok := s.velocity[key]
	if !ok {
		v = make([]float64, len(params))
		s.velocity[key] = v
	}
	for i := range params {
		v[i] = s.Momentum*v[i] - s.lr*g[i]
		if s.Nesterov {
			params[i] += s.Momentum*v[i] - s.lr*g[i]
		} else {
			params[i] += v[i]
		}
	}
}

func (s *SGD) effectiveGrad(params, grads []float64) []float64 {
	if s.WeightDecay == 0 {
		return grads
	}
	if cap(s.gradBuf) < len(grads) {
		s.gradBuf = make([]float64, len(grads))
	}
	g := s.gradBuf[:len(grads)]
	copy(g, grads)
	floats.AddScaled(g, s.WeightDecay, params)
	return g
}

func (s *SGD) LearningRate() float64      { return s.lr }
func (s *SGD) SetLearningRate(lr float64) { s.lr = lr }

func (s *SGD) Name() string {
	if s.Nesterov {
		return "nag"
	}
	return "sgd"
}

// Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	lr          float64
	Beta1       float64 // Exponential decay rate for first moment
	Beta2       float64 // Exponential decay rate for second moment
	Epsilon     float64
	WeightDecay float64

	state map[int]*adamState
}

type adamState struct {
	m, v []float64
	t    int
}

// NewAdam creates an Adam optimizer with the Keras defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:      lr,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-7,
		state:   make(map[int]*adamState),
	}
}

func (a *Adam) Update(key int, params, grads []float64) {
	if len(params) == 0 {
		return
	}
	st, ok := a.state[key]
	if !ok {
		st = &adamState{m: make([]float64, len(params)), v: make([]float64, len(params))}
		a.state[key] = st
	}
	st.t++
	c1 := 1 - math.Pow(a.Beta1, float64(st.t))
	c2 := 1 - math.Pow(a.Beta2, float64(st.t))

	for i := range params {
		g := grads[i] + a.WeightDecay*params[i]
		st.m[i] = a.Beta1*st.m[i] + (1-a.Beta1)*g
		st.v[i] = a.Beta2*st.v[i] + (1-a.Beta2)*g*g
		mHat := st.m[i] / c1
		vHat := st.v[i] / c2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

func (a *Adam) LearningRate() float64      { return a.lr }
func (a *Adam) SetLearningRate(lr float64) { a.lr = lr }
func (a *Adam) Name() string               { return "adam" }
