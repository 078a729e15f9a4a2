package opt

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scheduler adjusts an optimizer's learning rate at epoch boundaries.
type Scheduler interface {
	// Step is called at the start of every epoch. It returns the learning
	// rate in effect and whether it changed.
	Step(epoch int) (lr float64, changed bool)
}

// MultiStepDecay multiplies the learning rate by Factor when training reaches
// one of the listed epochs. The epoch table carries an implicit +Inf
// sentinel, so once every boundary has been passed the rate stays put.
// With Period > 0 the table is ignored and the rate decays every Period epochs.
type MultiStepDecay struct {
	optimizer Optimizer
	Factor    float64
	Period    int

	epochs []int
	next   int
}

// NewMultiStepDecay creates a decay schedule driven by a table of epochs.
func NewMultiStepDecay(optimizer Optimizer, factor float64, period int, epochs []int) *MultiStepDecay {
	table := append([]int(nil), epochs...)
	sort.Ints(table)
	return &MultiStepDecay{
		optimizer: optimizer,
		Factor:    factor,
		Period:    period,
		epochs:    table,
	}
}

func (s *MultiStepDecay) boundary() int {
	if s.next < len(s.epochs) {
		return s.epochs[s.next]
	}
	return math.MaxInt
}

func (s *MultiStepDecay) Step(epoch int) (float64, bool) {
	decay := false
	if s.Period > 0 {
		decay = epoch > 0 && epoch%s.Period == 0
	} else if epoch == s.boundary() {
		decay = true
		s.next++
	}
	if !decay {
		return s.optimizer.LearningRate(), false
	}
	lr := s.optimizer.LearningRate() * s.Factor
	s.optimizer.SetLearningRate(lr)
	return lr, true
}

// ParseEpochList parses a comma separated list of epochs such as "40,60".
// An empty string yields an empty table.
func ParseEpochList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "epoch list %q", s)
		}
		if v <= 0 {
			return nil, errors.Errorf("epoch list %q: epochs must be > 0 (got %d)", s, v)
		}
		if seen[v] {
			return nil, errors.Errorf("epoch list %q: duplicate epoch %d", s, v)
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}
