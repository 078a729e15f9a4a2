package net

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/neurontrack/internal/layer"
	"github.com/FlavioCFOliveira/neurontrack/internal/loss"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
)

// Sequential is a high-level wrapper around Network to provide a Keras-like API.
type Sequential struct {
	*Network
}

// NewSequential creates a new Sequential model.
func NewSequential(name string, layers ...layer.Layer) *Sequential {
	return &Sequential{
		Network: &Network{
			name:   name,
			layers: layers,
		},
	}
}

// Compile configures the model for training.
func (s *Sequential) Compile(optimizer opt.Optimizer, lossFn loss.Loss) {
	s.opt = optimizer
	s.loss = lossFn
}

// FitConfig controls Fit.
type FitConfig struct {
	Epochs    int
	BatchSize int
	Shuffle   bool
	Seed      int64

	// Optional validation set evaluated at the end of every epoch.
	ValX [][]float64
	ValY []int
}

// History records the epoch logs produced by Fit.
type History struct {
	Epochs []Logs
}

// Series returns the values of one metric across epochs.
func (h *History) Series(key string) []float64 {
	out := make([]float64, 0, len(h.Epochs))
	for _, l := range h.Epochs {
		out = append(out, l[key])
	}
	return out
}

// Fit trains the model on (x, y). A partial last batch is trained as-is.
// Cancelling ctx stops training between batches and returns ctx.Err()
// together with the history so far.
func (s *Sequential) Fit(ctx context.Context, x [][]float64, y []int, cfg FitConfig, callbacks ...Callback) (*History, error) {
	if s.opt == nil || s.loss == nil {
		return nil, errors.New("model must be compiled before Fit")
	}
	if len(x) != len(y) {
		return nil, errors.Errorf("x has %d samples, y has %d", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, errors.New("no training samples")
	}
	if cfg.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be > 0 (got %d)", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	batchX := make([][]float64, 0, cfg.BatchSize)
	batchY := make([]int, 0, cfg.BatchSize)

	hist := &History{}
	for _, cb := range callbacks {
		cb.OnTrainBegin(s.Network)
	}
	defer func() {
		for _, cb := range callbacks {
			cb.OnTrainEnd(s.Network)
		}
	}()

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, cb := range callbacks {
			cb.OnEpochBegin(epoch, s.Network)
		}
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		s.SetTraining(true)
		var lossSum float64
		correct, seen := 0, 0
		for b, start := 0, 0; start < len(order); b, start = b+1, start+cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			end := min(start+cfg.BatchSize, len(order))
			batchX, batchY = batchX[:0], batchY[:0]
			for _, idx := range order[start:end] {
				batchX = append(batchX, x[idx])
				batchY = append(batchY, y[idx])
			}

			l, preds := s.TrainBatch(batchX, batchY)
			lossSum += l
			seen += len(preds)
			for i, p := range preds {
				if p == batchY[i] {
					correct++
				}
			}
			batchLogs := Logs{
				"loss": lossSum / float64(seen),
				"acc":  float64(correct) / float64(seen),
			}
			for _, cb := range callbacks {
				cb.OnBatchEnd(b, batchLogs, s.Network)
			}
		}

		logs := Logs{
			"loss": lossSum / float64(seen),
			"acc":  float64(correct) / float64(seen),
			"lr":   s.opt.LearningRate(),
		}
		if len(cfg.ValX) > 0 {
			logs["val_loss"], logs["val_acc"] = s.Evaluate(cfg.ValX, cfg.ValY)
		}
		hist.Epochs = append(hist.Epochs, logs)
		for _, cb := range callbacks {
			cb.OnEpochEnd(epoch, logs, s.Network)
		}
	}
	return hist, nil
}
