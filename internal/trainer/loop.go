// Package trainer runs the imperative CIFAR-10 training loop: decay the
// learning rate, train, validate, checkpoint and report to the tracker.
package trainer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/dataset"
	"github.com/FlavioCFOliveira/neurontrack/internal/metric"
	"github.com/FlavioCFOliveira/neurontrack/internal/net"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
	"github.com/FlavioCFOliveira/neurontrack/internal/plot"
	"github.com/FlavioCFOliveira/neurontrack/internal/tracking"
)

// ConfusionFigure is the figure name the confusion matrix is logged under.
const ConfusionFigure = "CIFAR10 Confusion Matrix"

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Model      string
	Epochs     int
	SaveDir    string // empty disables checkpoints
	SavePeriod int    // 0 disables periodic checkpoints
	PlotDir    string // empty disables the history plot
	Classes    []string

	// Out receives the confusion matrix print-out. Nil means os.Stdout.
	Out io.Writer
}

// Result summarises a finished run.
type Result struct {
	BestValAcc  float64
	History     map[string][]float64
	Confusion   *metric.ConfusionMatrix
	Checkpoints []string
}

// Run trains n for cfg.Epochs epochs. sched may be nil. Cancelling ctx stops
// training between batches and returns ctx.Err().
func Run(ctx context.Context, cfg RunConfig, n *net.Network, sched opt.Scheduler,
	train, val *dataset.Loader, exp tracking.Experiment) (*Result, error) {

	if cfg.Epochs <= 0 {
		return nil, errors.Errorf("trainer: epochs must be > 0 (got %d)", cfg.Epochs)
	}
	if train.Len() == 0 {
		return nil, errors.New("trainer: training set is smaller than one batch")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.SaveDir != "" {
		if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "trainer: create save dir")
		}
	}

	res := &Result{History: make(map[string][]float64)}
	var trainMetric, valMetric metric.Accuracy

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		tic := time.Now()
		trainMetric.Reset()
		valMetric.Reset()

		if sched != nil {
			if lr, changed := sched.Step(epoch); changed {
				klog.InfoS("learning rate decayed", "epoch", epoch, "lr", lr)
				exp.LogMetric("lr", lr, epoch)
			}
		}

		n.SetTraining(true)
		var trainLoss float64
		for b := range train.Batches(ctx) {
			l, preds := n.TrainBatch(b.Inputs, b.Labels)
			trainLoss += l
			trainMetric.Update(b.Labels, preds)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		trainLoss /= float64(train.BatchSize() * train.Len())

		_, acc := trainMetric.Get()
		if err := predict(ctx, n, val, func(labels, preds []int) { valMetric.Update(labels, preds) }); err != nil {
			return res, err
		}
		_, valAcc := valMetric.Get()
		exp.LogMetrics(map[string]float64{"acc": acc, "val_acc": valAcc, "loss": trainLoss}, epoch)

		res.History["acc"] = append(res.History["acc"], acc)
		res.History["val_acc"] = append(res.History["val_acc"], valAcc)
		res.History["loss"] = append(res.History["loss"], trainLoss)

		if valAcc > res.BestValAcc {
			res.BestValAcc = valAcc
			if cfg.SaveDir != "" {
				path := fmt.Sprintf("%s/%.4f-cifar-%s-%d-best.params", cfg.SaveDir, valAcc, cfg.Model, epoch)
				if err := res.save(n, path); err != nil {
					return res, err
				}
			}
		}

		klog.Infof("[Epoch %d] train=%f val=%f loss=%f time: %f",
			epoch, acc, valAcc, trainLoss, time.Since(tic).Seconds())

		if cfg.SaveDir != "" && cfg.SavePeriod > 0 && (epoch+1)%cfg.SavePeriod == 0 {
			if err := res.save(n, periodicName(cfg, epoch)); err != nil {
				return res, err
			}
		}
	}

	if cfg.SaveDir != "" && cfg.SavePeriod > 0 {
		if err := res.save(n, periodicName(cfg, cfg.Epochs-1)); err != nil {
			return res, err
		}
	}

	cm := metric.NewConfusionMatrix(len(cfg.Classes))
	if err := predict(ctx, n, val, cm.AddBatch); err != nil {
		return res, err
	}
	res.Confusion = cm
	cm.Fprint(cfg.Out, cfg.Classes, true)
	fig, err := plot.ConfusionMatrix(cm.Normalized(), cfg.Classes, true, "Confusion matrix")
	if err != nil {
		return res, errors.Wrap(err, "trainer: plot confusion matrix")
	}
	exp.LogFigure(ConfusionFigure, fig)

	if cfg.PlotDir != "" {
		if err := saveHistory(cfg, res.History, exp); err != nil {
			return res, err
		}
	}
	return res, nil
}

func periodicName(cfg RunConfig, epoch int) string {
	return fmt.Sprintf("%s/cifar10-%s-%d.params", cfg.SaveDir, cfg.Model, epoch)
}

func (r *Result) save(n *net.Network, path string) error {
	if err := n.Save(path); err != nil {
		return err
	}
	r.Checkpoints = append(r.Checkpoints, path)
	klog.V(1).InfoS("checkpoint saved", "file", path)
	return nil
}

// predict runs the network in inference mode over every batch of l.
func predict(ctx context.Context, n *net.Network, l *dataset.Loader, fn func(labels, preds []int)) error {
	n.SetTraining(false)
	defer n.SetTraining(true)
	for b := range l.Batches(ctx) {
		preds := make([]int, len(b.Inputs))
		for i, x := range b.Inputs {
			preds[i] = n.Predict(x)
		}
		fn(b.Labels, preds)
	}
	return ctx.Err()
}

func saveHistory(cfg RunConfig, history map[string][]float64, exp tracking.Experiment) error {
	if err := os.MkdirAll(cfg.PlotDir, 0o755); err != nil {
		return errors.Wrap(err, "trainer: create plot dir")
	}
	acc := map[string][]float64{"train-acc": history["acc"], "val-acc": history["val_acc"]}
	p, err := plot.History(acc, cfg.Model+" training history", "accuracy")
	if err != nil {
		return errors.Wrap(err, "trainer: plot history")
	}
	path := filepath.Join(cfg.PlotDir, cfg.Model+"_history.png")
	if err := plot.Save(p, path); err != nil {
		return errors.Wrap(err, "trainer: save history plot")
	}
	klog.InfoS("history plot saved", "file", path)
	exp.LogFigure("Training History", p)
	return nil
}
