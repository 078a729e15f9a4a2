package net

import (
	"math"

	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
)

// Logs carries the metrics of a batch or an epoch, keyed like Keras logs:
// "loss", "acc", "val_loss", "val_acc", "lr".
type Logs map[string]float64

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(n *Network)
	OnTrainEnd(n *Network)
	OnEpochBegin(epoch int, n *Network)
	OnEpochEnd(epoch int, logs Logs, n *Network)
	OnBatchEnd(batch int, logs Logs, n *Network)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(n *Network)                     {}
func (BaseCallback) OnTrainEnd(n *Network)                       {}
func (BaseCallback) OnEpochBegin(epoch int, n *Network)          {}
func (BaseCallback) OnEpochEnd(epoch int, logs Logs, n *Network) {}
func (BaseCallback) OnBatchEnd(batch int, logs Logs, n *Network) {}

// Logger logs epoch metrics through klog.
type Logger struct {
	BaseCallback
	Interval int
}

func (c Logger) OnEpochEnd(epoch int, logs Logs, n *Network) {
	if c.Interval > 0 && epoch%c.Interval != 0 {
		return
	}
	klog.InfoS("epoch end", "epoch", epoch,
		"loss", logs["loss"], "acc", logs["acc"],
		"val_loss", logs["val_loss"], "val_acc", logs["val_acc"])
}

// ModelCheckpoint saves the model whenever the monitored metric improves.
// Metrics whose name ends in "acc" are maximised, everything else minimised.
type ModelCheckpoint struct {
	BaseCallback
	Filename string
	Monitor  string

	best float64
	seen bool
}

// NewModelCheckpoint creates a checkpoint callback; an empty monitor means "loss".
func NewModelCheckpoint(filename, monitor string) *ModelCheckpoint {
	if monitor == "" {
		monitor = "loss"
	}
	return &ModelCheckpoint{Filename: filename, Monitor: monitor}
}

func (c *ModelCheckpoint) improved(v float64) bool {
	if !c.seen {
		return true
	}
	if maximise(c.Monitor) {
		return v > c.best
	}
	return v < c.best
}

func (c *ModelCheckpoint) OnEpochEnd(epoch int, logs Logs, n *Network) {
	v, ok := logs[c.Monitor]
	if !ok || math.IsNaN(v) || !c.improved(v) {
		return
	}
	c.best, c.seen = v, true
	if err := n.Save(c.Filename); err != nil {
		klog.ErrorS(err, "saving checkpoint", "file", c.Filename)
		return
	}
	klog.InfoS("checkpoint saved", "file", c.Filename, c.Monitor, v)
}

// Best returns the best value seen so far.
func (c *ModelCheckpoint) Best() float64 { return c.best }

func maximise(metric string) bool {
	return len(metric) >= 3 && metric[len(metric)-3:] == "acc"
}

// SchedulerCallback applies a learning-rate schedule at the start of every epoch.
type SchedulerCallback struct {
	BaseCallback
	scheduler opt.Scheduler
}

func NewSchedulerCallback(scheduler opt.Scheduler) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler}
}

func (c *SchedulerCallback) OnEpochBegin(epoch int, n *Network) {
	if lr, changed := c.scheduler.Step(epoch); changed {
		klog.InfoS("learning rate decayed", "epoch", epoch, "lr", lr)
	}
}
