package tracking

import (
	"github.com/FlavioCFOliveira/neurontrack/internal/net"
)

// KerasCallback mirrors Comet's Keras auto-logging: hyperparameters and the
// model summary when training starts, batch metrics every BatchInterval
// batches and epoch metrics at the end of each epoch.
type KerasCallback struct {
	net.BaseCallback
	Exp           Experiment
	Params        map[string]any
	BatchInterval int

	step int
}

// NewKerasCallback returns a callback logging batch metrics every 10 batches.
func NewKerasCallback(exp Experiment, params map[string]any) *KerasCallback {
	return &KerasCallback{Exp: exp, Params: params, BatchInterval: 10}
}

func (c *KerasCallback) OnTrainBegin(n *net.Network) {
	c.step = 0
	params := map[string]any{
		"model":            n.Name(),
		"trainable_params": n.NumParams(),
		"num_layers":       len(n.Layers()),
	}
	if o := n.Optimizer(); o != nil {
		params["optimizer"] = o.Name()
		params["learning_rate"] = o.LearningRate()
	}
	if l := n.Loss(); l != nil {
		params["loss"] = l.Name()
	}
	for k, v := range c.Params {
		params[k] = v
	}
	c.Exp.LogParameters(params)
}

func (c *KerasCallback) OnBatchEnd(batch int, logs net.Logs, n *net.Network) {
	c.step++
	if c.BatchInterval <= 0 || c.step%c.BatchInterval != 0 {
		return
	}
	m := make(map[string]float64, len(logs))
	for k, v := range logs {
		m["batch_"+k] = v
	}
	c.Exp.LogMetrics(m, c.step)
}

func (c *KerasCallback) OnEpochEnd(epoch int, logs net.Logs, n *net.Network) {
	c.Exp.LogMetrics(logs, c.step)
	c.Exp.LogMetric("epoch", float64(epoch), c.step)
}
