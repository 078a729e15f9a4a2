// Package config holds the command-line and environment settings of the
// training programs.
package config

import (
	"flag"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
	"github.com/FlavioCFOliveira/neurontrack/internal/tracking"
	"github.com/FlavioCFOliveira/neurontrack/internal/zoo"
)

// CIFAR10 configures cmd/cifar10.
type CIFAR10 struct {
	BatchSize     int
	NumGPUs       int
	Model         string
	NumWorkers    int
	Epochs        int
	LR            float64
	Momentum      float64
	WD            float64
	LRDecay       float64
	LRDecayPeriod int
	LRDecayEpoch  string
	DropRate      float64
	Mode          string
	SavePeriod    int
	SaveDir       string
	ResumeFrom    string
	SavePlotDir   string
	DataDir       string
	Download      bool
	Seed          int64
	Limit         int
}

// DefaultCIFAR10 returns the command defaults.
func DefaultCIFAR10() CIFAR10 {
	return CIFAR10{
		BatchSize:    32,
		Model:        "cifar_simplecnn",
		NumWorkers:   4,
		Epochs:       3,
		LR:           0.1,
		Momentum:     0.9,
		WD:           0.0001,
		LRDecay:      0.1,
		LRDecayEpoch: "40,60",
		Mode:         "imperative",
		SavePeriod:   10,
		SaveDir:      "params",
		SavePlotDir:  ".",
		DataDir:      "data/cifar10",
		Download:     true,
		Seed:         1,
	}
}

// RegisterFlags binds c to fs. Current values become the flag defaults.
func (c *CIFAR10) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "training batch size per device (CPU/GPU).")
	fs.IntVar(&c.NumGPUs, "num-gpus", c.NumGPUs, "number of gpus to use; accepted for compatibility, training runs on the CPU.")
	fs.StringVar(&c.Model, "model", c.Model, "model to use. options are "+strings.Join(zoo.Names(), ", ")+".")
	fs.IntVar(&c.NumWorkers, "num-data-workers", c.NumWorkers, "number of preprocessing workers")
	fs.IntVar(&c.NumWorkers, "j", c.NumWorkers, "shorthand for -num-data-workers")
	fs.IntVar(&c.Epochs, "num-epochs", c.Epochs, "number of training epochs.")
	fs.Float64Var(&c.LR, "lr", c.LR, "learning rate.")
	fs.Float64Var(&c.Momentum, "momentum", c.Momentum, "momentum value for optimizer.")
	fs.Float64Var(&c.WD, "wd", c.WD, "weight decay rate.")
	fs.Float64Var(&c.LRDecay, "lr-decay", c.LRDecay, "decay rate of learning rate.")
	fs.IntVar(&c.LRDecayPeriod, "lr-decay-period", c.LRDecayPeriod, "period in epoch for learning rate decays. 0 uses lr-decay-epoch.")
	fs.StringVar(&c.LRDecayEpoch, "lr-decay-epoch", c.LRDecayEpoch, "epochs at which learning rate decays.")
	fs.Float64Var(&c.DropRate, "drop-rate", c.DropRate, "dropout rate for wide models.")
	fs.StringVar(&c.Mode, "mode", c.Mode, "mode in which to train the model. options are imperative, hybrid")
	fs.IntVar(&c.SavePeriod, "save-period", c.SavePeriod, "period in epoch of model saving.")
	fs.StringVar(&c.SaveDir, "save-dir", c.SaveDir, "directory of saved models")
	fs.StringVar(&c.ResumeFrom, "resume-from", c.ResumeFrom, "resume training from the model")
	fs.StringVar(&c.SavePlotDir, "save-plot-dir", c.SavePlotDir, "the path to save the history plot")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory holding the CIFAR-10 binary batches")
	fs.BoolVar(&c.Download, "download", c.Download, "download the dataset when it is missing")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed for initialisation, shuffling and augmentation")
	fs.IntVar(&c.Limit, "limit", c.Limit, "use only the first N training and test samples (0 = all)")
}

// ParseCIFAR10 registers the flags on fs, parses args on top of the
// defaults and validates the result.
func ParseCIFAR10(fs *flag.FlagSet, args []string) (CIFAR10, error) {
	c := DefaultCIFAR10()
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate verifies the config is runnable.
func (c CIFAR10) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("batch-size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumGPUs < 0 {
		return errors.Errorf("num-gpus must be >= 0 (got %d)", c.NumGPUs)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("num-epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.LR <= 0 {
		return errors.Errorf("lr must be > 0 (got %g)", c.LR)
	}
	if c.LRDecay <= 0 {
		return errors.Errorf("lr-decay must be > 0 (got %g)", c.LRDecay)
	}
	if c.LRDecayPeriod < 0 {
		return errors.Errorf("lr-decay-period must be >= 0 (got %d)", c.LRDecayPeriod)
	}
	if _, err := c.DecayEpochs(); err != nil {
		return err
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return errors.Errorf("drop-rate must be in [0, 1) (got %g)", c.DropRate)
	}
	if c.Mode != "imperative" && c.Mode != "hybrid" {
		return errors.Errorf("mode must be imperative or hybrid (got %q)", c.Mode)
	}
	if c.SavePeriod < 0 {
		return errors.Errorf("save-period must be >= 0 (got %d)", c.SavePeriod)
	}
	if c.Limit < 0 {
		return errors.Errorf("limit must be >= 0 (got %d)", c.Limit)
	}
	return nil
}

// EffectiveBatchSize scales the per-device batch size by the device count.
func (c CIFAR10) EffectiveBatchSize() int {
	return c.BatchSize * max(1, c.NumGPUs)
}

// DecayEpochs parses LRDecayEpoch.
func (c CIFAR10) DecayEpochs() ([]int, error) {
	epochs, err := opt.ParseEpochList(c.LRDecayEpoch)
	return epochs, errors.Wrap(err, "lr-decay-epoch")
}

// SavingEnabled reports whether checkpoints are written.
func (c CIFAR10) SavingEnabled() bool {
	return c.SaveDir != "" && c.SavePeriod > 0
}

// Params returns the hyperparameters to record with the experiment.
func (c CIFAR10) Params() map[string]any {
	return map[string]any{
		"batch_size":      c.EffectiveBatchSize(),
		"num_gpus":        c.NumGPUs,
		"model":           c.Model,
		"num_workers":     c.NumWorkers,
		"epochs":          c.Epochs,
		"lr":              c.LR,
		"momentum":        c.Momentum,
		"wd":              c.WD,
		"lr_decay":        c.LRDecay,
		"lr_decay_period": c.LRDecayPeriod,
		"lr_decay_epoch":  c.LRDecayEpoch,
		"drop_rate":       c.DropRate,
		"mode":            c.Mode,
		"optimizer":       "nag",
		"seed":            c.Seed,
	}
}

// MNIST configures cmd/mnist.
type MNIST struct {
	BatchSize    int
	Epochs       int
	LR           float64
	LRDecay      float64
	LRDecayEpoch string
	SavePath     string
	BestPath     string
	CSVLog       string
	DataDir      string
	Download     bool
	Seed         int64
	Limit        int
}

// DefaultMNIST returns the command defaults.
func DefaultMNIST() MNIST {
	return MNIST{
		BatchSize: 120,
		Epochs:    25,
		LR:        0.001,
		LRDecay:   0.1,
		SavePath:  "my_model.params",
		DataDir:   "data/mnist",
		Download:  true,
		Seed:      1,
	}
}

// RegisterFlags binds m to fs.
func (m *MNIST) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&m.BatchSize, "batch-size", m.BatchSize, "training batch size")
	fs.IntVar(&m.Epochs, "epochs", m.Epochs, "number of training epochs")
	fs.Float64Var(&m.LR, "lr", m.LR, "Adam learning rate")
	fs.Float64Var(&m.LRDecay, "lr-decay", m.LRDecay, "decay rate of learning rate")
	fs.StringVar(&m.LRDecayEpoch, "lr-decay-epoch", m.LRDecayEpoch, "epochs at which learning rate decays (empty disables decay)")
	fs.StringVar(&m.SavePath, "save", m.SavePath, "where to save the trained parameters (empty disables saving)")
	fs.StringVar(&m.BestPath, "checkpoint", m.BestPath, "where to save the parameters with the best val_acc (empty disables)")
	fs.StringVar(&m.CSVLog, "csv-log", m.CSVLog, "file receiving one CSV row of metrics per epoch (empty disables)")
	fs.StringVar(&m.DataDir, "data-dir", m.DataDir, "directory holding the MNIST IDX files")
	fs.BoolVar(&m.Download, "download", m.Download, "download the dataset when it is missing")
	fs.Int64Var(&m.Seed, "seed", m.Seed, "random seed")
	fs.IntVar(&m.Limit, "limit", m.Limit, "use only the first N training and test samples (0 = all)")
}

// ParseMNIST registers the flags on fs, parses args on top of the
// defaults and validates the result.
func ParseMNIST(fs *flag.FlagSet, args []string) (MNIST, error) {
	m := DefaultMNIST()
	m.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return m, err
	}
	return m, m.Validate()
}

// Validate verifies the config is runnable.
func (m MNIST) Validate() error {
	if m.BatchSize <= 0 {
		return errors.Errorf("batch-size must be > 0 (got %d)", m.BatchSize)
	}
	if m.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", m.Epochs)
	}
	if m.LR <= 0 {
		return errors.Errorf("lr must be > 0 (got %g)", m.LR)
	}
	if m.LRDecay <= 0 {
		return errors.Errorf("lr-decay must be > 0 (got %g)", m.LRDecay)
	}
	if _, err := m.DecayEpochs(); err != nil {
		return err
	}
	if m.Limit < 0 {
		return errors.Errorf("limit must be >= 0 (got %d)", m.Limit)
	}
	return nil
}

// DecayEpochs parses LRDecayEpoch.
func (m MNIST) DecayEpochs() ([]int, error) {
	epochs, err := opt.ParseEpochList(m.LRDecayEpoch)
	return epochs, errors.Wrap(err, "lr-decay-epoch")
}

// Tracking environment variables.
const (
	EnvAPIKey     = "COMET_API_KEY"
	EnvWorkspace  = "COMET_WORKSPACE"
	EnvProject    = "COMET_PROJECT_NAME"
	EnvBaseURL    = "COMET_URL_OVERRIDE"
	EnvOfflineDir = "COMET_OFFLINE_DIRECTORY"
	EnvDisable    = "COMET_DISABLE"
)

// TrackingFromEnv builds tracker options from the environment. project is
// used when COMET_PROJECT_NAME is unset. getenv is usually os.Getenv.
func TrackingFromEnv(project string, getenv func(string) string) tracking.Options {
	o := tracking.Options{
		APIKey:     strings.TrimSpace(getenv(EnvAPIKey)),
		Workspace:  getenv(EnvWorkspace),
		Project:    project,
		BaseURL:    getenv(EnvBaseURL),
		OfflineDir: getenv(EnvOfflineDir),
	}
	if p := getenv(EnvProject); p != "" {
		o.Project = p
	}
	if o.BaseURL == "" {
		o.BaseURL = tracking.DefaultBaseURL
	}
	if o.OfflineDir == "" {
		o.OfflineDir = tracking.DefaultOfflineDir
	}
	if v := getenv(EnvDisable); v != "" {
		o.Disabled, _ = strconv.ParseBool(v)
	}
	return o
}
