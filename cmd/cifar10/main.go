// Command cifar10 trains a model-zoo classifier on CIFAR-10 and reports
// the run to Comet.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/config"
	"github.com/FlavioCFOliveira/neurontrack/internal/dataset"
	"github.com/FlavioCFOliveira/neurontrack/internal/loss"
	"github.com/FlavioCFOliveira/neurontrack/internal/net"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
	"github.com/FlavioCFOliveira/neurontrack/internal/tracking"
	"github.com/FlavioCFOliveira/neurontrack/internal/trainer"
	"github.com/FlavioCFOliveira/neurontrack/internal/zoo"
)

const project = "cifar10-comet-tutorial"

func main() {
	klog.InitFlags(nil)
	cfg, err := config.ParseCIFAR10(flag.CommandLine, os.Args[1:])
	if err != nil {
		klog.Fatalf("invalid options: %v", err)
	}
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		klog.ErrorS(err, "training failed")
		klog.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.CIFAR10) error {
	klog.InfoS("options", "config", cfg)
	if cfg.NumGPUs > 0 {
		klog.InfoS("GPUs requested but training runs on the CPU", "num_gpus", cfg.NumGPUs)
	}
	if cfg.Mode == "hybrid" {
		klog.V(1).InfoS("hybrid mode has no separate graph compilation step")
	}

	saveDir := cfg.SaveDir
	if !cfg.SavingEnabled() {
		saveDir = ""
	}

	if cfg.Download {
		if err := dataset.EnsureCIFAR10(ctx, nil, cfg.DataDir); err != nil {
			return err
		}
	}
	trainSet, err := dataset.LoadCIFAR10(cfg.DataDir, true)
	if err != nil {
		return err
	}
	testSet, err := dataset.LoadCIFAR10(cfg.DataDir, false)
	if err != nil {
		return err
	}
	trainSet, testSet = trainSet.Head(cfg.Limit), testSet.Head(cfg.Limit)
	klog.InfoS("dataset loaded", "train", trainSet.Len(), "test", testSet.Len())

	layers, err := zoo.Get(cfg.Model, zoo.Options{Classes: len(dataset.CIFAR10Classes), DropRate: cfg.DropRate, Seed: cfg.Seed})
	if err != nil {
		return err
	}
	optimizer, err := opt.New("nag", opt.Settings{LearningRate: cfg.LR, Momentum: cfg.Momentum, WeightDecay: cfg.WD})
	if err != nil {
		return err
	}
	model := net.New(cfg.Model, layers, loss.SoftmaxCrossEntropy{}, optimizer)
	if cfg.ResumeFrom != "" {
		if err := model.Load(cfg.ResumeFrom); err != nil {
			return errors.Wrap(err, "resume")
		}
		klog.InfoS("resumed", "from", cfg.ResumeFrom)
	}
	model.Summary(os.Stdout)

	decay, err := cfg.DecayEpochs()
	if err != nil {
		return err
	}
	sched := opt.NewMultiStepDecay(optimizer, cfg.LRDecay, cfg.LRDecayPeriod, decay)

	exp, err := tracking.New(ctx, config.TrackingFromEnv(project, os.Getenv))
	if err != nil {
		return err
	}
	exp.LogParameters(cfg.Params())
	exp.LogSystemInfo()
	mean, std := dataset.ChannelStats(trainSet, 1000)
	exp.LogOther("train_channel_mean", mean)
	exp.LogOther("train_channel_std", std)

	batchSize := cfg.EffectiveBatchSize()
	train := dataset.NewLoader(trainSet, dataset.LoaderOptions{
		BatchSize:  batchSize,
		Shuffle:    true,
		DropLast:   true,
		NumWorkers: cfg.NumWorkers,
		Transform:  dataset.CIFAR10Train(),
		Seed:       cfg.Seed,
	})
	val := dataset.NewLoader(testSet, dataset.LoaderOptions{
		BatchSize:  batchSize,
		NumWorkers: cfg.NumWorkers,
		Transform:  dataset.CIFAR10Test(),
	})

	res, runErr := trainer.Run(ctx, trainer.RunConfig{
		Model:      cfg.Model,
		Epochs:     cfg.Epochs,
		SaveDir:    saveDir,
		SavePeriod: cfg.SavePeriod,
		PlotDir:    cfg.SavePlotDir,
		Classes:    dataset.CIFAR10Classes,
	}, model, sched, train, val, exp)

	endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := exp.End(endCtx); err != nil {
		klog.ErrorS(err, "experiment upload incomplete", "key", exp.Key())
	}
	if runErr != nil {
		return runErr
	}
	klog.InfoS("training finished", "best_val_acc", res.BestValAcc, "checkpoints", len(res.Checkpoints))
	return nil
}
