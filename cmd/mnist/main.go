// Command mnist trains a small multilayer perceptron on MNIST with the
// Keras-style Fit loop and reports the run to Comet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/config"
	"github.com/FlavioCFOliveira/neurontrack/internal/dataset"
	"github.com/FlavioCFOliveira/neurontrack/internal/loss"
	"github.com/FlavioCFOliveira/neurontrack/internal/net"
	"github.com/FlavioCFOliveira/neurontrack/internal/opt"
	"github.com/FlavioCFOliveira/neurontrack/internal/tracking"
	"github.com/FlavioCFOliveira/neurontrack/internal/zoo"
)

const project = "mnist-comet-tutorial"

func main() {
	klog.InitFlags(nil)
	cfg, err := config.ParseMNIST(flag.CommandLine, os.Args[1:])
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

func run(ctx context.Context, cfg config.MNIST) error {
	if cfg.Download {
		if err := dataset.EnsureMNIST(ctx, nil, cfg.DataDir); err != nil {
			return err
		}
	}
	trainSet, err := dataset.LoadMNIST(cfg.DataDir, true)
	if err != nil {
		return err
	}
	testSet, err := dataset.LoadMNIST(cfg.DataDir, false)
	if err != nil {
		return err
	}
	xTrain, yTrain := trainSet.Head(cfg.Limit).Tensors()
	xTest, yTest := testSet.Head(cfg.Limit).Tensors()
	fmt.Println(len(xTrain), "train samples")
	fmt.Println(len(xTest), "test samples")

	layers, err := zoo.Get("mnist_mlp", zoo.Options{Classes: len(dataset.MNISTClasses), Seed: cfg.Seed})
	if err != nil {
		return err
	}
	adam := opt.NewAdam(cfg.LR)
	model := net.NewSequential("mnist_mlp", layers...)
	model.Compile(adam, loss.SoftmaxCrossEntropy{})
	model.Summary(os.Stdout)

	exp, err := tracking.New(ctx, config.TrackingFromEnv(project, os.Getenv))
	if err != nil {
		return err
	}
	defer func() {
		endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := exp.End(endCtx); err != nil {
			klog.ErrorS(err, "experiment upload incomplete", "key", exp.Key())
		}
	}()
	exp.LogSystemInfo()

	callbacks := []net.Callback{
		net.Logger{},
		tracking.NewKerasCallback(exp, map[string]any{
			"batch_size":     cfg.BatchSize,
			"epochs":         cfg.Epochs,
			"lr_decay_epoch": cfg.LRDecayEpoch,
		}),
	}
	decay, err := cfg.DecayEpochs()
	if err != nil {
		return err
	}
	if len(decay) > 0 {
		callbacks = append(callbacks, net.NewSchedulerCallback(opt.NewMultiStepDecay(adam, cfg.LRDecay, 0, decay)))
	}
	if cfg.BestPath != "" {
		callbacks = append(callbacks, net.NewModelCheckpoint(cfg.BestPath, "val_acc"))
	}
	if cfg.CSVLog != "" {
		callbacks = append(callbacks, net.NewCSVLogger(cfg.CSVLog, false))
	}

	_, err = model.Fit(ctx, xTrain, yTrain, net.FitConfig{
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Seed:      cfg.Seed,
		ValX:      xTest,
		ValY:      yTest,
	}, callbacks...)
	if err != nil {
		return err
	}

	testLoss, testAcc := model.Evaluate(xTest, yTest)
	klog.InfoS("Score", "loss", testLoss, "accuracy", testAcc)
	exp.LogMetrics(map[string]float64{"test_loss": testLoss, "test_accuracy": testAcc}, cfg.Epochs)
	exp.LogOther("Score", []float64{testLoss, testAcc})

	if cfg.SavePath != "" {
		if err := model.Save(cfg.SavePath); err != nil {
			return err
		}
		klog.InfoS("model saved", "file", cfg.SavePath)
	}
	return nil
}
