package config

import (
	"flag"
	"io"
	"strings"
	"testing"
)

func flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestCIFAR10Defaults(t *testing.T) {
	c, err := ParseCIFAR10(flagSet(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.BatchSize != 32 || c.Epochs != 3 || c.LR != 0.1 || c.Model != "cifar_simplecnn" {
		t.Errorf("defaults = %+v", c)
	}
	if !c.SavingEnabled() {
		t.Error("saving should be enabled by default")
	}
	epochs, err := c.DecayEpochs()
	if err != nil || len(epochs) != 2 || epochs[0] != 40 || epochs[1] != 60 {
		t.Errorf("DecayEpochs = %v, %v", epochs, err)
	}
}

func TestCIFAR10Flags(t *testing.T) {
	c, err := ParseCIFAR10(flagSet(), []string{
		"-batch-size", "16", "-num-gpus", "2", "-j", "8",
		"-lr-decay-epoch", "10,5", "-save-dir", "", "-mode", "hybrid",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.EffectiveBatchSize() != 32 {
		t.Errorf("EffectiveBatchSize = %d, want 32", c.EffectiveBatchSize())
	}
	if c.NumWorkers != 8 {
		t.Errorf("NumWorkers = %d, want 8", c.NumWorkers)
	}
	if c.SavingEnabled() {
		t.Error("saving should be disabled with an empty save-dir")
	}
	if epochs, _ := c.DecayEpochs(); epochs[0] != 5 {
		t.Errorf("epochs not sorted: %v", epochs)
	}
	if c.Params()["batch_size"] != 32 {
		t.Errorf("params batch_size = %v", c.Params()["batch_size"])
	}
}

func TestCIFAR10Invalid(t *testing.T) {
	cases := map[string][]string{
		"batch":     {"-batch-size", "0"},
		"epochs":    {"-num-epochs", "0"},
		"lr":        {"-lr", "-1"},
		"decay":     {"-lr-decay-epoch", "a,b"},
		"drop":      {"-drop-rate", "1"},
		"mode":      {"-mode", "symbolic"},
		"period":    {"-save-period", "-1"},
		"unknown":   {"-nope"},
		"gpus":      {"-num-gpus", "-2"},
		"limit":     {"-limit", "-5"},
		"decayrate": {"-lr-decay", "0"},
	}
	for name, args := range cases {
		if _, err := ParseCIFAR10(flagSet(), args); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMNIST(t *testing.T) {
	m, err := ParseMNIST(flagSet(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.BatchSize != 120 || m.Epochs != 25 || m.SavePath != "my_model.params" {
		t.Errorf("defaults = %+v", m)
	}
	m, err = ParseMNIST(flagSet(), []string{"-epochs", "2", "-limit", "100"})
	if err != nil || m.Epochs != 2 || m.Limit != 100 {
		t.Errorf("overrides = %+v, %v", m, err)
	}
	if _, err := ParseMNIST(flagSet(), []string{"-lr", "0"}); err == nil {
		t.Error("expected error for lr 0")
	}
	if _, err := ParseMNIST(flagSet(), []string{"-lr-decay-epoch", "3,3"}); err == nil {
		t.Error("expected error for duplicate decay epochs")
	}
	m, err = ParseMNIST(flagSet(), []string{"-lr-decay-epoch", "10,20"})
	if err != nil {
		t.Fatal(err)
	}
	if epochs, _ := m.DecayEpochs(); len(epochs) != 2 {
		t.Errorf("DecayEpochs = %v", epochs)
	}
}

func TestTrackingFromEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIKey:    " key ",
		EnvWorkspace: "team",
		EnvDisable:   "true",
	}
	o := TrackingFromEnv("cifar10-comet-tutorial", func(k string) string { return env[k] })
	if o.APIKey != "key" || o.Workspace != "team" || o.Project != "cifar10-comet-tutorial" {
		t.Errorf("options = %+v", o)
	}
	if !o.Disabled {
		t.Error("COMET_DISABLE=true should disable tracking")
	}
	if !strings.HasPrefix(o.BaseURL, "https://") || o.OfflineDir == "" {
		t.Errorf("defaults not applied: %+v", o)
	}

	env[EnvProject] = "custom"
	env[EnvDisable] = "0"
	o = TrackingFromEnv("x", func(k string) string { return env[k] })
	if o.Project != "custom" || o.Disabled {
		t.Errorf("options = %+v", o)
	}
}

func TestParseRegistersOnFlagSet(t *testing.T) {
	fs := flagSet()
	if _, err := ParseCIFAR10(fs, []string{"-j", "2"}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"batch-size", "num-data-workers", "j", "lr-decay-epoch", "save-plot-dir"} {
		if fs.Lookup(name) == nil {
			t.Errorf("flag %s not registered", name)
		}
	}
}
