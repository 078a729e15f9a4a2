// Package tracking records training runs in an experiment tracker.
//
// An Experiment buffers parameters, metrics, figures and free-form values.
// The Comet implementation ships them to the Comet REST API from a background
// goroutine, Offline writes them to disk and Noop drops them. Logging never
// blocks training on the network: failures are logged and the first one is
// returned by End.
package tracking

import (
	"bytes"
	"context"
	"net/http"

	"github.com/pkg/errors"
	gplot "gonum.org/v1/plot"
	"k8s.io/klog/v2"

	"github.com/FlavioCFOliveira/neurontrack/internal/plot"
)

// Experiment is one tracked run.
type Experiment interface {
	Key() string
	LogParameters(params map[string]any)
	LogMetric(name string, value float64, step int)
	LogMetrics(metrics map[string]float64, step int)
	LogOther(key string, value any)
	AddTags(tags ...string)
	LogFigure(name string, p *gplot.Plot)
	LogImage(name string, png []byte, step int)
	LogSystemInfo()
	End(ctx context.Context) error
}

// DefaultBaseURL is the Comet REST endpoint.
const DefaultBaseURL = "https://www.comet.com/api/rest/v2"

// Options selects and configures an Experiment.
type Options struct {
	APIKey         string
	Workspace      string
	Project        string
	ExperimentName string
	BaseURL        string
	OfflineDir     string
	Disabled       bool
	Tags           []string

	HTTPClient *http.Client
}

// New returns a no-op experiment when tracking is disabled, an offline one
// when there is no API key and a Comet experiment otherwise.
func New(ctx context.Context, o Options) (Experiment, error) {
	var (
		exp Experiment
		err error
	)
	switch {
	case o.Disabled:
		klog.InfoS("experiment tracking disabled")
		return Noop{}, nil
	case o.APIKey == "":
		klog.InfoS("no API key set, logging experiment offline", "dir", o.OfflineDir)
		exp, err = NewOffline(o)
	default:
		exp, err = NewComet(ctx, o)
	}
	if err != nil {
		return nil, err
	}
	if len(o.Tags) > 0 {
		exp.AddTags(o.Tags...)
	}
	return exp, nil
}

func figurePNG(name string, p *gplot.Plot) ([]byte, error) {
	var buf bytes.Buffer
	if err := plot.EncodePNG(p, &buf); err != nil {
		return nil, errors.Wrapf(err, "render figure %q", name)
	}
	return buf.Bytes(), nil
}

// Noop discards everything.
type Noop struct{}

func (Noop) Key() string                        { return "" }
func (Noop) LogParameters(map[string]any)       {}
func (Noop) LogMetric(string, float64, int)     {}
func (Noop) LogMetrics(map[string]float64, int) {}
func (Noop) LogOther(string, any)               {}
func (Noop) AddTags(...string)                  {}
func (Noop) LogFigure(string, *gplot.Plot)      {}
func (Noop) LogImage(string, []byte, int)       {}
func (Noop) LogSystemInfo()                     {}
func (Noop) End(context.Context) error          { return nil }
