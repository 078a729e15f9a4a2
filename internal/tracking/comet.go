package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	gplot "gonum.org/v1/plot"
	"k8s.io/klog/v2"
)

const maxRetries = 5

var queueSize = 1024

var (
	// ErrEnded is recorded when something is logged after End.
	ErrEnded = errors.New("experiment already ended")
	// ErrQueueFull is recorded when a write is dropped because the sender
	// has fallen behind.
	ErrQueueFull = errors.New("experiment queue full, data dropped")
)

type cometRequest struct {
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// Comet logs to the Comet REST API.
type Comet struct {
	client  *http.Client
	baseURL string
	apiKey  string
	key     string
	link    string

	queue  chan cometRequest
	done   chan struct{}
	cancel context.CancelFunc

	closeMu sync.RWMutex
	ended   bool

	errMu  sync.Mutex
	err    error
	failed int
}

type createResponse struct {
	ExperimentKey string `json:"experimentKey"`
	Link          string `json:"link"`
}

// NewComet registers a new experiment and starts the sender goroutine.
func NewComet(ctx context.Context, o Options) (*Comet, error) {
	if o.APIKey == "" {
		return nil, errors.New("comet: API key is required")
	}
	c := &Comet{
		client:  o.HTTPClient,
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		apiKey:  o.APIKey,
		queue:   make(chan cometRequest, queueSize),
		done:    make(chan struct{}),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	body, _ := json.Marshal(map[string]string{
		"workspaceName":  o.Workspace,
		"projectName":    o.Project,
		"experimentName": o.ExperimentName,
	})
	var resp createResponse
	err := c.do(ctx, cometRequest{path: "/write/experiment/create", body: body, contentType: "application/json"}, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "comet: create experiment")
	}
	if resp.ExperimentKey == "" {
		return nil, errors.New("comet: create experiment returned no key")
	}
	c.key, c.link = resp.ExperimentKey, resp.Link
	klog.InfoS("comet experiment created", "key", c.key, "link", c.link)

	sendCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(sendCtx)
	return c, nil
}

func (c *Comet) Key() string { return c.key }

// Link returns the experiment URL reported by the server.
func (c *Comet) Link() string { return c.link }

func (c *Comet) run(ctx context.Context) {
	defer close(c.done)
	for req := range c.queue {
		if err := c.do(ctx, req, nil); err != nil {
			klog.ErrorS(err, "comet: request failed", "path", req.path)
			c.record(err)
		}
	}
}

func (c *Comet) record(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
	c.failed++
}

// enqueue never blocks: when the queue is full the request is dropped.
func (c *Comet) enqueue(req cometRequest) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.ended {
		c.record(ErrEnded)
		return
	}
	select {
	case c.queue <- req:
	default:
		klog.V(1).InfoS("comet: queue full, dropping request", "path", req.path)
		c.record(ErrQueueFull)
	}
}

func (c *Comet) postJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		c.record(errors.Wrapf(err, "comet: encode %s", path))
		return
	}
	c.enqueue(cometRequest{path: path, body: body, contentType: "application/json"})
}

// do sends one request, retrying transient failures. 4xx responses other
// than 429 are permanent.
func (c *Comet) do(ctx context.Context, req cometRequest, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Minute
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)

	op := func() error {
		u := c.baseURL + req.path
		if len(req.query) > 0 {
			u += "?" + req.query.Encode()
		}
		hr, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.body))
		if err != nil {
			return backoff.Permanent(err)
		}
		hr.Header.Set("Authorization", c.apiKey)
		hr.Header.Set("Content-Type", req.contentType)

		resp, err := c.client.Do(hr)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := errors.Errorf("%s: %s %s", req.path, resp.Status, strings.TrimSpace(string(msg)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errors.Wrapf(err, "%s: decode response", req.path))
		}
		return nil
	}
	return backoff.Retry(op, policy)
}

func now() int64 { return time.Now().UnixMilli() }

func (c *Comet) LogParameters(params map[string]any) {
	for name, v := range params {
		c.postJSON("/write/experiment/parameter", map[string]any{
			"experimentKey":  c.key,
			"parameterName":  name,
			"parameterValue": fmt.Sprint(v),
			"timestamp":      now(),
		})
	}
}

func (c *Comet) LogMetric(name string, value float64, step int) {
	c.postJSON("/write/experiment/metric", map[string]any{
		"experimentKey": c.key,
		"metricName":    name,
		"metricValue":   strconv.FormatFloat(value, 'g', -1, 64),
		"step":          step,
		"timestamp":     now(),
	})
}

func (c *Comet) LogMetrics(metrics map[string]float64, step int) {
	for _, name := range sortedKeys(metrics) {
		c.LogMetric(name, metrics[name], step)
	}
}

func (c *Comet) LogOther(key string, value any) {
	c.postJSON("/write/experiment/log-other", map[string]any{
		"experimentKey": c.key,
		"key":           key,
		"value":         fmt.Sprint(value),
		"timestamp":     now(),
	})
}

func (c *Comet) AddTags(tags ...string) {
	c.postJSON("/write/experiment/tags", map[string]any{
		"experimentKey": c.key,
		"addedTags":     tags,
	})
}

func (c *Comet) LogFigure(name string, p *gplot.Plot) {
	png, err := figurePNG(name, p)
	if err != nil {
		c.record(err)
		return
	}
	c.LogImage(name, png, 0)
}

func (c *Comet) LogImage(name string, png []byte, step int) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name+".png")
	if err == nil {
		_, err = fw.Write(png)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		c.record(errors.Wrapf(err, "comet: encode image %q", name))
		return
	}
	c.enqueue(cometRequest{
		path: "/write/experiment/image",
		query: url.Values{
			"experimentKey": {c.key},
			"figName":       {name},
			"step":          {strconv.Itoa(step)},
		},
		body:        body.Bytes(),
		contentType: mw.FormDataContentType(),
	})
}

func (c *Comet) LogSystemInfo() {
	info := SystemInfo()
	for _, k := range sortedKeys(info) {
		c.LogOther("sys."+k, info[k])
	}
}

// End stops accepting new data, waits for the queue to drain and returns
// the first error seen. If ctx expires first, pending requests are dropped.
func (c *Comet) End(ctx context.Context) error {
	c.closeMu.Lock()
	if !c.ended {
		c.ended = true
		close(c.queue)
	}
	c.closeMu.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		c.cancel()
		<-c.done
		c.record(errors.Wrap(ctx.Err(), "comet: queue not drained"))
	}
	c.cancel()

	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.failed > 0 {
		klog.InfoS("comet experiment ended with failures", "key", c.key, "failed", c.failed)
	} else {
		klog.InfoS("comet experiment ended", "key", c.key, "link", c.link)
	}
	return c.err
}
