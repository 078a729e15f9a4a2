package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	gplot "gonum.org/v1/plot"
	"k8s.io/klog/v2"
)

// DefaultOfflineDir is used when Options.OfflineDir is empty.
const DefaultOfflineDir = ".cometml-runs"

// Message is one line of an offline experiment's messages.jsonl.
type Message struct {
	Type      string   `json:"type"`
	Name      string   `json:"name,omitempty"`
	Value     any      `json:"value,omitempty"`
	Step      *int     `json:"step,omitempty"`
	File      string   `json:"file,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Offline writes an experiment to <dir>/<key>/messages.jsonl, with images
// stored alongside.
type Offline struct {
	key string
	dir string

	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	err   error
	ended bool
}

// NewOffline creates the experiment directory and writes a start record.
func NewOffline(o Options) (*Offline, error) {
	root := o.OfflineDir
	if root == "" {
		root = DefaultOfflineDir
	}
	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := filepath.Join(root, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "offline: create experiment dir")
	}
	f, err := os.Create(filepath.Join(dir, "messages.jsonl"))
	if err != nil {
		return nil, errors.Wrap(err, "offline: create messages file")
	}
	e := &Offline{key: key, dir: dir, file: f, enc: json.NewEncoder(f)}
	e.write(Message{Type: "start", Value: map[string]string{
		"workspace":  o.Workspace,
		"project":    o.Project,
		"experiment": o.ExperimentName,
	}})
	klog.InfoS("offline experiment created", "key", key, "dir", dir)
	return e, nil
}

func (e *Offline) Key() string { return e.key }

// Dir returns the experiment directory.
func (e *Offline) Dir() string { return e.dir }

func (e *Offline) write(m Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		if e.err == nil {
			e.err = ErrEnded
		}
		return
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	if err := e.enc.Encode(m); err != nil && e.err == nil {
		e.err = errors.Wrap(err, "offline: write message")
	}
}

func (e *Offline) LogParameters(params map[string]any) {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		e.write(Message{Type: "parameter", Name: k, Value: params[k]})
	}
}

func (e *Offline) LogMetric(name string, value float64, step int) {
	e.write(Message{Type: "metric", Name: name, Value: value, Step: &step})
}

func (e *Offline) LogMetrics(metrics map[string]float64, step int) {
	for _, k := range sortedKeys(metrics) {
		e.LogMetric(k, metrics[k], step)
	}
}

func (e *Offline) LogOther(key string, value any) {
	e.write(Message{Type: "other", Name: key, Value: value})
}

func (e *Offline) AddTags(tags ...string) {
	e.write(Message{Type: "tags", Tags: tags})
}

func (e *Offline) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *Offline) LogFigure(name string, p *gplot.Plot) {
	png, err := figurePNG(name, p)
	if err != nil {
		e.fail(err)
		return
	}
	e.LogImage(name, png, 0)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (e *Offline) LogImage(name string, png []byte, step int) {
	file := fmt.Sprintf("%s-%d.png", unsafeChars.ReplaceAllString(name, "_"), step)
	if err := os.WriteFile(filepath.Join(e.dir, file), png, 0o644); err != nil {
		e.fail(errors.Wrapf(err, "offline: write image %q", name))
		return
	}
	e.write(Message{Type: "image", Name: name, File: file, Step: &step})
}

func (e *Offline) LogSystemInfo() {
	info := SystemInfo()
	for _, k := range sortedKeys(info) {
		e.LogOther("sys."+k, info[k])
	}
}

// End writes an end record and closes the messages file.
func (e *Offline) End(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return e.err
	}
	if err := e.enc.Encode(Message{Type: "end", Timestamp: time.Now().UnixMilli()}); err != nil && e.err == nil {
		e.err = errors.Wrap(err, "offline: write message")
	}
	e.ended = true
	if err := e.file.Close(); err != nil && e.err == nil {
		e.err = errors.Wrap(err, "offline: close messages file")
	}
	klog.InfoS("offline experiment saved", "dir", e.dir)
	return e.err
}

// ReadMessages loads an offline experiment's messages.
func ReadMessages(dir string) ([]Message, error) {
	f, err := os.Open(filepath.Join(dir, "messages.jsonl"))
	if err != nil {
		return nil, errors.Wrap(err, "offline: read messages")
	}
	defer f.Close()
	var out []Message
	dec := json.NewDecoder(f)
	for dec.More() {
		var m Message
		if err := dec.Decode(&m); err != nil {
			return nil, errors.Wrap(err, "offline: decode message")
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
