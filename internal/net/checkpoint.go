package net

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const checkpointMagic = "neurontrack/params/v1"

// checkpoint is the on-disk parameter file. Only parameters are stored: the
// architecture is rebuilt by name and the file is loaded into it, the way
// Gluon's save_parameters/load_parameters pair works.
type checkpoint struct {
	Magic  string
	Model  string
	Sizes  []int
	Params []float64
}

// Save writes the network parameters to path. The file is written to a
// temporary name in the same directory and renamed into place.
func (n *Network) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".params-*")
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	defer os.Remove(tmp.Name())

	if err := n.Encode(tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write checkpoint %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close checkpoint %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "save checkpoint %s", path)
}

// Load reads parameters saved by Save into n. The layer count and every
// layer's parameter count must match.
func (n *Network) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()
	return errors.Wrapf(n.Decode(f), "load checkpoint %s", path)
}

// Encode writes the network parameters to w using gob encoding.
func (n *Network) Encode(w io.Writer) error {
	cp := checkpoint{
		Magic: checkpointMagic,
		Model: n.name,
		Sizes: make([]int, len(n.layers)),
	}
	for i, l := range n.layers {
		p := l.Params()
		cp.Sizes[i] = len(p)
		cp.Params = append(cp.Params, p...)
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(&cp), "encode params")
}

// Decode reads parameters written by Encode into n.
func (n *Network) Decode(r io.Reader) error {
	var cp checkpoint
	if err := gob.NewDecoder(r).Decode(&cp); err != nil {
		return errors.Wrap(err, "decode params")
	}
	if cp.Magic != checkpointMagic {
		return errors.Errorf("not a parameter file (magic %q)", cp.Magic)
	}
	if len(cp.Sizes) != len(n.layers) {
		return errors.Errorf("model %q has %d layers, file (%q) has %d",
			n.name, len(n.layers), cp.Model, len(cp.Sizes))
	}
	total := 0
	for i, l := range n.layers {
		if want := len(l.Params()); cp.Sizes[i] != want {
			return errors.Errorf("layer %d: %d params in file, model expects %d", i, cp.Sizes[i], want)
		}
		total += cp.Sizes[i]
	}
	if total != len(cp.Params) {
		return errors.Errorf("parameter data has %d values, want %d", len(cp.Params), total)
	}

	offset := 0
	for _, l := range n.layers {
		p := l.Params()
		copy(p, cp.Params[offset:offset+len(p)])
		offset += len(p)
	}
	return nil
}
