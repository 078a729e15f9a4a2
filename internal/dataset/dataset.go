// Package dataset loads the MNIST and CIFAR-10 image sets and feeds them to
// training loops in batches.
package dataset

import "github.com/pkg/errors"

// Shape is the channel, height and width of one image.
type Shape struct {
	C, H, W int
}

// Size returns C*H*W.
func (s Shape) Size() int { return s.C * s.H * s.W }

// Dataset is an in-memory labelled image set. Pixels are kept as bytes in
// CHW order and converted to [0, 1] floats on demand.
type Dataset struct {
	Name    string
	Shape   Shape
	Classes []string
	Images  [][]byte
	Labels  []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Images) }

// Sample returns image i scaled to [0, 1].
func (d *Dataset) Sample(i int) []float64 {
	raw := d.Images[i]
	out := make([]float64, len(raw))
	for j, b := range raw {
		out[j] = float64(b) / 255
	}
	return out
}

// Tensors converts the whole set to floats, for callers that train on
// plain slices.
func (d *Dataset) Tensors() ([][]float64, []int) {
	x := make([][]float64, d.Len())
	for i := range x {
		x[i] = d.Sample(i)
	}
	return x, append([]int(nil), d.Labels...)
}

// Head returns a view of the first n samples. n <= 0 or n >= Len returns d.
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n >= d.Len() {
		return d
	}
	cp := *d
	cp.Images = d.Images[:n]
	cp.Labels = d.Labels[:n]
	return &cp
}

func (d *Dataset) validate() error {
	if len(d.Images) != len(d.Labels) {
		return errors.Errorf("%s: %d images but %d labels", d.Name, len(d.Images), len(d.Labels))
	}
	for i, l := range d.Labels {
		if l < 0 || l >= len(d.Classes) {
			return errors.Errorf("%s: sample %d has label %d outside [0,%d)", d.Name, i, l, len(d.Classes))
		}
	}
	return nil
}
