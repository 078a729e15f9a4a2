package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Transform maps one CHW image to another. Implementations must only use
// rng for randomness so that batches are reproducible.
type Transform interface {
	Apply(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape)

func (f TransformFunc) Apply(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape) {
	return f(img, s, rng)
}

// Compose applies transforms in order.
type Compose []Transform

func (c Compose) Apply(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape) {
	for _, t := range c {
		img, s = t.Apply(img, s, rng)
	}
	return img, s
}

// Normalize subtracts a per-channel mean and divides by a per-channel std.
type Normalize struct {
	Mean, Std []float64
}

// NewNormalize checks that mean and std have one positive-std entry per channel.
func NewNormalize(mean, std []float64) (Normalize, error) {
	if len(mean) != len(std) || len(mean) == 0 {
		return Normalize{}, errors.Errorf("normalize: %d means and %d stds", len(mean), len(std))
	}
	for c, s := range std {
		if s <= 0 {
			return Normalize{}, errors.Errorf("normalize: std[%d] = %g", c, s)
		}
	}
	return Normalize{Mean: mean, Std: std}, nil
}

func (n Normalize) Apply(img []float64, s Shape, _ *rand.Rand) ([]float64, Shape) {
	plane := s.H * s.W
	for c := 0; c < s.C; c++ {
		m, sd := n.Mean[c%len(n.Mean)], n.Std[c%len(n.Std)]
		for i := c * plane; i < (c+1)*plane; i++ {
			img[i] = (img[i] - m) / sd
		}
	}
	return img, s
}

// RandomCrop pads the image with Pad zeros on every side and takes a random
// Size x Size window.
type RandomCrop struct {
	Size int
	Pad  int
}

func (rc RandomCrop) Apply(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape) {
	ph, pw := s.H+2*rc.Pad, s.W+2*rc.Pad
	if rc.Size > ph || rc.Size > pw {
		return img, s
	}
	y0 := rng.Intn(ph - rc.Size + 1)
	x0 := rng.Intn(pw - rc.Size + 1)

	out := Shape{C: s.C, H: rc.Size, W: rc.Size}
	dst := make([]float64, out.Size())
	for c := 0; c < s.C; c++ {
		for y := 0; y < rc.Size; y++ {
			sy := y0 + y - rc.Pad
			if sy < 0 || sy >= s.H {
				continue
			}
			for x := 0; x < rc.Size; x++ {
				sx := x0 + x - rc.Pad
				if sx < 0 || sx >= s.W {
					continue
				}
				dst[(c*rc.Size+y)*rc.Size+x] = img[(c*s.H+sy)*s.W+sx]
			}
		}
	}
	return dst, out
}

// RandomFlipLeftRight mirrors the image horizontally with probability 0.5.
type RandomFlipLeftRight struct{}

func (RandomFlipLeftRight) Apply(img []float64, s Shape, rng *rand.Rand) ([]float64, Shape) {
	if rng.Intn(2) == 0 {
		return img, s
	}
	for c := 0; c < s.C; c++ {
		for y := 0; y < s.H; y++ {
			row := img[(c*s.H+y)*s.W : (c*s.H+y+1)*s.W]
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
	return img, s
}

// CIFAR10Mean and CIFAR10Std are the usual per-channel statistics.
var (
	CIFAR10Mean = []float64{0.4914, 0.4822, 0.4465}
	CIFAR10Std  = []float64{0.2023, 0.1994, 0.2010}
)

// CIFAR10Train is the augmentation pipeline used for training.
func CIFAR10Train() Transform {
	return Compose{
		RandomCrop{Size: 32, Pad: 4},
		RandomFlipLeftRight{},
		Normalize{Mean: CIFAR10Mean, Std: CIFAR10Std},
	}
}

// CIFAR10Test only normalizes.
func CIFAR10Test() Transform {
	return Normalize{Mean: CIFAR10Mean, Std: CIFAR10Std}
}

// ChannelStats estimates the per-channel mean and standard deviation of the
// first n images (all of them when n <= 0), in [0, 1] pixel units.
func ChannelStats(d *Dataset, n int) (mean, std []float64) {
	d = d.Head(n)
	plane := d.Shape.H * d.Shape.W
	mean = make([]float64, d.Shape.C)
	std = make([]float64, d.Shape.C)
	if d.Len() == 0 {
		return mean, std
	}
	values := make([]float64, d.Len()*plane)
	for c := 0; c < d.Shape.C; c++ {
		for i, img := range d.Images {
			for j, b := range img[c*plane : (c+1)*plane] {
				values[i*plane+j] = float64(b) / 255
			}
		}
		mean[c], std[c] = stat.PopMeanStdDev(values, nil)
	}
	return mean, std
}
