package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	mnistImageMagic = 2051
	mnistLabelMagic = 2049
)

// MNIST file names, as published.
const (
	MNISTTrainImages = "train-images-idx3-ubyte"
	MNISTTrainLabels = "train-labels-idx1-ubyte"
	MNISTTestImages  = "t10k-images-idx3-ubyte"
	MNISTTestLabels  = "t10k-labels-idx1-ubyte"
)

// MNISTClasses are the digit names.
var MNISTClasses = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

// LoadMNIST reads the train or test split from dir. Each IDX file may be
// stored raw or gzip compressed with a ".gz" suffix.
func LoadMNIST(dir string, train bool) (*Dataset, error) {
	imgName, lblName := MNISTTestImages, MNISTTestLabels
	if train {
		imgName, lblName = MNISTTrainImages, MNISTTrainLabels
	}

	images, shape, err := readIDXImages(filepath.Join(dir, imgName))
	if err != nil {
		return nil, err
	}
	labels, err := readIDXLabels(filepath.Join(dir, lblName))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Name:    "mnist",
		Shape:   shape,
		Classes: MNISTClasses,
		Images:  images,
		Labels:  labels,
	}
	return ds, ds.validate()
}

// openMaybeGzip opens path, falling back to path+".gz".
func openMaybeGzip(path string) (io.ReadCloser, error) {
	if f, err := os.Open(path); err == nil {
		return f, nil
	}
	f, err := os.Open(path + ".gz")
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "gunzip %s.gz", path)
	}
	return struct {
		io.Reader
		io.Closer
	}{zr, f}, nil
}

func readIDXImages(path string) ([][]byte, Shape, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, Shape{}, err
	}
	defer rc.Close()
	return decodeIDXImages(bufio.NewReader(rc))
}

func decodeIDXImages(r io.Reader) ([][]byte, Shape, error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, Shape{}, errors.Wrap(err, "read idx image header")
	}
	if hdr[0] != mnistImageMagic {
		return nil, Shape{}, errors.Errorf("bad idx image magic %d", hdr[0])
	}
	n, rows, cols := int(hdr[1]), int(hdr[2]), int(hdr[3])
	shape := Shape{C: 1, H: rows, W: cols}

	buf := make([]byte, n*shape.Size())
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, Shape{}, errors.Wrap(err, "read idx images")
	}
	images := make([][]byte, n)
	for i := range images {
		images[i] = buf[i*shape.Size() : (i+1)*shape.Size()]
	}
	return images, shape, nil
}

func readIDXLabels(path string) ([]int, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return decodeIDXLabels(bufio.NewReader(rc))
}

func decodeIDXLabels(r io.Reader) ([]int, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read idx label header")
	}
	if hdr[0] != mnistLabelMagic {
		return nil, errors.Errorf("bad idx label magic %d", hdr[0])
	}
	raw := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "read idx labels")
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}
