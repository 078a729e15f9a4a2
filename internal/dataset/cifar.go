package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	cifarImageSize = 32
	cifarChannels  = 3
	cifarRecord    = 1 + cifarChannels*cifarImageSize*cifarImageSize // label byte + RGB planes

	// CIFAR10BatchDir is the directory the binary archive unpacks to.
	CIFAR10BatchDir = "cifar-10-batches-bin"
)

// CIFAR10Classes are the class names in label order.
var CIFAR10Classes = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// LoadCIFAR10 reads the binary version of CIFAR-10. The batch files
// (data_batch_1.bin … data_batch_5.bin, test_batch.bin) are looked up in dir
// and then in dir/cifar-10-batches-bin.
func LoadCIFAR10(dir string, train bool) (*Dataset, error) {
	files := []string{"test_batch.bin"}
	if train {
		files = files[:0]
		for i := 1; i <= 5; i++ {
			files = append(files, fmt.Sprintf("data_batch_%d.bin", i))
		}
	}

	root := dir
	if _, err := os.Stat(filepath.Join(root, files[0])); err != nil {
		root = filepath.Join(dir, CIFAR10BatchDir)
	}

	ds := &Dataset{
		Name:    "cifar10",
		Shape:   Shape{C: cifarChannels, H: cifarImageSize, W: cifarImageSize},
		Classes: CIFAR10Classes,
	}
	for _, name := range files {
		if err := ds.readCIFARBatch(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}
	return ds, ds.validate()
}

func (d *Dataset) readCIFARBatch(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open cifar batch")
	}
	defer f.Close()
	return errors.Wrapf(d.decodeCIFAR(bufio.NewReader(f)), "read %s", path)
}

// decodeCIFAR appends every record in r. The image bytes are already in
// CHW order: 1024 red, then green, then blue values.
func (d *Dataset) decodeCIFAR(r io.Reader) error {
	for {
		rec := make([]byte, cifarRecord)
		_, err := io.ReadFull(r, rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "truncated record")
		}
		d.Labels = append(d.Labels, int(rec[0]))
		d.Images = append(d.Images, rec[1:])
	}
}
