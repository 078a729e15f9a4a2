package dataset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Download locations.
var (
	MNISTBaseURL  = "https://ossci-datasets.s3.amazonaws.com/mnist/"
	CIFAR10URL    = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	FetchAttempts = uint64(4)
)

// Fetch downloads url into dst. Transient failures (network errors, 5xx and
// 429 responses) are retried with exponential backoff; other HTTP errors are
// returned at once. dst is only created once the whole body has arrived.
func Fetch(ctx context.Context, client *http.Client, url, dst string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "create download dir")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, FetchAttempts-1), ctx)

	op := func() error { return fetchOnce(ctx, client, url, dst) }
	notify := func(err error, wait time.Duration) {
		klog.InfoS("download failed, retrying", "url", url, "err", err, "wait", wait)
	}
	return errors.Wrapf(backoff.RetryNotify(op, policy, notify), "fetch %s", url)
}

func fetchOnce(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := errors.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		return backoff.Permanent(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(err)
	}
	return os.Rename(tmp.Name(), dst)
}

// EnsureMNIST downloads any missing MNIST file into dir.
func EnsureMNIST(ctx context.Context, client *http.Client, dir string) error {
	for _, name := range []string{MNISTTrainImages, MNISTTrainLabels, MNISTTestImages, MNISTTestLabels} {
		if exists(filepath.Join(dir, name)) || exists(filepath.Join(dir, name+".gz")) {
			continue
		}
		klog.InfoS("downloading", "dataset", "mnist", "file", name)
		if err := Fetch(ctx, client, MNISTBaseURL+name+".gz", filepath.Join(dir, name+".gz")); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCIFAR10 downloads and unpacks the CIFAR-10 binary archive into dir
// unless the batch files are already present.
func EnsureCIFAR10(ctx context.Context, client *http.Client, dir string) error {
	if exists(filepath.Join(dir, "test_batch.bin")) ||
		exists(filepath.Join(dir, CIFAR10BatchDir, "test_batch.bin")) {
		return nil
	}
	archive := filepath.Join(dir, "cifar-10-binary.tar.gz")
	if !exists(archive) {
		klog.InfoS("downloading", "dataset", "cifar10", "url", CIFAR10URL)
		if err := Fetch(ctx, client, CIFAR10URL, archive); err != nil {
			return err
		}
	}
	f, err := os.Open(archive)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer f.Close()
	return errors.Wrap(extractTarGz(f, dir), "extract cifar10")
}

// extractTarGz unpacks regular files and directories from r under dir.
// Entries that would land outside dir are rejected.
func extractTarGz(r io.Reader, dir string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, hdr.Name)
		rel, err := filepath.Rel(dir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return errors.Errorf("archive entry %q escapes %s", hdr.Name, dir)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
