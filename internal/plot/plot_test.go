package plot

import (
	"bytes"
	"image/png"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestConfusionMatrixRenders(t *testing.T) {
	cm := mat.NewDense(3, 3, []float64{
		0.8, 0.1, 0.1,
		0.2, 0.7, 0.1,
		0.0, 0.3, 0.7,
	})
	p, err := ConfusionMatrix(cm, []string{"a", "b", "c"}, true, "Confusion matrix")
	if err != nil {
		t.Fatalf("ConfusionMatrix: %v", err)
	}
	if p.Title.Text != "Confusion matrix" || p.Y.Label.Text != "True label" {
		t.Errorf("unexpected labels: %q %q", p.Title.Text, p.Y.Label.Text)
	}

	var buf bytes.Buffer
	if err := EncodePNG(p, &buf); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		t.Errorf("empty image %v", b)
	}
}

func TestConfusionMatrixValidates(t *testing.T) {
	if _, err := ConfusionMatrix(mat.NewDense(2, 3, nil), []string{"a", "b"}, false, ""); err == nil {
		t.Error("expected error for non-square matrix")
	}
	if _, err := ConfusionMatrix(mat.NewDense(2, 2, nil), []string{"a"}, false, ""); err == nil {
		t.Error("expected error for label count mismatch")
	}
}

func TestConfusionMatrixAllZero(t *testing.T) {
	p, err := ConfusionMatrix(mat.NewDense(2, 2, nil), []string{"x", "y"}, false, "empty")
	if err != nil {
		t.Fatalf("ConfusionMatrix: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodePNG(p, &buf); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
}

func TestHistory(t *testing.T) {
	p, err := History(map[string][]float64{
		"train": {0.3, 0.5, 0.6},
		"val":   {0.25, 0.45, 0.55},
	}, "accuracy", "acc")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	path := filepath.Join(t.TempDir(), "history.png")
	if err := Save(p, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := History(nil, "", ""); err == nil {
		t.Error("expected error for no series")
	}
}

func TestCellText(t *testing.T) {
	if got := cellText(0.456, true); got != "0.46" {
		t.Errorf("cellText normalized = %q", got)
	}
	if got := cellText(12, false); got != "12" {
		t.Errorf("cellText counts = %q", got)
	}
}
