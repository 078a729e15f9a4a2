// Package metric provides evaluation metrics for classifiers.
package metric

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Accuracy is a running classification accuracy.
type Accuracy struct {
	correct, total int
}

// Update adds a batch of labels and predictions.
func (a *Accuracy) Update(labels, preds []int) {
	for i := range labels {
		if labels[i] == preds[i] {
			a.correct++
		}
	}
	a.total += len(labels)
}

// Get returns the metric name and its current value; 0 before any update.
func (a *Accuracy) Get() (string, float64) {
	if a.total == 0 {
		return "accuracy", 0
	}
	return "accuracy", float64(a.correct) / float64(a.total)
}

// Reset clears the accumulated counts.
func (a *Accuracy) Reset() {
	a.correct, a.total = 0, 0
}

// Count returns the number of samples seen.
func (a *Accuracy) Count() int { return a.total }

// ConfusionMatrix counts predictions per true class.
// Row i, column j holds the number of samples of class i predicted as j.
type ConfusionMatrix struct {
	classes int
	counts  *mat.Dense
}

// NewConfusionMatrix creates an empty classes×classes matrix.
func NewConfusionMatrix(classes int) *ConfusionMatrix {
	return &ConfusionMatrix{
		classes: classes,
		counts:  mat.NewDense(classes, classes, nil),
	}
}

// Add records one prediction. Out-of-range classes are ignored.
func (c *ConfusionMatrix) Add(label, pred int) {
	if label < 0 || label >= c.classes || pred < 0 || pred >= c.classes {
		return
	}
	c.counts.Set(label, pred, c.counts.At(label, pred)+1)
}

// AddBatch records a batch of predictions.
func (c *ConfusionMatrix) AddBatch(labels, preds []int) {
	for i := range labels {
		c.Add(labels[i], preds[i])
	}
}

// Counts returns the raw counts.
func (c *ConfusionMatrix) Counts() *mat.Dense {
	return mat.DenseCopyOf(c.counts)
}

// Normalized returns the matrix with every row divided by its sum, so each
// row holds the distribution of predictions for one true class. Rows of
// classes that never occurred stay zero.
func (c *ConfusionMatrix) Normalized() *mat.Dense {
	out := mat.DenseCopyOf(c.counts)
	for i := 0; i < c.classes; i++ {
		row := out.RawRowView(i)
		sum := mat.Sum(out.RowView(i))
		if sum == 0 {
			continue
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return out
}

// Classes returns the number of classes.
func (c *ConfusionMatrix) Classes() int { return c.classes }

// Fprint writes the matrix as a table. With normalize the cells are row
// fractions, otherwise raw counts.
func (c *ConfusionMatrix) Fprint(w io.Writer, labels []string, normalize bool) {
	m := c.counts
	if normalize {
		fmt.Fprintln(w, "Normalized confusion matrix")
		m = c.Normalized()
	} else {
		fmt.Fprintln(w, "Confusion matrix, without normalization")
	}

	width := 6
	for _, l := range labels {
		width = max(width, len(l))
	}
	name := func(i int) string {
		if i < len(labels) {
			return labels[i]
		}
		return fmt.Sprint(i)
	}

	fmt.Fprintf(w, "%*s", width, "")
	for j := 0; j < c.classes; j++ {
		fmt.Fprintf(w, " %*s", width, name(j))
	}
	fmt.Fprintln(w)
	for i := 0; i < c.classes; i++ {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%*s", width, name(i))
		for j := 0; j < c.classes; j++ {
			if normalize {
				fmt.Fprintf(&sb, " %*.2f", width, m.At(i, j))
			} else {
				fmt.Fprintf(&sb, " %*d", width, int(m.At(i, j)))
			}
		}
		fmt.Fprintln(w, sb.String())
	}
}
