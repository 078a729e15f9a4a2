// Package plot renders training figures: the confusion-matrix heatmap and
// metric history curves.
package plot

import (
	"image/color"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

// Figure is the size of rendered figures.
const Figure = 6 * vg.Inch

// cmGrid adapts a square matrix to plotter.GridXYZ. Row 0 is drawn at the
// top, like an image.
type cmGrid struct {
	m *mat.Dense
	n int
}

func (g cmGrid) Dims() (c, r int)   { return g.n, g.n }
func (g cmGrid) Z(c, r int) float64 { return g.m.At(g.n-1-r, c) }
func (g cmGrid) X(c int) float64    { return float64(c) }
func (g cmGrid) Y(r int) float64    { return float64(r) }

// ConfusionMatrix draws cm as a heatmap with one annotated cell per entry.
// With normalize the annotations use two decimals, otherwise integer counts.
// Text is white on cells above half the maximum.
func ConfusionMatrix(cm *mat.Dense, classes []string, normalize bool, title string) (*plot.Plot, error) {
	n, c := cm.Dims()
	if n != c || n == 0 {
		return nil, errors.Errorf("confusion matrix must be square and non-empty, got %dx%d", n, c)
	}
	if len(classes) != n {
		return nil, errors.Errorf("%d class names for a %dx%d matrix", len(classes), n, n)
	}

	pal, err := brewer.GetPalette(brewer.TypeSequential, "Blues", 9)
	if err != nil {
		return nil, errors.Wrap(err, "palette")
	}
	grid := cmGrid{m: cm, n: n}
	hm := plotter.NewHeatMap(grid, pal)
	maxV := mat.Max(cm)
	hm.Min = 0
	hm.Max = math.Max(maxV, 1e-12)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"
	p.Add(hm)

	xs := make([]plot.Tick, n)
	ys := make([]plot.Tick, n)
	for i, name := range classes {
		xs[i] = plot.Tick{Value: float64(i), Label: name}
		ys[i] = plot.Tick{Value: float64(n - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xs)
	p.Y.Tick.Marker = plot.ConstantTicks(ys)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter

	points := make(plotter.XYs, 0, n*n)
	labels := make([]string, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			points = append(points, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			labels = append(labels, cellText(cm.At(i, j), normalize))
		}
	}
	annot, err := plotter.NewLabels(plotter.XYLabels{XYs: points, Labels: labels})
	if err != nil {
		return nil, errors.Wrap(err, "cell labels")
	}
	thresh := maxV / 2
	for k := range annot.TextStyle {
		i, j := k/n, k%n
		annot.TextStyle[k].XAlign = text.XCenter
		annot.TextStyle[k].YAlign = text.YCenter
		if cm.At(i, j) > thresh {
			annot.TextStyle[k].Color = color.White
		} else {
			annot.TextStyle[k].Color = color.Black
		}
	}
	p.Add(annot)

	p.X.Min, p.X.Max = -0.5, float64(n)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(n)-0.5
	return p, nil
}

func cellText(v float64, normalize bool) string {
	if normalize {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.Itoa(int(v))
}

// History draws one line per metric series against the epoch index.
// Series are drawn in name order so colours are stable between runs.
func History(series map[string][]float64, title, ylabel string) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, errors.New("no series to plot")
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true

	colors := palette.Heat(len(names)+1, 1).Colors()
	for k, name := range names {
		values := series[name]
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i] = plotter.XY{X: float64(i), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "series %s", name)
		}
		line.Color = colors[k]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return p, nil
}

// EncodePNG renders p as a PNG of Figure×Figure into w.
func EncodePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Figure, Figure, "png")
	if err != nil {
		return errors.Wrap(err, "render figure")
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "write figure")
}

// Save renders p to a PNG file.
func Save(p *plot.Plot, path string) error {
	return errors.Wrapf(p.Save(Figure, Figure, path), "save figure %s", path)
}
