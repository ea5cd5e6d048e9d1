package visualization

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"medialskel/pkg/errors"
)

// HistogramOptions controls FluxHistogram.
type HistogramOptions struct {
	Title string
	Bins  int
	// Threshold draws a vertical marker when finite.
	Threshold float64
}

// FluxHistogram plots the distribution of values, skipping exact zeros,
// which mark voxels the flux estimator never evaluated.
func FluxHistogram(values []float64, opts HistogramOptions) (*plot.Plot, error) {
	var samples plotter.Values
	for _, v := range values {
		if v == 0 || math.IsNaN(v) {
			continue
		}
		samples = append(samples, v)
	}
	if len(samples) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no non-zero flux samples to plot")
	}
	bins := opts.Bins
	if bins <= 0 {
		bins = 50
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "flux"
	p.Y.Label.Text = "voxels"

	h, err := plotter.NewHist(samples, bins)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "building histogram")
	}
	h.FillColor = color.RGBA{R: 70, G: 110, B: 180, A: 255}
	p.Add(h)

	if t := opts.Threshold; !math.IsInf(t, 0) && !math.IsNaN(t) {
		top := 0.0
		for _, b := range h.Bins {
			top = math.Max(top, b.Weight)
		}
		line, err := plotter.NewLine(plotter.XYs{{X: t, Y: 0}, {X: t, Y: top}})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "building threshold marker")
		}
		line.Color = color.RGBA{R: 200, A: 255}
		line.Width = vg.Points(1.5)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("threshold", line)
	}
	return p, nil
}

// SaveHistogram renders FluxHistogram to a PNG (or any format plot.Save
// infers from the extension).
func SaveHistogram(values []float64, opts HistogramOptions, filename string) error {
	p, err := FluxHistogram(values, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating directory for %s", filename)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, filename); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "saving %s", filename)
	}
	return nil
}
