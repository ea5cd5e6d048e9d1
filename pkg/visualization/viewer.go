// Package visualization renders volumes for inspection: axis-aligned slices,
// maximum intensity projections, skeleton overlays and flux histograms.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Viewer renders a scalar volume. Samples are mapped linearly from
// [Low, High] onto the grey range; values outside are clamped.
type Viewer struct {
	grid *volume.Grid[float64]

	Low, High float64
}

// NewViewer creates a viewer whose window spans the volume's value range.
func NewViewer(g *volume.Grid[float64]) *Viewer {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Data() {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return &Viewer{grid: g, Low: lo, High: hi}
}

// plane describes the 2-D cut for an axis: the in-plane axes and the depth
// along the cut axis.
func (v *Viewer) plane(axis string) (u, w, depth int, err error) {
	size := v.grid.Size()
	switch axis {
	case "x", "X":
		return 1, 2, size[0], nil
	case "y", "Y":
		return 0, 2, size[1], nil
	case "z", "Z":
		return 0, 1, size[2], nil
	}
	return 0, 0, 0, errors.New(errors.ErrCodeInvalidInput, "invalid axis: %s (must be x, y, or z)", axis)
}

func cutAxis(u, w int) int { return 3 - u - w }

func (v *Viewer) level(s float64) uint16 {
	if v.High <= v.Low {
		if s > v.Low {
			return math.MaxUint16
		}
		return 0
	}
	t := (s - v.Low) / (v.High - v.Low)
	return uint16(math.Round(math.Max(0, math.Min(1, t)) * math.MaxUint16))
}

// ExtractSlice cuts the volume perpendicular to axis at position. The image
// x axis follows the first remaining volume axis.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	u, w, depth, err := v.plane(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= depth {
		return nil, errors.New(errors.ErrCodeRegionOutOfBounds, "position %d outside [0,%d) along %s", position, depth, axis)
	}
	size := v.grid.Size()
	img := image.NewGray16(image.Rect(0, 0, size[u], size[w]))
	var i volume.Index
	i[cutAxis(u, w)] = position
	for b := 0; b < size[w]; b++ {
		for a := 0; a < size[u]; a++ {
			i[u], i[w] = a, b
			img.SetGray16(a, b, color.Gray16{Y: v.level(v.grid.Data()[v.grid.Flat(i)])})
		}
	}
	return img, nil
}

// MaximumIntensityProjection collapses the volume along axis, keeping the
// largest sample on every ray.
func (v *Viewer) MaximumIntensityProjection(axis string) (*image.Gray16, error) {
	u, w, depth, err := v.plane(axis)
	if err != nil {
		return nil, err
	}
	size := v.grid.Size()
	cut := cutAxis(u, w)
	img := image.NewGray16(image.Rect(0, 0, size[u], size[w]))
	var i volume.Index
	for b := 0; b < size[w]; b++ {
		for a := 0; a < size[u]; a++ {
			i[u], i[w] = a, b
			best := math.Inf(-1)
			for d := 0; d < depth; d++ {
				i[cut] = d
				best = math.Max(best, v.grid.Data()[v.grid.Flat(i)])
			}
			img.SetGray16(a, b, color.Gray16{Y: v.level(best)})
		}
	}
	return img, nil
}

// Overlay draws a slice of the volume in grey with skeleton voxels in red.
func (v *Viewer) Overlay(skeleton *volume.Grid[uint8], axis string, position int) (*image.RGBA, error) {
	if !volume.SameShape(v.grid, skeleton) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "skeleton %s does not match volume %s", skeleton.Size(), v.grid.Size())
	}
	base, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}
	u, w, _, _ := v.plane(axis)
	bounds := base.Bounds()
	img := image.NewRGBA(bounds)
	var i volume.Index
	i[cutAxis(u, w)] = position
	red := color.RGBA{R: 255, A: 255}
	for b := 0; b < bounds.Dy(); b++ {
		for a := 0; a < bounds.Dx(); a++ {
			i[u], i[w] = a, b
			if skeleton.Data()[skeleton.Flat(i)] != 0 {
				img.Set(a, b, red)
				continue
			}
			img.Set(a, b, base.Gray16At(a, b))
		}
	}
	return img, nil
}

// SaveImage writes img as a PNG, creating parent directories.
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating directory for %s", filename)
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating %s", filename)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encoding %s", filename)
	}
	return nil
}

// SaveSliceSequence writes every slice along axis to outputDir as
// slice_<axis>_<nnn>.png and returns the number written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	_, _, depth, err := v.plane(axis)
	if err != nil {
		return 0, err
	}
	for pos := 0; pos < depth; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := SaveImage(img, filename); err != nil {
			return pos, err
		}
	}
	return depth, nil
}
