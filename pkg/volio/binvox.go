package volio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

const (
	binvoxMaxDim = 1280
	binvoxSig    = "#binvox 1\n"
)

// ReadBinvox decodes a binvox occupancy grid into a binary mask.
//
// Binvox stores voxel (x,y,z) at x*width*height + z*width + y with run-length
// (value, count) byte pairs. The returned grid is indexed (x,y,z) with size
// (depth, width, height). Spacing and Origin are derived from the translate
// and scale header fields, so the voxel centres land in model units.
func ReadBinvox(rd io.Reader) (*volume.Grid[uint8], error) {
	r := bufio.NewReader(rd)
	if _, err := fmt.Fscanf(r, binvoxSig); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "missing binvox signature")
	}

	var d, h, w int
	if _, err := fmt.Fscanf(r, "dim %d %d %d\n", &d, &h, &w); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading binvox dimensions")
	}
	if d <= 0 || h <= 0 || w <= 0 || d > binvoxMaxDim || h > binvoxMaxDim || w > binvoxMaxDim {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "invalid dimensions: %d x %d x %d", d, h, w)
	}
	var tx [3]float64
	var scale float64
	if _, err := fmt.Fscanf(r, "translate %f %f %f\n", &tx[0], &tx[1], &tx[2]); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading binvox translation")
	}
	if _, err := fmt.Fscanf(r, "scale %f\n", &scale); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading binvox scale")
	}
	if _, err := fmt.Fscanf(r, "data\n"); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "missing binvox data marker")
	}

	g := volume.New[uint8](volume.Size{d, w, h})
	voxel := scale / float64(max(d, h, w))
	if voxel > 0 {
		g.Spacing = r3.Vec{X: voxel, Y: voxel, Z: voxel}
		g.Origin = r3.Vec{X: tx[0] + voxel/2, Y: tx[1] + voxel/2, Z: tx[2] + voxel/2}
	}

	wh := w * h
	total := d * wh
	for i := 0; i < total; {
		v, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "truncated binvox data at voxel %d", i)
		}
		n, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "truncated binvox data at voxel %d", i)
		}
		if i+int(n) > total {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "run of %d overflows grid at voxel %d", n, i)
		}
		if v != 0 {
			for j := i; j < i+int(n); j++ {
				x, rem := j/wh, j%wh
				z, y := rem/w, rem%w
				g.Set(volume.Index{x, y, z}, 1)
			}
		}
		i += int(n)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		if err == nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "unexpected data past end of grid")
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading binvox trailer")
	}
	return g, nil
}

// WriteBinvox encodes a binary mask. Non-zero samples are occupied. The
// voxel size written to the header is taken from Spacing.X.
func WriteBinvox(wr io.Writer, g *volume.Grid[uint8]) error {
	size := g.Size()
	d, w, h := size[0], size[1], size[2]
	voxel := g.Spacing.X
	scale := voxel * float64(max(d, h, w))
	tx := r3.Sub(g.Origin, r3.Scale(0.5, r3.Vec{X: voxel, Y: voxel, Z: voxel}))

	bw := bufio.NewWriter(wr)
	bw.WriteString(binvoxSig)
	fmt.Fprintf(bw, "dim %d %d %d\n", d, h, w)
	fmt.Fprintf(bw, "translate %.6f %.6f %.6f\n", tx.X, tx.Y, tx.Z)
	fmt.Fprintf(bw, "scale %.6f\n", scale)
	bw.WriteString("data\n")

	set, n := false, byte(0)
	writeRun := func() {
		if n > 0 {
			if set {
				bw.WriteByte(1)
			} else {
				bw.WriteByte(0)
			}
			bw.WriteByte(n)
		}
	}
	for x := 0; x < d; x++ {
		for z := 0; z < h; z++ {
			for y := 0; y < w; y++ {
				v := g.Data()[g.Flat(volume.Index{x, y, z})] != 0
				if v == set && n < math.MaxUint8 {
					n++
					continue
				}
				writeRun()
				set, n = v, 1
			}
		}
	}
	writeRun()
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing binvox")
	}
	return nil
}

// LoadBinvox reads a .binvox file.
func LoadBinvox(path string) (*volume.Grid[uint8], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "opening %s", path)
	}
	defer f.Close()
	g, err := ReadBinvox(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// SaveBinvox writes a binary mask to path.
func SaveBinvox(path string, g *volume.Grid[uint8]) error {
	return createFile(path, func(w io.Writer) error { return WriteBinvox(w, g) })
}
