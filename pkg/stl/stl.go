// Package stl turns signed distance volumes into triangle meshes and reads
// and writes them as binary STL.
package stl

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Triangle represents a single triangle in the STL file
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// GridSDF adapts a signed distance grid (negative inside) to sdf.SDF3.
// Inside the grid it interpolates trilinearly; outside it adds the
// distance to the grid box so the field keeps growing away from it.
type GridSDF struct {
	grid *volume.Grid[float64]
}

// NewGridSDF wraps dist.
func NewGridSDF(dist *volume.Grid[float64]) *GridSDF {
	return &GridSDF{grid: dist}
}

// BoundingBox covers every voxel center.
func (g *GridSDF) BoundingBox() sdf.Box3 {
	size := g.grid.Size()
	lo := g.grid.Physical(volume.Index{0, 0, 0})
	hi := g.grid.Physical(volume.Index{size[0] - 1, size[1] - 1, size[2] - 1})
	return sdf.Box3{Min: v3.Vec{X: lo.X, Y: lo.Y, Z: lo.Z}, Max: v3.Vec{X: hi.X, Y: hi.Y, Z: hi.Z}}
}

// Evaluate returns the interpolated distance at p.
func (g *GridSDF) Evaluate(p v3.Vec) float64 {
	size := g.grid.Size()
	u := [3]float64{
		(p.X - g.grid.Origin.X) / g.grid.Spacing.X,
		(p.Y - g.grid.Origin.Y) / g.grid.Spacing.Y,
		(p.Z - g.grid.Origin.Z) / g.grid.Spacing.Z,
	}
	var (
		base    [3]int
		frac    [3]float64
		outside float64
	)
	for a := 0; a < 3; a++ {
		c := math.Max(0, math.Min(float64(size[a]-1), u[a]))
		d := (u[a] - c) * spacing(g, a)
		outside += d * d
		base[a] = int(math.Floor(c))
		if base[a] >= size[a]-1 {
			base[a] = max(size[a]-2, 0)
		}
		frac[a] = c - float64(base[a])
	}

	v := 0.0
	for corner := 0; corner < 8; corner++ {
		w := 1.0
		var i volume.Index
		for a := 0; a < 3; a++ {
			if corner>>a&1 == 1 {
				w *= frac[a]
				i[a] = min(base[a]+1, size[a]-1)
			} else {
				w *= 1 - frac[a]
				i[a] = base[a]
			}
		}
		if w != 0 {
			v += w * g.grid.Data()[g.grid.Flat(i)]
		}
	}
	return v + math.Sqrt(outside)
}

func spacing(g *GridSDF, axis int) float64 {
	switch axis {
	case 0:
		return g.grid.Spacing.X
	case 1:
		return g.grid.Spacing.Y
	}
	return g.grid.Spacing.Z
}

// FromDistance extracts the zero level set of dist with marching cubes.
// cells is the resolution along the longest axis; zero uses one cell per
// voxel.
func FromDistance(dist *volume.Grid[float64], cells int) ([]Triangle, error) {
	size := dist.Size()
	if size[0] < 2 || size[1] < 2 || size[2] < 2 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mesh needs at least 2 voxels per axis, got %s", size)
	}
	if cells <= 0 {
		cells = max(size[0], size[1], size[2])
	}
	tris := render.ToTriangles(NewGridSDF(dist), render.NewMarchingCubesUniform(cells))

	out := make([]Triangle, 0, len(tris))
	for _, tri := range tris {
		n := tri.Normal()
		t := Triangle{Normal: [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}}
		verts := []*[3]float32{&t.Vertex1, &t.Vertex2, &t.Vertex3}
		for j := 0; j < 3; j++ {
			v := tri[j]
			*verts[j] = [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
		}
		out = append(out, t)
	}
	return out, nil
}

// Write encodes triangles as binary STL.
func Write(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	var header [80]byte
	copy(header[:], "medialskel binary STL")
	if _, err := bw.Write(header[:]); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing STL header")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing STL header")
	}
	for _, t := range triangles {
		if err := binary.Write(bw, binary.LittleEndian, t); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "writing triangle")
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(0)); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "writing triangle")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing STL")
	}
	return nil
}

// Read decodes a binary STL.
func Read(r io.Reader) ([]Triangle, error) {
	br := bufio.NewReader(r)
	var header [80]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading STL header")
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading triangle count")
	}
	triangles := make([]Triangle, n)
	for i := range triangles {
		if err := binary.Read(br, binary.LittleEndian, &triangles[i]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading triangle %d of %d", i, n)
		}
		var attr uint16
		if err := binary.Read(br, binary.LittleEndian, &attr); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading triangle %d of %d", i, n)
		}
	}
	return triangles, nil
}

// SaveToSTL writes triangles to a binary STL file, creating parent
// directories.
func SaveToSTL(filename string, triangles []Triangle) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating directory for %s", filename)
	}
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating %s", filename)
	}
	if err := Write(f, triangles); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "closing %s", filename)
	}
	return nil
}
