// Package phantom samples analytic solids into signed distance volumes.
// Shapes are modelled with sdfx and evaluated at voxel centers, giving
// reproducible inputs with known medial loci.
package phantom

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Shape names a phantom.
type Shape string

const (
	Sphere   Shape = "sphere"
	Box      Shape = "box"
	Tube     Shape = "tube"
	Dumbbell Shape = "dumbbell"
	Cross    Shape = "cross"
)

// Shapes lists the supported phantoms.
func Shapes() []Shape {
	return []Shape{Sphere, Box, Tube, Dumbbell, Cross}
}

// Params describes a phantom. Radius and Length are in voxels; the solid is
// centred in a grid of the given Size.
type Params struct {
	Shape  Shape
	Size   volume.Size
	Radius float64
	Length float64
}

// Build returns the sdfx solid for params.
func Build(params Params) (sdf.SDF3, error) {
	if params.Radius <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "phantom radius must be positive, got %g", params.Radius)
	}
	r, l := params.Radius, params.Length
	if l <= 0 {
		l = 4 * r
	}

	var (
		s   sdf.SDF3
		err error
	)
	switch Shape(strings.ToLower(string(params.Shape))) {
	case Sphere:
		s, err = sdf.Sphere3D(r)
	case Box:
		s, err = sdf.Box3D(v3.Vec{X: l, Y: 2 * r, Z: r}, 0)
	case Tube:
		s, err = sdf.Cylinder3D(l, r, 0)
	case Dumbbell:
		s, err = dumbbell(r, l)
	case Cross:
		s, err = cross(r, l)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown phantom shape %q", params.Shape)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s phantom: %w", params.Shape, err)
	}
	return s, nil
}

// dumbbell joins two balls of radius r by a bar of radius r/2 along x.
func dumbbell(r, l float64) (sdf.SDF3, error) {
	ball, err := sdf.Sphere3D(r)
	if err != nil {
		return nil, err
	}
	bar, err := sdf.Cylinder3D(l, r/2, 0)
	if err != nil {
		return nil, err
	}
	bar = sdf.Transform3D(bar, sdf.RotateY(math.Pi/2))
	left := sdf.Transform3D(ball, sdf.Translate3d(v3.Vec{X: -l / 2}))
	right := sdf.Transform3D(ball, sdf.Translate3d(v3.Vec{X: l / 2}))
	return sdf.Union3D(left, right, bar), nil
}

// cross is three orthogonal tubes meeting at the origin.
func cross(r, l float64) (sdf.SDF3, error) {
	tube, err := sdf.Cylinder3D(l, r, 0)
	if err != nil {
		return nil, err
	}
	return sdf.Union3D(
		tube,
		sdf.Transform3D(tube, sdf.RotateX(math.Pi/2)),
		sdf.Transform3D(tube, sdf.RotateY(math.Pi/2)),
	), nil
}

// Sample evaluates s at every voxel center of a grid of the given size.
// Voxel i sits at i - (size-1)/2, so the solid's origin is the grid center.
func Sample(s sdf.SDF3, size volume.Size, workers int) (*volume.Grid[float64], error) {
	if size.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "phantom grid %v is empty", size)
	}
	if workers <= 0 {
		workers = 1
	}
	g := volume.New[float64](size)
	g.Origin = r3.Vec{
		X: -float64(size[0]-1) / 2,
		Y: -float64(size[1]-1) / 2,
		Z: -float64(size[2]-1) / 2,
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, slab := range g.Region().Slabs(4 * workers) {
		eg.Go(func() error {
			slab.Each(func(p volume.Index) {
				w := g.Physical(p)
				g.Set(p, s.Evaluate(v3.Vec{X: w.X, Y: w.Y, Z: w.Z}))
			})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// Generate builds and samples params.
func Generate(params Params, workers int) (*volume.Grid[float64], error) {
	s, err := Build(params)
	if err != nil {
		return nil, err
	}
	return Sample(s, params.Size, workers)
}
