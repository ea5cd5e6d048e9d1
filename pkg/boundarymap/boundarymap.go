// Package boundarymap transfers skeleton thickness back onto the object
// surface: every boundary voxel receives the |distance| recorded at its
// nearest skeleton voxel.
package boundarymap

import (
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/kdtree"

	"medialskel/pkg/errors"
	"medialskel/pkg/neighborhood"
	"medialskel/pkg/volume"
)

// Point is a skeleton voxel held in the kd-tree.
type Point struct {
	X, Y, Z float64
	Weight  float64
}

// Compare implements kdtree.Comparable.
func (p Point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims implements kdtree.Comparable.
func (p Point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance to c.
func (p Point) Distance(c kdtree.Comparable) float64 {
	q := c.(Point)
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

// Points satisfies kdtree.Interface.
type Points []Point

func (p Points) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points) Len() int                              { return len(p) }
func (p Points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements kdtree.Interface.
func (p Points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{Points: p, Dim: d}, kdtree.MedianOfRandoms(plane{Points: p, Dim: d}, 100))
}

// plane sorts Points along one axis.
type plane struct {
	Points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points[i].X < p.Points[j].X
	case 1:
		return p.Points[i].Y < p.Points[j].Y
	case 2:
		return p.Points[i].Z < p.Points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{Points: p.Points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.Points[i], p.Points[j] = p.Points[j], p.Points[i]
}

// Boundary marks object voxels that have at least one background face
// neighbour, i.e. the mask minus its 6-erosion. Voxels outside the grid
// count as background.
func Boundary(mask *volume.Grid[uint8]) *volume.Grid[uint8] {
	out := volume.Like[uint8](mask)
	six := neighborhood.Six()
	mask.Each(func(i volume.Index, v uint8) {
		if v == 0 {
			return
		}
		for k := 0; k < six.Len(); k++ {
			q := i.Add(six.Offset(k))
			if !mask.Size().Contains(q) || mask.Data()[mask.Flat(q)] == 0 {
				out.Set(i, 1)
				return
			}
		}
	})
	return out
}

// Result is the outcome of Map.
type Result struct {
	// Weights holds the mapped thickness on boundary voxels and zero
	// elsewhere.
	Weights *volume.Grid[float64]
	// Boundary is the number of boundary voxels that received a weight.
	Boundary int
	// MaxDistance is the largest boundary-to-skeleton distance, in voxels.
	MaxDistance float64
}

// Map assigns each boundary voxel of mask the |dist| of its nearest skeleton
// voxel. Queries run over z-slabs on up to workers goroutines.
func Map(mask, skeleton *volume.Grid[uint8], dist *volume.Grid[float64], workers int) (*Result, error) {
	if !volume.SameShape(mask, skeleton) || !volume.SameShape(mask, dist) {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"shape mismatch: mask %s, skeleton %s, distance %s", mask.Size(), skeleton.Size(), dist.Size())
	}

	var pts Points
	for n, v := range skeleton.Data() {
		if v == 0 {
			continue
		}
		i := skeleton.Unflat(n)
		pts = append(pts, Point{
			X: float64(i[0]), Y: float64(i[1]), Z: float64(i[2]),
			Weight: math.Abs(dist.Data()[n]),
		})
	}
	if len(pts) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "skeleton is empty")
	}
	tree := kdtree.New(pts, false)

	boundary := Boundary(mask)
	weights := volume.Like[float64](mask)
	if workers < 1 {
		workers = 1
	}
	slabs := volume.Full(mask.Size()).Slabs(workers)
	counts := make([]int, len(slabs))
	far := make([]float64, len(slabs))

	var g errgroup.Group
	g.SetLimit(workers)
	for s, slab := range slabs {
		g.Go(func() error {
			slab.Each(func(i volume.Index) {
				n := boundary.Flat(i)
				if boundary.Data()[n] == 0 {
					return
				}
				q := Point{X: float64(i[0]), Y: float64(i[1]), Z: float64(i[2])}
				got, d2 := tree.Nearest(q)
				weights.Data()[n] = got.(Point).Weight
				counts[s]++
				far[s] = math.Max(far[s], math.Sqrt(d2))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Weights: weights}
	for s := range slabs {
		res.Boundary += counts[s]
		res.MaxDistance = math.Max(res.MaxDistance, far[s])
	}
	return res, nil
}
