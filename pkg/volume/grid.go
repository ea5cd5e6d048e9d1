// Package volume provides the dense 3-D grids shared by every stage of the
// skeletonization pipeline.
//
// A Grid stores samples in a flat slice with x varying fastest, carries
// physical spacing and origin metadata, restricts work to an active Region
// and resolves every read outside that region through a Boundary policy, so
// neighbourhood code never needs its own bounds checks.
package volume

import (
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
)

// Scalar lists the sample types the volume codecs and conversions handle.
type Scalar interface {
	~uint8 | ~int16 | ~int32 | ~float32 | ~float64
}

// BoundaryKind selects how reads outside the active region are answered.
type BoundaryKind int

const (
	// Constant returns a fixed value outside the region.
	Constant BoundaryKind = iota
	// Replicate returns the nearest in-region sample.
	Replicate
)

func (k BoundaryKind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Replicate:
		return "replicate"
	default:
		return "unknown"
	}
}

// Boundary is the out-of-region sampling policy of a grid.
type Boundary[T any] struct {
	Kind  BoundaryKind
	Value T
}

// Grid is a dense 3-D array of samples.
type Grid[T any] struct {
	size     Size
	data     []T
	region   Region
	boundary Boundary[T]

	// Spacing is the physical voxel size along x, y and z.
	Spacing r3.Vec
	// Origin is the physical position of voxel (0,0,0).
	Origin r3.Vec
}

// New allocates a zeroed grid of the given size with unit spacing, the full
// extent as active region and a constant zero boundary.
func New[T any](size Size) *Grid[T] {
	return &Grid[T]{
		size:    size,
		data:    make([]T, size.Len()),
		region:  Full(size),
		Spacing: r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// FromSlice wraps data as a grid of the given size without copying.
func FromSlice[T any](size Size, data []T) (*Grid[T], error) {
	if size.Len() == 0 || len(data) != size.Len() {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"grid %v needs %d samples, got %d", size, size.Len(), len(data))
	}
	g := New[T](Size{})
	g.size = size
	g.data = data
	g.region = Full(size)
	return g, nil
}

// Like allocates a zeroed grid with the size, spacing, origin and region of
// ref. The boundary policy is reset to constant zero.
func Like[T, U any](ref *Grid[U]) *Grid[T] {
	g := New[T](ref.size)
	g.region = ref.region
	g.Spacing = ref.Spacing
	g.Origin = ref.Origin
	return g
}

// Size returns the allocated extent.
func (g *Grid[T]) Size() Size { return g.size }

// Len returns the number of allocated voxels.
func (g *Grid[T]) Len() int { return len(g.data) }

// Data exposes the backing slice in raster order.
func (g *Grid[T]) Data() []T { return g.data }

// Region returns the active region.
func (g *Grid[T]) Region() Region { return g.region }

// SetRegion restricts the active region. A region that does not fit inside
// the allocated extent is rejected with ErrCodeRegionOutOfBounds; it is
// never clamped.
func (g *Grid[T]) SetRegion(r Region) error {
	if !r.Within(g.size) {
		return errors.New(errors.ErrCodeRegionOutOfBounds,
			"region %v exceeds allocated extent %v", r, g.size)
	}
	g.region = r
	return nil
}

// Boundary returns the out-of-region policy.
func (g *Grid[T]) Boundary() Boundary[T] { return g.boundary }

// SetBoundary replaces the out-of-region policy.
func (g *Grid[T]) SetBoundary(b Boundary[T]) { g.boundary = b }

// Flat converts an in-bounds index to its position in Data.
func (g *Grid[T]) Flat(i Index) int {
	return (i[2]*g.size[1]+i[1])*g.size[0] + i[0]
}

// Unflat converts a position in Data back to an index.
func (g *Grid[T]) Unflat(n int) Index {
	x := n % g.size[0]
	n /= g.size[0]
	return Index{x, n % g.size[1], n / g.size[1]}
}

// At returns the sample at i. Indices outside the active region resolve
// through the boundary policy and never panic.
func (g *Grid[T]) At(i Index) T {
	if g.region.Contains(i) {
		return g.data[g.Flat(i)]
	}
	if g.boundary.Kind == Replicate && g.region.Len() > 0 {
		for d := 0; d < 3; d++ {
			lo := g.region.Origin[d]
			hi := lo + g.region.Size[d] - 1
			if i[d] < lo {
				i[d] = lo
			} else if i[d] > hi {
				i[d] = hi
			}
		}
		return g.data[g.Flat(i)]
	}
	return g.boundary.Value
}

// Set stores v at i. It panics if i lies outside the allocated extent.
func (g *Grid[T]) Set(i Index, v T) {
	g.data[g.Flat(i)] = v
}

// Fill sets every allocated voxel to v.
func (g *Grid[T]) Fill(v T) {
	for n := range g.data {
		g.data[n] = v
	}
}

// Clone returns a deep copy including metadata and boundary policy.
func (g *Grid[T]) Clone() *Grid[T] {
	c := *g
	c.data = make([]T, len(g.data))
	copy(c.data, g.data)
	return &c
}

// Each calls fn for every voxel of the active region in raster order.
func (g *Grid[T]) Each(fn func(i Index, v T)) {
	g.region.Each(func(i Index) {
		fn(i, g.data[g.Flat(i)])
	})
}

// Physical returns the world position of the center of voxel i.
func (g *Grid[T]) Physical(i Index) r3.Vec {
	return r3.Vec{
		X: g.Origin.X + float64(i[0])*g.Spacing.X,
		Y: g.Origin.Y + float64(i[1])*g.Spacing.Y,
		Z: g.Origin.Z + float64(i[2])*g.Spacing.Z,
	}
}

// SameShape reports whether a and b have identical allocated extents.
func SameShape[T, U any](a *Grid[T], b *Grid[U]) bool {
	return a.size == b.size
}

// Convert returns a copy of g with every sample converted to T.
func Convert[T, U Scalar](g *Grid[U]) *Grid[T] {
	out := Like[T](g)
	for n, v := range g.data {
		out.data[n] = T(v)
	}
	out.boundary = Boundary[T]{Kind: g.boundary.Kind, Value: T(g.boundary.Value)}
	return out
}

// Count returns the number of non-zero voxels inside the active region.
func Count[T Scalar](g *Grid[T]) int {
	n := 0
	g.Each(func(_ Index, v T) {
		if v != 0 {
			n++
		}
	})
	return n
}
