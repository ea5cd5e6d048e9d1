package volume

import "fmt"

// Index addresses a voxel as (x, y, z).
type Index [3]int

// Offset is a signed displacement between two indices.
type Offset [3]int

// Size is the voxel extent of a grid along x, y and z.
type Size [3]int

// Add returns i displaced by o.
func (i Index) Add(o Offset) Index {
	return Index{i[0] + o[0], i[1] + o[1], i[2] + o[2]}
}

// Sub returns the offset that takes j to i.
func (i Index) Sub(j Index) Offset {
	return Offset{i[0] - j[0], i[1] - j[1], i[2] - j[2]}
}

// Neg returns the opposite offset.
func (o Offset) Neg() Offset {
	return Offset{-o[0], -o[1], -o[2]}
}

// Len returns the number of voxels covered by s.
func (s Size) Len() int {
	if s[0] <= 0 || s[1] <= 0 || s[2] <= 0 {
		return 0
	}
	return s[0] * s[1] * s[2]
}

// Contains reports whether i lies inside [0, s).
func (s Size) Contains(i Index) bool {
	return i[0] >= 0 && i[1] >= 0 && i[2] >= 0 &&
		i[0] < s[0] && i[1] < s[1] && i[2] < s[2]
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2])
}

// Region is an axis-aligned box of voxels: Origin plus Size.
type Region struct {
	Origin Index
	Size   Size
}

// Full returns the region covering the whole of s.
func Full(s Size) Region {
	return Region{Size: s}
}

// Contains reports whether i lies inside r.
func (r Region) Contains(i Index) bool {
	for d := 0; d < 3; d++ {
		if i[d] < r.Origin[d] || i[d] >= r.Origin[d]+r.Size[d] {
			return false
		}
	}
	return true
}

// Within reports whether r lies entirely inside an allocation of size s.
func (r Region) Within(s Size) bool {
	for d := 0; d < 3; d++ {
		if r.Origin[d] < 0 || r.Size[d] < 0 || r.Origin[d]+r.Size[d] > s[d] {
			return false
		}
	}
	return true
}

// Len returns the number of voxels in r.
func (r Region) Len() int {
	return r.Size.Len()
}

// Each calls fn for every index of r in raster order (x fastest, z slowest).
func (r Region) Each(fn func(Index)) {
	for z := r.Origin[2]; z < r.Origin[2]+r.Size[2]; z++ {
		for y := r.Origin[1]; y < r.Origin[1]+r.Size[1]; y++ {
			for x := r.Origin[0]; x < r.Origin[0]+r.Size[0]; x++ {
				fn(Index{x, y, z})
			}
		}
	}
}

// Slabs splits r along z into at most n contiguous slabs of near-equal
// thickness. Slabs never overlap and together cover r exactly.
func (r Region) Slabs(n int) []Region {
	depth := r.Size[2]
	if depth <= 0 || r.Len() == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > depth {
		n = depth
	}

	slabs := make([]Region, 0, n)
	z := r.Origin[2]
	for i := 0; i < n; i++ {
		thickness := depth / n
		if i < depth%n {
			thickness++
		}
		slab := r
		slab.Origin[2] = z
		slab.Size[2] = thickness
		slabs = append(slabs, slab)
		z += thickness
	}
	return slabs
}

func (r Region) String() string {
	return fmt.Sprintf("%v+%v", r.Origin, r.Size)
}
