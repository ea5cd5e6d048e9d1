// Package distance computes the signed Euclidean distance of a binary mask
// together with its spoke field, the displacement from every voxel to the
// nearest point of the object boundary.
//
// The transform is exact: three separable passes of the lower envelope of
// parabolas, each carrying the index of the nearest site so the spoke
// field comes for free. Distances are in voxel units, negative inside.
package distance

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Field is a signed distance and its spoke field on the same grid.
type Field struct {
	Distance *volume.Grid[float64]
	Spokes   *volume.Grid[r3.Vec]
}

// Signed computes the signed distance of mask. Voxels outside the grid are
// treated as background, so objects touching the border still get a
// closed boundary. The interface sits half a voxel from the centers on
// either side: voxels next to it read -0.5 inside and +0.5 outside.
func Signed(mask *volume.Grid[uint8], workers int) (*Field, error) {
	if mask == nil || mask.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty mask")
	}
	if volume.Count(mask) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mask has no foreground voxels")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	size := mask.Size()
	padded := volume.Size{size[0] + 2, size[1] + 2, size[2] + 2}
	inside := volume.New[uint8](padded)
	outside := volume.New[uint8](padded)
	outside.Fill(1)
	mask.Region().Each(func(p volume.Index) {
		if mask.At(p) != 0 {
			q := p.Add(volume.Offset{1, 1, 1})
			inside.Set(q, 1)
			outside.Set(q, 0)
		}
	})

	// Distance from inside voxels to background sites, and from outside
	// voxels to object sites.
	toBackground, bgFeature, err := transform(outside, workers)
	if err != nil {
		return nil, err
	}
	toObject, fgFeature, err := transform(inside, workers)
	if err != nil {
		return nil, err
	}

	field := &Field{
		Distance: volume.Like[float64](mask),
		Spokes:   volume.Like[r3.Vec](mask),
	}
	mask.Region().Each(func(p volume.Index) {
		q := p.Add(volume.Offset{1, 1, 1})
		n := inside.Flat(q)

		d2, feature, sign := toObject[n], fgFeature[n], 1.0
		if inside.Data()[n] != 0 {
			d2, feature, sign = toBackground[n], bgFeature[n], -1.0
		}
		d := math.Sqrt(d2)
		field.Distance.Set(p, sign*(d-0.5))

		if feature >= 0 && d > 0 {
			site := inside.Unflat(feature)
			rel := r3.Vec{
				X: float64(site[0] - q[0]),
				Y: float64(site[1] - q[1]),
				Z: float64(site[2] - q[2]),
			}
			field.Spokes.Set(p, r3.Scale((d-0.5)/d, rel))
		}
	})
	return field, nil
}

// transform returns the squared distance from every voxel to the nearest
// non-zero voxel of sites, and the flat index of that voxel (-1 if none).
func transform(sites *volume.Grid[uint8], workers int) ([]float64, []int, error) {
	size := sites.Size()
	d2 := make([]float64, sites.Len())
	feature := make([]int, sites.Len())
	for n, v := range sites.Data() {
		if v != 0 {
			feature[n] = n
		} else {
			d2[n] = math.Inf(1)
			feature[n] = -1
		}
	}

	for axis := 0; axis < 3; axis++ {
		if err := pass(size, axis, d2, feature, workers); err != nil {
			return nil, nil, err
		}
	}
	return d2, feature, nil
}

// pass runs the 1-D envelope along one axis for every line of the grid.
func pass(size volume.Size, axis int, d2 []float64, feature []int, workers int) error {
	n := size[axis]
	stride := [3]int{1, size[0], size[0] * size[1]}[axis]
	var lineStarts []int
	volume.Full(size).Each(func(p volume.Index) {
		if p[axis] == 0 {
			lineStarts = append(lineStarts, (p[2]*size[1]+p[1])*size[0]+p[0])
		}
	})

	chunk := (len(lineStarts) + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < len(lineStarts); lo += chunk {
		hi := min(lo+chunk, len(lineStarts))
		g.Go(func() error {
			env := newEnvelope(n)
			f := make([]float64, n)
			feat := make([]int, n)
			for _, start := range lineStarts[lo:hi] {
				for i := 0; i < n; i++ {
					f[i] = d2[start+i*stride]
					feat[i] = feature[start+i*stride]
				}
				env.solve(f)
				for i := 0; i < n; i++ {
					d2[start+i*stride] = env.out[i]
					if env.arg[i] >= 0 {
						feature[start+i*stride] = feat[env.arg[i]]
					} else {
						feature[start+i*stride] = -1
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// envelope is the scratch space of the 1-D squared distance transform of
// Felzenszwalb and Huttenlocher.
type envelope struct {
	v   []int
	z   []float64
	out []float64
	arg []int
}

func newEnvelope(n int) *envelope {
	return &envelope{
		v:   make([]int, n),
		z:   make([]float64, n+1),
		out: make([]float64, n),
		arg: make([]int, n),
	}
}

func (e *envelope) solve(f []float64) {
	n := len(f)
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		if k < 0 {
			k = 0
			e.v[0] = q
			e.z[0] = math.Inf(-1)
			e.z[1] = math.Inf(1)
			continue
		}
		s := e.intersect(f, q, e.v[k])
		for s <= e.z[k] {
			k--
			s = e.intersect(f, q, e.v[k])
		}
		k++
		e.v[k] = q
		e.z[k] = s
		e.z[k+1] = math.Inf(1)
	}

	if k < 0 {
		for p := 0; p < n; p++ {
			e.out[p] = math.Inf(1)
			e.arg[p] = -1
		}
		return
	}
	j := 0
	for p := 0; p < n; p++ {
		for e.z[j+1] < float64(p) {
			j++
		}
		dp := float64(p - e.v[j])
		e.out[p] = dp*dp + f[e.v[j]]
		e.arg[p] = e.v[j]
	}
}

func (e *envelope) intersect(f []float64, q, r int) float64 {
	fq, fr := f[q]+float64(q*q), f[r]+float64(r*r)
	return (fq - fr) / float64(2*q-2*r)
}
