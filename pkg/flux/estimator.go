// Package flux estimates the average outward flux (AOF) of a distance
// gradient, displacement or distance field.
//
// For every voxel x deep enough inside the object the estimator samples the
// field at the nearest voxel of each point x+d, d ranging over a fixed set
// of quasi-uniform sphere directions, and sums
//
//	f(x) = -sum_d normalize(V(round(x+d))) . d
//
// Medial voxels see V diverge away from them in every direction, so f is
// strongly negative on the skeleton and near zero elsewhere.
package flux

import (
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// DefaultMargin is the depth a voxel must exceed to be evaluated.
const DefaultMargin = 8.5

// DefaultThreshold is the flux below which a voxel counts as medial:
// -(60*2/pi)*0.4.
const DefaultThreshold = -(DefaultDirections * 2 / 3.14159) * 0.4

// SurfaceThreshold selects medial-surface voxels directly from the flux
// field, without thinning.
const SurfaceThreshold = -40 * 0.4

// Options tune an evaluation.
type Options struct {
	// Directions defaults to Default().
	Directions Directions
	// Margin gates evaluation: only voxels with sign*dist > Margin are
	// computed, sign being -1 for inside-negative distances.
	Margin float64
	// InsideNegative tells which sign of the distance is inside.
	InsideNegative bool
	// Workers bounds concurrent tiles; zero means GOMAXPROCS.
	Workers int
	// Tiles is the number of z slabs; zero means four per worker.
	Tiles  int
	Logger *log.Logger
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{Margin: DefaultMargin, InsideNegative: true}
}

// Compute evaluates the flux of field over the region of dist. The output
// shares dist's geometry and holds 0 wherever the gate does not hold.
// Tiles run concurrently; each voxel is written by exactly one tile.
func Compute(dist *volume.Grid[float64], field VectorField, opts Options) (*volume.Grid[float64], error) {
	if dist == nil || field == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "flux needs a distance grid and a vector field")
	}
	if err := checkShape(dist, field); err != nil {
		return nil, err
	}
	dirs := opts.Directions
	if len(dirs) == 0 {
		dirs = Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	tiles := opts.Tiles
	if tiles <= 0 {
		tiles = 4 * workers
	}
	sign := 1.0
	if opts.InsideNegative {
		sign = -1
	}

	out := volume.Like[float64](dist)
	region := dist.Region()
	slabs := region.Slabs(tiles)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, slab := range slabs {
		g.Go(func() error {
			slab.Each(func(p volume.Index) {
				if sign*dist.At(p) > opts.Margin {
					out.Set(p, fluxAt(p, field, dirs, region))
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Debug("flux computed", "tiles", len(slabs), "workers", workers, "directions", len(dirs))
	}
	return out, nil
}

func fluxAt(p volume.Index, field VectorField, dirs Directions, region volume.Region) float64 {
	x := voxel(p)
	f := 0.0
	for _, d := range dirs {
		y := r3.Add(x, d)
		s := clamp(volume.Index{round(y.X), round(y.Y), round(y.Z)}, region)
		v := field.Vector(y, s)
		n := r3.Norm(v)
		if n == 0 {
			continue
		}
		f -= r3.Dot(v, d) / n
	}
	return f
}

// clamp replicates the region's edge for samples that fall outside it.
func clamp(s volume.Index, r volume.Region) volume.Index {
	for a := 0; a < 3; a++ {
		lo := r.Origin[a]
		hi := lo + r.Size[a] - 1
		if s[a] < lo {
			s[a] = lo
		} else if s[a] > hi {
			s[a] = hi
		}
	}
	return s
}

func checkShape(dist *volume.Grid[float64], field VectorField) error {
	var size volume.Size
	switch f := field.(type) {
	case Full:
		if f.Gradient == nil {
			return errors.New(errors.ErrCodeInvalidInput, "full flux needs a gradient field")
		}
		size = f.Gradient.Size()
	case Spoke:
		if f.Spokes == nil {
			return errors.New(errors.ErrCodeInvalidInput, "spoke flux needs a displacement field")
		}
		size = f.Spokes.Size()
	case LowMemory:
		if f.Distance == nil {
			return errors.New(errors.ErrCodeInvalidInput, "low-memory flux needs a distance field")
		}
		size = f.Distance.Size()
	default:
		return nil
	}
	if size != dist.Size() {
		return errors.New(errors.ErrCodeInvalidInput, "field size %v does not match distance size %v", size, dist.Size())
	}
	return nil
}
