package flux

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// VectorField yields the unnormalised vector V at the sample
// point y, whose nearest voxel is s. The returned vector should point away
// from the medial locus, towards the nearest boundary.
type VectorField interface {
	Vector(y r3.Vec, s volume.Index) r3.Vec
}

// Full samples a precomputed gradient of the signed distance.
type Full struct {
	Gradient *volume.Grid[r3.Vec]
	// InsidePositive flips the gradient for distances that grow towards
	// the medial axis.
	InsidePositive bool
}

// Vector returns the outward gradient at s.
func (f Full) Vector(_ r3.Vec, s volume.Index) r3.Vec {
	g := f.Gradient.At(s)
	if f.InsidePositive {
		return r3.Scale(-1, g)
	}
	return g
}

// Spoke samples a displacement field whose vector at a voxel points to the
// nearest boundary point.
type Spoke struct {
	Spokes *volume.Grid[r3.Vec]
}

// Vector returns the direction from y to the boundary point owned by s.
func (f Spoke) Vector(y r3.Vec, s volume.Index) r3.Vec {
	return r3.Sub(r3.Add(voxel(s), f.Spokes.At(s)), y)
}

// LowMemory derives the boundary point on the fly from the distance alone:
// the central difference gradient at s gives the direction to the boundary
// and the distance gives its length.
type LowMemory struct {
	Distance *volume.Grid[float64]
}

// Vector returns the direction from y to the estimated boundary point of s.
func (f LowMemory) Vector(y r3.Vec, s volume.Index) r3.Vec {
	g := GradientAt(f.Distance, s)
	n := r3.Norm(g)
	b := voxel(s)
	if n > 0 {
		b = r3.Sub(b, r3.Scale(f.Distance.At(s)/n, g))
	}
	return r3.Sub(b, y)
}

// GradientAt is the central difference gradient of g at p in voxel units,
// falling back to one-sided differences at the edges of the region.
func GradientAt(g *volume.Grid[float64], p volume.Index) r3.Vec {
	var comp [3]float64
	r := g.Region()
	for a := 0; a < 3; a++ {
		lo, hi := p, p
		lo[a]--
		hi[a]++
		h := 2.0
		if !r.Contains(lo) {
			lo = p
			h--
		}
		if !r.Contains(hi) {
			hi = p
			h--
		}
		if h > 0 {
			comp[a] = (g.At(hi) - g.At(lo)) / h
		}
	}
	return r3.Vec{X: comp[0], Y: comp[1], Z: comp[2]}
}

// Gradient computes GradientAt for every voxel of dist.
func Gradient(dist *volume.Grid[float64]) *volume.Grid[r3.Vec] {
	out := volume.Like[r3.Vec](dist)
	dist.Region().Each(func(p volume.Index) {
		out.Set(p, GradientAt(dist, p))
	})
	return out
}

// Strategy names the vector field variant.
type Strategy string

const (
	StrategyFull      Strategy = "full"
	StrategySpoke     Strategy = "spoke"
	StrategyLowMemory Strategy = "low-memory"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(name)); s {
	case StrategyFull, StrategySpoke, StrategyLowMemory:
		return s, nil
	case "":
		return StrategyFull, nil
	case "lowmemory", "low_memory":
		return StrategyLowMemory, nil
	}
	return "", errors.New(errors.ErrCodeInvalidConfig, "unknown flux strategy %q", name)
}

func voxel(s volume.Index) r3.Vec {
	return r3.Vec{X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2])}
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
