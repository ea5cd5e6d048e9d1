package flux

import (
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
)

const (
	// DefaultDirections is the number of sphere samples used per voxel.
	DefaultDirections = 60
	// DefaultIterations is the number of repulsion rounds.
	DefaultIterations = 50
	// DefaultSeed makes the default direction table reproducible.
	DefaultSeed = 1
)

// SphereSampling places n points on the unit sphere of the given dimension.
// The first point is pinned to the pole (1, 0, ...); the rest start at
// random and are relaxed for the given number of rounds by pairwise
// inverse-square repulsion. Each round computes every force first, then
// moves and renormalises all points together.
func SphereSampling(dim, n, iterations int, rng *rand.Rand) ([][]float64, error) {
	if dim < 2 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "sphere dimension %d < 2", dim)
	}
	if n < 1 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "need at least one sample, got %d", n)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(DefaultSeed, DefaultSeed))
	}

	points := make([][]float64, n)
	points[0] = make([]float64, dim)
	points[0][0] = 1
	for i := 1; i < n; i++ {
		p := make([]float64, dim)
		for floats.Norm(p, 2) == 0 {
			for d := range p {
				p[d] = 2*rng.Float64() - 1
			}
		}
		floats.Scale(1/floats.Norm(p, 2), p)
		points[i] = p
	}

	forces := make([][]float64, n)
	for i := range forces {
		forces[i] = make([]float64, dim)
	}
	diff := make([]float64, dim)
	for it := 0; it < iterations; it++ {
		// All forces are taken from the same configuration before any
		// point moves.
		for i := 1; i < n; i++ {
			force := forces[i]
			for d := range force {
				force[d] = 0
			}
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				floats.SubTo(diff, points[i], points[j])
				d2 := floats.Dot(diff, diff)
				if d2 == 0 {
					continue
				}
				floats.AddScaled(force, 1/d2, diff)
			}
		}
		for i := 1; i < n; i++ {
			floats.Add(points[i], forces[i])
			if norm := floats.Norm(points[i], 2); norm > 0 {
				floats.Scale(1/norm, points[i])
			}
		}
	}
	return points, nil
}

// Directions is a read-only table of unit vectors on the 3-D sphere.
type Directions []r3.Vec

// NewDirections relaxes n directions on the 3-D sphere with a seeded
// generator.
func NewDirections(n, iterations int, seed uint64) (Directions, error) {
	pts, err := SphereSampling(3, n, iterations, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, err
	}
	dirs := make(Directions, len(pts))
	for i, p := range pts {
		dirs[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return dirs, nil
}

var (
	defaultOnce sync.Once
	defaultDirs Directions
)

// Default returns the shared 60-direction table, building it on first use.
func Default() Directions {
	defaultOnce.Do(func() {
		dirs, err := NewDirections(DefaultDirections, DefaultIterations, DefaultSeed)
		if err != nil {
			panic(err)
		}
		defaultDirs = dirs
	})
	return defaultDirs
}
