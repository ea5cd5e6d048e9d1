package flux

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

func TestSphereSamplingUnitVectors(t *testing.T) {
	for _, dim := range []int{2, 3, 4, 5} {
		pts, err := SphereSampling(dim, 40, 20, rand.New(rand.NewPCG(1, 2)))
		require.NoError(t, err)
		require.Len(t, pts, 40)

		pole := make([]float64, dim)
		pole[0] = 1
		assert.Equal(t, pole, pts[0], "dim %d: first direction must stay at the pole", dim)
		for i, p := range pts {
			require.Len(t, p, dim)
			assert.InDelta(t, 1.0, floats.Norm(p, 2), 1e-9, "dim %d point %d", dim, i)
		}
	}
}

func TestSphereSamplingIsReproducible(t *testing.T) {
	a, err := SphereSampling(3, 30, 10, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	b, err := SphereSampling(3, 30, 10, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed, different samples (-a +b):\n%s", diff)
	}
}

func TestSphereSamplingMovesPointsTogether(t *testing.T) {
	start, err := SphereSampling(3, 5, 0, rand.New(rand.NewPCG(4, 4)))
	require.NoError(t, err)
	got, err := SphereSampling(3, 5, 1, rand.New(rand.NewPCG(4, 4)))
	require.NoError(t, err)

	// One round by hand: every force comes from the starting positions.
	want := make([][]float64, len(start))
	want[0] = start[0]
	for i := 1; i < len(start); i++ {
		p := append([]float64(nil), start[i]...)
		for j := range start {
			if j == i {
				continue
			}
			diff := make([]float64, 3)
			floats.SubTo(diff, start[i], start[j])
			floats.AddScaled(p, 1/floats.Dot(diff, diff), diff)
		}
		floats.Scale(1/floats.Norm(p, 2), p)
		want[i] = p
	}
	for i := range want {
		for d := range want[i] {
			assert.InDelta(t, want[i][d], got[i][d], 1e-12, "point %d axis %d", i, d)
		}
	}
}

func TestSphereSamplingRejectsBadArguments(t *testing.T) {
	_, err := SphereSampling(1, 10, 5, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	_, err = SphereSampling(3, 0, 5, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestDefaultDirectionsAreSpread(t *testing.T) {
	dirs := Default()
	require.Len(t, dirs, DefaultDirections)
	assert.Equal(t, r3.Vec{X: 1}, dirs[0])
	assert.Same(t, &dirs[0], &Default()[0], "table is built once and shared")

	var sum r3.Vec
	for _, d := range dirs {
		assert.InDelta(t, 1.0, r3.Norm(d), 1e-9)
		sum = r3.Add(sum, d)
	}
	assert.Less(t, r3.Norm(sum)/float64(len(dirs)), 0.25, "relaxed directions should nearly cancel")
}

// ball returns |x-c| - r on an n^3 grid with c at the middle voxel.
func ball(n int, r float64) (*volume.Grid[float64], volume.Index) {
	c := volume.Index{n / 2, n / 2, n / 2}
	g := volume.New[float64](volume.Size{n, n, n})
	g.Region().Each(func(p volume.Index) {
		g.Set(p, r3.Norm(r3.Sub(voxel(p), voxel(c)))-r)
	})
	return g, c
}

// ballSpokes is the exact displacement to the nearest sphere point.
func ballSpokes(dist *volume.Grid[float64], c volume.Index) *volume.Grid[r3.Vec] {
	out := volume.Like[r3.Vec](dist)
	dist.Region().Each(func(p volume.Index) {
		rel := r3.Sub(voxel(p), voxel(c))
		n := r3.Norm(rel)
		if n == 0 {
			return
		}
		out.Set(p, r3.Scale(-dist.At(p)/n, rel))
	})
	return out
}

func gateInside() Options {
	return Options{Margin: 0, InsideNegative: true, Workers: 2}
}

func TestFluxIsNegativeOnTheMedialPoint(t *testing.T) {
	dist, c := ball(21, 8)
	off := c.Add(volume.Offset{5, 0, 0})

	fields := map[string]VectorField{
		"full":       Full{Gradient: Gradient(dist)},
		"spoke":      Spoke{Spokes: ballSpokes(dist, c)},
		"low-memory": LowMemory{Distance: dist},
	}
	for name, field := range fields {
		t.Run(name, func(t *testing.T) {
			f, err := Compute(dist, field, gateInside())
			require.NoError(t, err)
			assert.Less(t, f.At(c), DefaultThreshold, "center")
			assert.Greater(t, f.At(off), DefaultThreshold, "off-center")
			assert.Less(t, f.At(c), f.At(off))
			assert.Zero(t, f.At(volume.Index{0, 0, 0}), "outside the object the gate is closed")
		})
	}
}

func TestSpokeAndLowMemoryAgree(t *testing.T) {
	dist, c := ball(17, 6)
	opts := gateInside()
	spoke, err := Compute(dist, Spoke{Spokes: ballSpokes(dist, c)}, opts)
	require.NoError(t, err)
	low, err := Compute(dist, LowMemory{Distance: dist}, opts)
	require.NoError(t, err)

	for _, o := range []volume.Offset{{0, 0, 0}, {1, 0, 0}, {0, 2, 1}, {-3, 0, 0}} {
		p := c.Add(o)
		assert.InDelta(t, spoke.At(p), low.At(p), 3, "voxel %v", p)
	}
}

func TestInsidePositiveMatchesInsideNegative(t *testing.T) {
	dist, _ := ball(13, 5)
	neg, err := Compute(dist, Full{Gradient: Gradient(dist)}, gateInside())
	require.NoError(t, err)

	flipped := dist.Clone()
	for n, v := range flipped.Data() {
		flipped.Data()[n] = -v
	}
	opts := gateInside()
	opts.InsideNegative = false
	pos, err := Compute(flipped, Full{Gradient: Gradient(flipped), InsidePositive: true}, opts)
	require.NoError(t, err)

	for n := range neg.Data() {
		require.InDelta(t, neg.Data()[n], pos.Data()[n], 1e-9, "voxel %v", neg.Unflat(n))
	}
}

func TestMarginClosesTheGate(t *testing.T) {
	dist, _ := ball(17, 6)
	opts := gateInside()
	opts.Margin = DefaultMargin
	f, err := Compute(dist, LowMemory{Distance: dist}, opts)
	require.NoError(t, err)
	for _, v := range f.Data() {
		require.Zero(t, v)
	}
}

func TestTilingDoesNotChangeTheResult(t *testing.T) {
	dist, c := ball(15, 5)
	field := Spoke{Spokes: ballSpokes(dist, c)}

	serial, err := Compute(dist, field, Options{InsideNegative: true, Workers: 1, Tiles: 1})
	require.NoError(t, err)
	parallel, err := Compute(dist, field, Options{InsideNegative: true, Workers: 4, Tiles: 7})
	require.NoError(t, err)
	if diff := cmp.Diff(serial.Data(), parallel.Data()); diff != "" {
		t.Errorf("tiled flux differs (-serial +parallel):\n%s", diff)
	}
}

func TestComputeValidatesInputs(t *testing.T) {
	dist, _ := ball(9, 3)
	_, err := Compute(dist, nil, gateInside())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = Compute(dist, Full{}, gateInside())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	other := volume.New[r3.Vec](volume.Size{9, 9, 8})
	_, err = Compute(dist, Spoke{Spokes: other}, gateInside())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestGradientOfLinearField(t *testing.T) {
	g := volume.New[float64](volume.Size{4, 5, 3})
	g.Region().Each(func(p volume.Index) {
		g.Set(p, 2*float64(p[0])+3*float64(p[1])-float64(p[2]))
	})
	want := r3.Vec{X: 2, Y: 3, Z: -1}
	g.Region().Each(func(p volume.Index) {
		got := GradientAt(g, p)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(got, want)), 1e-12, "voxel %v", p)
	})
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"full": StrategyFull, "Spoke": StrategySpoke, "low-memory": StrategyLowMemory,
		"lowmemory": StrategyLowMemory, "": StrategyFull,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("fft")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestDefaultThreshold(t *testing.T) {
	assert.InDelta(t, -(60*2/math.Pi)*0.4, DefaultThreshold, 0.01)
}
