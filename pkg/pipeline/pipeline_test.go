package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialskel/internal/models"
	"medialskel/pkg/config"
	"medialskel/pkg/errors"
	"medialskel/pkg/phantom"
	"medialskel/pkg/thinning"
	"medialskel/pkg/volio"
	"medialskel/pkg/volume"
)

func sphereVolume(t *testing.T) *volio.Volume {
	t.Helper()
	g, err := phantom.Generate(phantom.Params{Shape: phantom.Sphere, Size: volume.Size{15, 15, 15}, Radius: 5.5}, 2)
	require.NoError(t, err)
	return &volio.Volume{Values: g}
}

func cubeVolume() *volio.Volume {
	g := volume.New[float64](volume.Size{9, 9, 9})
	volume.Region{Origin: volume.Index{2, 2, 2}, Size: volume.Size{5, 5, 5}}.
		Each(func(i volume.Index) { g.Set(i, 1) })
	return &volio.Volume{Values: g, Binary: true}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Processing.Workers = 2
	cfg.Output.Histogram = false
	return cfg
}

func TestSphereConvergesToCenter(t *testing.T) {
	cfg := testConfig()
	cfg.Thinning.SimpleTest = "components"
	cfg.Flux.Margin = 100

	p, err := New(&Params{Volume: sphereVolume(t), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 1, r.SkeletonVoxels)
	assert.Equal(t, r.ObjectVoxels-1, r.Thinning.Deleted)
	assert.Equal(t, 0, r.Flux.Count)
	assert.Equal(t, [3]int{15, 15, 15}, r.Size)
	assert.Equal(t, "memory", r.Input)
	assert.Equal(t, map[string]int{"isolated": 1}, r.Labels)
	assert.Len(t, r.Stages, 6)
	assert.Empty(t, r.Outputs)

	var center volume.Index
	res.Skeleton.Each(func(i volume.Index, v uint8) {
		if v != 0 {
			center = i
		}
	})
	for d := 0; d < 3; d++ {
		assert.InDelta(t, 7, center[d], 1)
	}
}

func TestBinaryInputWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Flux.Strategy = "low-memory"
	cfg.Flux.Margin = 0
	cfg.Flux.Directions = 24
	cfg.Flux.Iterations = 10
	cfg.Output.SaveIntermediaryResults = true
	cfg.Output.Labels = true
	cfg.Output.BoundaryMap = true
	cfg.Output.Slices = "z"
	cfg.Output.Compress = false
	cfg.Output.Histogram = true
	cfg.Output.Mesh = true

	p, err := New(&Params{Volume: cubeVolume(), OutputDir: dir, Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 125, r.ObjectVoxels)
	assert.GreaterOrEqual(t, r.SkeletonVoxels, 1)
	assert.Less(t, r.SkeletonVoxels, r.ObjectVoxels)
	assert.Equal(t, 125-27, r.BoundaryVoxels)
	assert.Positive(t, r.Flux.Count)
	assert.LessOrEqual(t, r.Flux.Count, r.ObjectVoxels)
	assert.Less(t, r.Flux.Min, 0.0)

	for _, name := range []string{SkeletonFile, DistanceFile, FluxFile, LabelsFile, BoundaryFile, HistogramFile, ObjectMesh, SkeletonMesh, ReportFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	slices, err := os.ReadDir(filepath.Join(dir, SlicesDir))
	require.NoError(t, err)
	assert.Len(t, slices, 9)

	im, err := volio.LoadMetaImage(filepath.Join(dir, SkeletonFile))
	require.NoError(t, err)
	skel, err := im.Mask()
	require.NoError(t, err)
	assert.Equal(t, r.SkeletonVoxels, volume.Count(skel))

	saved, err := models.LoadReport(filepath.Join(dir, ReportFile))
	require.NoError(t, err)
	assert.Equal(t, r.RunID, saved.RunID)
	assert.Equal(t, filepath.Join(dir, SkeletonFile), saved.Outputs["skeleton"])
}

func TestMedialSurfaceThresholdNothingPasses(t *testing.T) {
	cfg := testConfig()
	cfg.Thinning.MedialSurface = true
	cfg.Thinning.SurfaceThreshold = -1e9
	cfg.Output.BoundaryMap = true
	cfg.Flux.Margin = 0

	p, err := New(&Params{Volume: cubeVolume(), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "medial-surface", res.Report.Mode)
	assert.Equal(t, 0, res.Report.CandidateVoxels)
	assert.Equal(t, 0, res.Report.SkeletonVoxels)
	assert.Nil(t, res.Boundary)
}

func TestSurfaceModeWithUnreachableThresholdIsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.Thinning.Mode = "surface"
	cfg.Thinning.Threshold = -1e9
	cfg.Flux.Margin = 0

	p, err := New(&Params{Volume: cubeVolume(), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, "surface", r.Mode)
	assert.Equal(t, 0, r.CandidateVoxels)
	assert.Equal(t, 0, r.SkeletonVoxels)
	assert.Zero(t, r.Thinning.Seeded)
	assert.Zero(t, r.Thinning.Deleted)
	assert.Equal(t, 125, r.ObjectVoxels)
}

func TestSurfaceModeErodesFluxObject(t *testing.T) {
	cfg := testConfig()
	cfg.Thinning.Mode = "surface"
	cfg.Flux.Margin = 0

	p, err := New(&Params{Volume: sphereVolume(t), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)

	candidates := thinning.ObjectFromFlux(res.Flux, cfg.Thinning.Threshold)
	r := res.Report
	assert.Equal(t, volume.Count(candidates), r.CandidateVoxels)
	assert.Positive(t, r.CandidateVoxels)
	assert.Less(t, r.CandidateVoxels, r.ObjectVoxels)
	assert.Equal(t, r.CandidateVoxels-r.SkeletonVoxels, r.Thinning.Deleted)

	outside := 0
	for n, v := range res.Skeleton.Data() {
		if v != 0 && candidates.Data()[n] == 0 {
			outside++
		}
	}
	assert.Zero(t, outside, "skeleton voxels with flux above the threshold")
}

func TestAnchoredWithoutEndpointsKeepsCurveEnds(t *testing.T) {
	cfg := testConfig()
	cfg.Thinning.Mode = "anchored"
	cfg.Thinning.Threshold = 1e9
	cfg.Flux.Margin = 100

	p, err := New(&Params{Volume: cubeVolume(), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, "anchored", r.Mode)
	assert.GreaterOrEqual(t, r.SkeletonVoxels, 1)
	assert.Equal(t, r.ObjectVoxels-r.SkeletonVoxels, r.Thinning.Deleted)
}

func TestAnchoredEndpointsSurvive(t *testing.T) {
	dir := t.TempDir()
	ends := filepath.Join(dir, "ends.csv")
	anchors := []volume.Index{{2, 2, 2}, {6, 6, 6}}
	require.NoError(t, volio.SaveEndpoints(ends, anchors))

	cfg := testConfig()
	cfg.Thinning.Mode = "anchored"
	cfg.Thinning.Endpoints = ends
	cfg.Flux.Margin = 100

	p, err := New(&Params{Volume: cubeVolume(), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)
	for _, a := range anchors {
		assert.Equal(t, uint8(1), res.Skeleton.At(a), "anchor %v", a)
	}
	assert.Equal(t, 2, res.Report.Thinning.Kept)

	require.NoError(t, volio.SaveEndpoints(ends, []volume.Index{{20, 0, 0}}))
	p, err = New(&Params{Volume: cubeVolume(), Config: cfg})
	require.NoError(t, err)
	_, err = p.Process(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestSpokeFluxOnDistanceInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full flux evaluation in short mode")
	}
	cfg := testConfig()
	cfg.Flux.Strategy = "spoke"
	cfg.Flux.Margin = 0
	cfg.Thinning.Prune = true

	p, err := New(&Params{Volume: sphereVolume(t), Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Positive(t, res.Report.Flux.Count)
	assert.Less(t, res.Report.Flux.Min, 0.0)
	assert.LessOrEqual(t, res.Report.SkeletonVoxels, res.Report.ObjectVoxels)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	mask := volume.New[uint8](volume.Size{7, 7, 7})
	volume.Region{Origin: volume.Index{1, 1, 1}, Size: volume.Size{5, 5, 5}}.
		Each(func(i volume.Index) { mask.Set(i, 1) })
	input := filepath.Join(dir, "cube.binvox")
	require.NoError(t, volio.SaveBinvox(input, mask))

	cfg := testConfig()
	cfg.Flux.Margin = 100
	p, err := New(&Params{Input: input, Config: cfg})
	require.NoError(t, err)
	res, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, input, res.Report.Input)
	assert.Equal(t, 125, res.Report.ObjectVoxels)
}

func TestPipelineErrors(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = New(&Params{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	bad := config.DefaultConfig()
	bad.Flux.Strategy = "magic"
	_, err = New(&Params{Input: "x.mha", Config: bad})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))

	p, err := New(&Params{Input: filepath.Join(t.TempDir(), "missing.mha")})
	require.NoError(t, err)
	_, err = p.Process(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeIO))

	empty := &volio.Volume{Values: volume.New[float64](volume.Size{4, 4, 4})}
	p, err = New(&Params{Volume: empty, Config: testConfig()})
	require.NoError(t, err)
	_, err = p.Process(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err = New(&Params{Volume: cubeVolume(), Config: testConfig()})
	require.NoError(t, err)
	_, err = p.Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
