// Package pipeline runs a complete skeletonization: load the input, derive a
// signed distance, estimate flux, thin, optionally prune, map thickness back
// onto the boundary and write every requested output with a run report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/pkg/boundarymap"
	"medialskel/pkg/config"
	"medialskel/pkg/distance"
	"medialskel/pkg/errors"
	"medialskel/pkg/flux"
	"medialskel/pkg/stl"
	"medialskel/pkg/thinning"
	"medialskel/pkg/topology"
	"medialskel/pkg/visualization"
	"medialskel/pkg/volio"
	"medialskel/pkg/volume"
)

// Output file names inside Params.OutputDir.
const (
	SkeletonFile  = "skeleton.mha"
	DistanceFile  = "distance.mha"
	FluxFile      = "flux.mha"
	LabelsFile    = "labels.mha"
	BoundaryFile  = "boundary.mha"
	HistogramFile = "flux_histogram.png"
	ObjectMesh    = "object.stl"
	SkeletonMesh  = "skeleton.stl"
	SlicesDir     = "slices"
	ReportFile    = "report.yaml"
)

// Params holds the inputs of one run.
type Params struct {
	// Input is a .mha or .binvox path. Ignored when Volume is set.
	Input string

	// Volume is an already loaded input, such as a generated phantom.
	Volume *volio.Volume

	// OutputDir receives the outputs. Empty keeps everything in memory.
	OutputDir string

	// Config holds the algorithm settings; nil means config.DefaultConfig().
	Config *config.Config

	// Logger receives progress; nil is silent.
	Logger *log.Logger
}

// Result is what a run produced.
type Result struct {
	Object   *volume.Grid[uint8]
	Distance *volume.Grid[float64]
	Flux     *volume.Grid[float64]
	Skeleton *volume.Grid[uint8]
	Labels   *volume.Grid[uint8]
	Boundary *volume.Grid[float64]
	Report   *models.Report
}

// Pipeline handles one skeletonization run.
type Pipeline struct {
	params *Params
	cfg    *config.Config
	logger *log.Logger
	report *models.Report

	spokes         *volume.Grid[r3.Vec]
	insideNegative bool
}

// New validates params and prepares a run.
func New(params *Params) (*Pipeline, error) {
	if params == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pipeline needs parameters")
	}
	if params.Volume == nil && params.Input == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pipeline needs an input path or volume")
	}
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := params.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	name := params.Input
	if params.Volume != nil && name == "" {
		name = "memory"
	}
	return &Pipeline{
		params:         params,
		cfg:            cfg,
		logger:         logger,
		report:         models.NewReport(name),
		insideNegative: cfg.Processing.InsideNegative,
	}, nil
}

// Report returns the run report, complete once Process returns.
func (p *Pipeline) Report() *models.Report { return p.report }

func (p *Pipeline) workers() int {
	if w := p.cfg.Processing.Workers; w > 0 {
		return w
	}
	return runtime.NumCPU()
}

type stage struct {
	name string
	run  func(*Result) error
}

// Process runs every stage. The context is checked between stages; a
// stage in progress runs to completion.
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	res, err := p.run(ctx, []stage{
		{"load", p.load},
		{"flux", p.estimateFlux},
		{"thin", p.thin},
		{"label", p.label},
		{"boundary", p.mapBoundary},
		{"write", p.write},
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("skeleton ready",
		"voxels", p.report.SkeletonVoxels,
		"object", p.report.ObjectVoxels,
		"elapsed", p.report.Total().Round(time.Millisecond))
	return res, nil
}

// Flux runs only the load and flux stages and writes nothing.
func (p *Pipeline) Flux(ctx context.Context) (*Result, error) {
	return p.run(ctx, []stage{
		{"load", p.load},
		{"flux", p.estimateFlux},
	})
}

func (p *Pipeline) run(ctx context.Context, stages []stage) (*Result, error) {
	res := &Result{Report: p.report}
	p.report.Mode = p.cfg.Thinning.Mode
	if p.cfg.Thinning.MedialSurface {
		p.report.Mode = "medial-surface"
	}
	p.report.Test = p.cfg.Thinning.SimpleTest
	p.report.Strategy = p.cfg.Flux.Strategy

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		p.logger.Info("stage", "name", st.name)
		if err := st.run(res); err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		p.logger.Debug("stage done", "name", st.name, "elapsed", p.report.Stage(st.name, start))
	}
	return res, nil
}

// load reads the input and produces the signed distance and object mask.
func (p *Pipeline) load(res *Result) error {
	in := p.params.Volume
	if in == nil {
		v, err := volio.Load(p.params.Input)
		if err != nil {
			return err
		}
		in = v
	}
	size := in.Values.Size()
	p.report.Size = [3]int{size[0], size[1], size[2]}

	if in.Binary {
		field, err := distance.Signed(in.Mask(), p.workers())
		if err != nil {
			return err
		}
		res.Distance, p.spokes = field.Distance, field.Spokes
		// Distance transforms are always negative inside.
		p.insideNegative = true
		p.logger.Debug("distance transform", "size", size)
	} else {
		res.Distance = in.Values
	}

	res.Object = thinning.ObjectFromDistance(res.Distance, p.insideNegative)
	p.report.ObjectVoxels = volume.Count(res.Object)
	if p.report.ObjectVoxels == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "input has no object voxels")
	}
	return nil
}

func (p *Pipeline) vectorField(res *Result) (flux.VectorField, error) {
	strategy, err := flux.ParseStrategy(p.cfg.Flux.Strategy)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case flux.StrategySpoke:
		if p.spokes == nil {
			// Distance inputs carry no feature transform; rebuild one from
			// the object they describe.
			p.logger.Warn("spoke flux on a distance input, recomputing the distance transform")
			field, err := distance.Signed(res.Object, p.workers())
			if err != nil {
				return nil, err
			}
			p.spokes = field.Spokes
		}
		return flux.Spoke{Spokes: p.spokes}, nil
	case flux.StrategyLowMemory:
		return flux.LowMemory{Distance: res.Distance}, nil
	default:
		return flux.Full{
			Gradient:       flux.Gradient(res.Distance),
			InsidePositive: !p.insideNegative,
		}, nil
	}
}

func (p *Pipeline) estimateFlux(res *Result) error {
	field, err := p.vectorField(res)
	if err != nil {
		return err
	}
	dirs := flux.Default()
	fc := p.cfg.Flux
	if fc.Directions != flux.DefaultDirections || fc.Iterations != flux.DefaultIterations || fc.Seed != flux.DefaultSeed {
		if dirs, err = flux.NewDirections(fc.Directions, fc.Iterations, fc.Seed); err != nil {
			return err
		}
	}
	res.Flux, err = flux.Compute(res.Distance, field, flux.Options{
		Directions:     dirs,
		Margin:         fc.Margin,
		InsideNegative: p.insideNegative,
		Workers:        p.workers(),
		Logger:         p.logger,
	})
	if err != nil {
		return err
	}

	var evaluated []float64
	for _, v := range res.Flux.Data() {
		if v != 0 {
			evaluated = append(evaluated, v)
		}
	}
	p.report.Flux = models.Summarize(evaluated)
	p.logger.Debug("flux", "evaluated", len(evaluated), "min", p.report.Flux.Min, "mean", p.report.Flux.Mean)
	return nil
}

func (p *Pipeline) thin(res *Result) error {
	tc := p.cfg.Thinning
	if tc.MedialSurface {
		candidates := thinning.ObjectFromFlux(res.Flux, tc.SurfaceThreshold)
		p.report.CandidateVoxels = volume.Count(candidates)
		skel, removed := topology.Prune(candidates)
		res.Skeleton = skel
		p.report.PrunedVoxels = removed
		p.report.SkeletonVoxels = volume.Count(skel)
		return nil
	}

	mode, err := thinning.ParseMode(tc.Mode)
	if err != nil {
		return err
	}
	test, err := topology.ParseSimpleTest(tc.SimpleTest)
	if err != nil {
		return err
	}
	sc := thinning.StrategyConfig{
		Mode:       mode,
		Test:       test,
		Flux:       res.Flux,
		Threshold:  tc.Threshold,
		SurfaceEnd: tc.SurfaceEnd,
	}
	object := res.Object
	priority := thinning.DistancePriority(res.Distance)
	switch mode {
	case thinning.Surface:
		object = thinning.ObjectFromFlux(res.Flux, tc.Threshold)
		priority = thinning.FluxPriority(res.Flux)
	case thinning.Anchored:
		if tc.Endpoints == "" {
			p.logger.Warn("no endpoints given, keeping curve end points")
			break
		}
		anchors, err := volio.LoadEndpoints(tc.Endpoints)
		if err != nil {
			return err
		}
		if err := volio.CheckEndpoints(anchors, res.Object.Size()); err != nil {
			return err
		}
		sc.Anchors = anchors
	}
	strategy, err := thinning.NewStrategy(sc)
	if err != nil {
		return err
	}

	p.report.CandidateVoxels = volume.Count(object)
	skel, stats, err := thinning.Run(strategy, object, priority, thinning.Options{Logger: p.logger})
	if err != nil {
		return err
	}
	p.report.Thinning = models.ThinningCounts{
		Seeded:  stats.Seeded,
		Pushed:  stats.Pushed,
		Popped:  stats.Popped,
		Stale:   stats.Stale,
		Deleted: stats.Deleted,
		Kept:    stats.Kept,
	}

	if tc.Prune {
		skel, p.report.PrunedVoxels = topology.Prune(skel)
	}
	res.Skeleton = skel
	p.report.SkeletonVoxels = volume.Count(skel)
	return nil
}

func (p *Pipeline) label(res *Result) error {
	res.Labels = topology.LabelGrid(res.Skeleton)
	census := topology.Census(res.Skeleton)
	p.report.Labels = make(map[string]int, len(census))
	for l, n := range census {
		p.report.Labels[l.String()] = n
	}

	var thickness []float64
	for n, v := range res.Skeleton.Data() {
		if v != 0 {
			thickness = append(thickness, math.Abs(res.Distance.Data()[n]))
		}
	}
	p.report.Thickness = models.Summarize(thickness)
	return nil
}

func (p *Pipeline) mapBoundary(res *Result) error {
	if !p.cfg.Output.BoundaryMap {
		return nil
	}
	if p.report.SkeletonVoxels == 0 {
		p.logger.Warn("empty skeleton, skipping boundary map")
		return nil
	}
	m, err := boundarymap.Map(res.Object, res.Skeleton, res.Distance, p.workers())
	if err != nil {
		return err
	}
	res.Boundary = m.Weights
	p.report.BoundaryVoxels = m.Boundary
	p.logger.Debug("boundary map", "voxels", m.Boundary, "maxDistance", m.MaxDistance)
	return nil
}

func (p *Pipeline) write(res *Result) error {
	dir := p.params.OutputDir
	if dir == "" {
		return nil
	}
	out := p.cfg.Output
	path := func(name string) string {
		full := filepath.Join(dir, name)
		p.report.Outputs[strings.TrimSuffix(name, filepath.Ext(name))] = full
		return full
	}

	if err := volio.SaveMetaImage(path(SkeletonFile), res.Skeleton, out.Compress); err != nil {
		return err
	}
	if out.SaveIntermediaryResults {
		if err := volio.SaveMetaImage(path(DistanceFile), volume.Convert[float32](res.Distance), out.Compress); err != nil {
			return err
		}
		if err := volio.SaveMetaImage(path(FluxFile), volume.Convert[float32](res.Flux), out.Compress); err != nil {
			return err
		}
	}
	if out.Labels {
		if err := volio.SaveMetaImage(path(LabelsFile), res.Labels, out.Compress); err != nil {
			return err
		}
	}
	if res.Boundary != nil {
		if err := volio.SaveMetaImage(path(BoundaryFile), volume.Convert[float32](res.Boundary), out.Compress); err != nil {
			return err
		}
	}
	if out.Histogram {
		opts := visualization.HistogramOptions{Title: "flux", Threshold: p.cfg.Thinning.Threshold}
		if p.cfg.Thinning.MedialSurface {
			opts.Threshold = p.cfg.Thinning.SurfaceThreshold
		}
		err := visualization.SaveHistogram(res.Flux.Data(), opts, path(HistogramFile))
		if errors.Is(err, errors.ErrCodeInvalidInput) {
			p.logger.Warn("no flux evaluated, skipping histogram", "margin", p.cfg.Flux.Margin)
			delete(p.report.Outputs, strings.TrimSuffix(HistogramFile, filepath.Ext(HistogramFile)))
		} else if err != nil {
			return err
		}
	}
	if out.Mesh {
		if err := p.writeMeshes(res, path); err != nil {
			return err
		}
	}
	if out.Slices != "" {
		if err := p.writeSlices(res, path(SlicesDir)); err != nil {
			return err
		}
	}
	return p.report.Save(path(ReportFile))
}

// writeMeshes extracts the object surface from the distance field and the
// skeleton surface from the skeleton's own distance transform.
func (p *Pipeline) writeMeshes(res *Result, path func(string) string) error {
	tris, err := stl.FromDistance(res.Distance, 0)
	if err != nil {
		return err
	}
	if err := stl.SaveToSTL(path(ObjectMesh), tris); err != nil {
		return err
	}
	if p.report.SkeletonVoxels == 0 {
		return nil
	}
	field, err := distance.Signed(res.Skeleton, p.workers())
	if err != nil {
		return err
	}
	if tris, err = stl.FromDistance(field.Distance, 0); err != nil {
		return err
	}
	p.logger.Debug("meshes", "skeletonTriangles", len(tris))
	return stl.SaveToSTL(path(SkeletonMesh), tris)
}

// writeSlices overlays the skeleton on the object mask for every slice
// along the configured axis.
func (p *Pipeline) writeSlices(res *Result, dir string) error {
	axis := strings.ToLower(p.cfg.Output.Slices)
	viewer := visualization.NewViewer(volume.Convert[float64](res.Object))
	size := res.Object.Size()
	depth := size[strings.Index("xyz", axis)]
	for pos := 0; pos < depth; pos++ {
		img, err := viewer.Overlay(res.Skeleton, axis, pos)
		if err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := visualization.SaveImage(img, name); err != nil {
			return err
		}
	}
	return nil
}
