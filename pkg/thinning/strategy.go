package thinning

import (
	"strings"

	"medialskel/pkg/errors"
	"medialskel/pkg/topology"
	"medialskel/pkg/volume"
)

// Strategy is the capability set the engine consults for every candidate:
// the two halves of the simple point test and the end point rule that
// decides which simple points survive erosion.
type Strategy interface {
	IsIntSimple(w *topology.Window) bool
	IsExtSimple(w *topology.Window) bool
	IsEnd(p volume.Index, w *topology.Window) bool
}

// Mode selects the kind of skeleton to extract.
type Mode int

const (
	// Curve erodes a distance-defined object down to a medial curve.
	Curve Mode = iota
	// Surface erodes a flux-thresholded object down to a medial surface.
	Surface
	// Anchored erodes down to the curves joining caller supplied endpoints.
	Anchored
)

func (m Mode) String() string {
	switch m {
	case Curve:
		return "curve"
	case Surface:
		return "surface"
	case Anchored:
		return "anchored"
	}
	return "unknown"
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "curve", "":
		return Curve, nil
	case "surface":
		return Surface, nil
	case "anchored":
		return Anchored, nil
	}
	return Curve, errors.New(errors.ErrCodeInvalidConfig, "unknown thinning mode %q", name)
}

// CurveStrategy keeps geometric end points whose flux lies below
// Threshold. Without a flux field every geometric end point is kept.
type CurveStrategy struct {
	topology.SimpleTest
	Flux      *volume.Grid[float64]
	Threshold float64
}

// IsEnd reports whether p terminates a curve worth keeping.
func (s CurveStrategy) IsEnd(p volume.Index, w *topology.Window) bool {
	if !topology.IsEnd(w) {
		return false
	}
	return s.Flux == nil || s.Flux.At(p) < s.Threshold
}

// SurfaceStrategy keeps end points of a sheet whose flux lies below
// Threshold. With SurfaceEnd set the rim test of topology.IsSurfaceEnd
// replaces the plain neighbour count.
type SurfaceStrategy struct {
	topology.SimpleTest
	Flux       *volume.Grid[float64]
	Threshold  float64
	SurfaceEnd bool
}

// IsEnd reports whether p lies on the rim of the medial surface.
func (s SurfaceStrategy) IsEnd(p volume.Index, w *topology.Window) bool {
	end := topology.IsEnd(w)
	if s.SurfaceEnd {
		end = topology.IsSurfaceEnd(w)
	}
	if !end {
		return false
	}
	return s.Flux == nil || s.Flux.At(p) < s.Threshold
}

// AnchorSet is a fixed set of voxels that must survive erosion.
type AnchorSet map[volume.Index]struct{}

// NewAnchorSet builds a set from a list of indices.
func NewAnchorSet(points []volume.Index) AnchorSet {
	set := make(AnchorSet, len(points))
	for _, p := range points {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (a AnchorSet) Contains(p volume.Index) bool {
	_, ok := a[p]
	return ok
}

// AnchoredStrategy keeps exactly the anchored voxels, plus whatever
// Fallback keeps when it is set. NewStrategy sets Fallback to the curve end
// test when no anchors are given.
type AnchoredStrategy struct {
	topology.SimpleTest
	Anchors  AnchorSet
	Fallback Strategy
}

// IsEnd reports anchor membership, deferring to Fallback otherwise.
func (s AnchoredStrategy) IsEnd(p volume.Index, w *topology.Window) bool {
	if s.Anchors.Contains(p) {
		return true
	}
	return s.Fallback != nil && s.Fallback.IsEnd(p, w)
}

// StrategyConfig gathers what NewStrategy needs to assemble a strategy.
type StrategyConfig struct {
	Mode       Mode
	Test       topology.SimpleTest
	Flux       *volume.Grid[float64]
	Threshold  float64
	SurfaceEnd bool
	Anchors    []volume.Index
}

// NewStrategy assembles the strategy for cfg.Mode. Anchored mode defaults
// to the component count test; without anchors it keeps flux-gated curve
// end points instead.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	test := cfg.Test
	switch cfg.Mode {
	case Curve:
		if test == nil {
			test = topology.Delta{}
		}
		return CurveStrategy{SimpleTest: test, Flux: cfg.Flux, Threshold: cfg.Threshold}, nil
	case Surface:
		if test == nil {
			test = topology.Delta{}
		}
		if cfg.Flux == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "surface thinning needs a flux field")
		}
		return SurfaceStrategy{SimpleTest: test, Flux: cfg.Flux, Threshold: cfg.Threshold, SurfaceEnd: cfg.SurfaceEnd}, nil
	case Anchored:
		if test == nil {
			test = topology.ComponentCount{}
		}
		s := AnchoredStrategy{SimpleTest: test, Anchors: NewAnchorSet(cfg.Anchors)}
		if len(cfg.Anchors) == 0 {
			s.Fallback = CurveStrategy{SimpleTest: test, Flux: cfg.Flux, Threshold: cfg.Threshold}
		}
		return s, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown thinning mode %d", int(cfg.Mode))
}
