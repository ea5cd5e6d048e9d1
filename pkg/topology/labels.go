package topology

import (
	"fmt"

	"medialskel/pkg/neighborhood"
	"medialskel/pkg/volume"
)

// Label is the topological class of a skeleton voxel. The numeric values
// are written verbatim into label volumes.
type Label uint8

const (
	Unclassified         Label = 0
	Interior             Label = 2
	Isolated             Label = 3
	Simple               Label = 4
	Curve                Label = 5
	CurveJunction        Label = 6
	Surface              Label = 7
	CurveSurfaceJunction Label = 8
	SurfaceJunction      Label = 9
	SurfaceCurveJunction Label = 10
)

var labelNames = map[Label]string{
	Unclassified:         "unclassified",
	Interior:             "interior",
	Isolated:             "isolated",
	Simple:               "simple",
	Curve:                "curve",
	CurveJunction:        "curve-junction",
	Surface:              "surface",
	CurveSurfaceJunction: "curve-surface-junction",
	SurfaceJunction:      "surface-junction",
	SurfaceCurveJunction: "surface-curve-junction",
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("label(%d)", uint8(l))
}

// Classify maps a (Cbar, Cstar) pair to its label.
func Classify(cbar, cstar int) Label {
	switch {
	case cbar == 0:
		return Interior
	case cstar == 0:
		return Isolated
	case cbar == 1 && cstar == 1:
		return Simple
	case cbar == 1 && cstar == 2:
		return Curve
	case cbar == 1 && cstar > 2:
		return CurveJunction
	case cbar == 2 && cstar == 1:
		return Surface
	case cbar == 2 && cstar >= 2:
		return CurveSurfaceJunction
	case cbar > 2 && cstar == 1:
		return SurfaceJunction
	case cbar > 2 && cstar >= 2:
		return SurfaceCurveJunction
	}
	return Unclassified
}

// LabelAt classifies the voxel at p of g. Background voxels are
// Unclassified.
func LabelAt(g *volume.Grid[uint8], p volume.Index) Label {
	w := Capture(g, p)
	if !w[neighborhood.Center] {
		return Unclassified
	}
	return Classify(Cbar(&w), Cstar(&w))
}

// LabelGrid returns a grid holding the label of every foreground voxel of g.
func LabelGrid(g *volume.Grid[uint8]) *volume.Grid[uint8] {
	out := volume.Like[uint8](g)
	g.Each(func(p volume.Index, v uint8) {
		if v != 0 {
			out.Set(p, uint8(LabelAt(g, p)))
		}
	})
	return out
}

// Census counts foreground voxels of g per label.
func Census(g *volume.Grid[uint8]) map[Label]int {
	counts := make(map[Label]int)
	g.Each(func(p volume.Index, v uint8) {
		if v != 0 {
			counts[LabelAt(g, p)]++
		}
	})
	return counts
}

// Prune returns a copy of g with isolated, curve and curve-junction voxels
// removed. Voxels are visited in raster order and classified against the
// copy as it is being pruned, so a removal can change later labels.
func Prune(g *volume.Grid[uint8]) (*volume.Grid[uint8], int) {
	out := g.Clone()
	out.SetBoundary(volume.Boundary[uint8]{Kind: volume.Constant})
	removed := 0
	out.Region().Each(func(p volume.Index) {
		if out.At(p) == 0 {
			return
		}
		switch LabelAt(out, p) {
		case Isolated, Curve, CurveJunction:
			out.Set(p, 0)
			removed++
		}
	})
	out.SetBoundary(g.Boundary())
	return out, removed
}
