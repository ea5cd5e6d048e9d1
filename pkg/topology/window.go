// Package topology implements the local digital-topology tests used by the
// thinning engine: boundary, simple and end point predicates over the 3x3x3
// window of a voxel, the Cstar/Cbar component counts and the topological
// labeler built on them.
//
// Foreground uses 26-connectivity and background uses 6-connectivity.
// All predicates work on a captured Window so they can be evaluated on
// synthetic configurations as easily as on a live skeleton grid.
package topology

import (
	"medialskel/pkg/neighborhood"
	"medialskel/pkg/volume"
)

// Window holds the foreground flags of the 27 cells around a voxel, indexed
// by neighborhood.WindowIndex.
type Window [neighborhood.WindowSize]bool

// Capture reads the window around p. Cells outside the grid's region are
// answered by the grid's boundary policy; a non-zero sample is foreground.
func Capture(g *volume.Grid[uint8], p volume.Index) Window {
	var w Window
	for n := 0; n < neighborhood.WindowSize; n++ {
		w[n] = g.At(p.Add(neighborhood.WindowOffset(n))) != 0
	}
	return w
}

// Count returns the number of foreground cells, center included.
func (w *Window) Count() int {
	n := 0
	for _, fg := range w {
		if fg {
			n++
		}
	}
	return n
}

// Neighbors returns the number of foreground cells among the 26 neighbours.
func (w *Window) Neighbors() int {
	n := w.Count()
	if w[neighborhood.Center] {
		n--
	}
	return n
}

// windowAdjacency[n] lists the window cells at Chebyshev distance 1 from n.
var windowAdjacency = func() [neighborhood.WindowSize][]int {
	var adj [neighborhood.WindowSize][]int
	for a := 0; a < neighborhood.WindowSize; a++ {
		oa := neighborhood.WindowOffset(a)
		for b := 0; b < neighborhood.WindowSize; b++ {
			ob := neighborhood.WindowOffset(b)
			if a != b && chebyshev(oa, ob) == 1 {
				adj[a] = append(adj[a], b)
			}
		}
	}
	return adj
}()

func chebyshev(a, b volume.Offset) int {
	d := 0
	for i := 0; i < 3; i++ {
		v := a[i] - b[i]
		if v < 0 {
			v = -v
		}
		d = max(d, v)
	}
	return d
}
