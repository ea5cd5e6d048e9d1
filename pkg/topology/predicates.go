package topology

import (
	"medialskel/pkg/neighborhood"
	"medialskel/pkg/volume"
)

// IsBoundary reports whether the center is foreground with at least one
// background cell among its 26 neighbours.
func IsBoundary(w *Window) bool {
	return w[neighborhood.Center] && w.Count() < neighborhood.WindowSize
}

// IsEnd reports whether fewer than two of the 26 neighbours are foreground.
func IsEnd(w *Window) bool {
	return w.Neighbors() < 2
}

// surfacePlanes are the nine digital planes through the center, each listed
// as the ring of its eight in-plane neighbours.
var surfacePlanes = [9][8]volume.Offset{
	{{1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {-1, 1, 0}, {-1, 0, 0}, {-1, -1, 0}, {0, -1, 0}, {1, -1, 0}},
	{{0, 1, 0}, {0, 1, 1}, {0, 0, 1}, {0, -1, 1}, {0, -1, 0}, {0, -1, -1}, {0, 0, -1}, {0, 1, -1}},
	{{1, 0, 0}, {1, 0, 1}, {0, 0, 1}, {-1, 0, 1}, {-1, 0, 0}, {-1, 0, -1}, {0, 0, -1}, {1, 0, -1}},
	{{-1, -1, 1}, {0, 0, 1}, {1, 1, 1}, {-1, -1, 0}, {1, 1, 0}, {-1, -1, -1}, {0, 0, -1}, {1, 1, -1}},
	{{-1, 1, 1}, {0, 0, 1}, {1, -1, 1}, {-1, 1, 0}, {1, -1, 0}, {-1, 1, -1}, {0, 0, -1}, {1, -1, -1}},
	{{1, -1, -1}, {1, 0, 0}, {1, 1, 1}, {0, -1, -1}, {0, 1, 1}, {-1, -1, -1}, {-1, 0, 0}, {-1, 1, 1}},
	{{1, -1, 1}, {1, 0, 0}, {1, 1, -1}, {0, -1, 1}, {0, 1, -1}, {-1, -1, 1}, {-1, 0, 0}, {-1, 1, -1}},
	{{-1, 1, -1}, {0, 1, 0}, {1, 1, 1}, {-1, 0, -1}, {1, 0, 1}, {-1, -1, -1}, {0, -1, 0}, {1, -1, 1}},
	{{-1, 1, 1}, {0, 1, 0}, {1, 1, -1}, {-1, 0, 1}, {1, 0, -1}, {-1, -1, 1}, {0, -1, 0}, {1, -1, -1}},
}

// IsSurfaceEnd reports whether any of the nine planes through the center
// holds fewer than two foreground cells. It marks the rim of a one voxel
// thick sheet, where a plain IsEnd test would see too many neighbours.
func IsSurfaceEnd(w *Window) bool {
	for _, plane := range surfacePlanes {
		n := 0
		for _, o := range plane {
			if w[neighborhood.WindowIndex(o)] {
				n++
			}
		}
		if n < 2 {
			return true
		}
	}
	return false
}
