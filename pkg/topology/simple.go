package topology

import (
	"strings"

	"medialskel/pkg/errors"
	"medialskel/pkg/neighborhood"
)

// SimpleTest decides whether removing the center of a window preserves the
// local topology of the object (IsIntSimple) and of the background
// (IsExtSimple). A point is simple when both hold.
type SimpleTest interface {
	IsIntSimple(w *Window) bool
	IsExtSimple(w *Window) bool
}

// Delta is the flood-fill test: it counts the cells of the window, floods
// them without the center, and compares the reached count against the
// expected one.
type Delta struct{}

// ComponentCount is the Cstar/Cbar test: a point is simple iff its 26
// neighbours form exactly one foreground component and its 18 window holds
// exactly one face-reachable background component.
type ComponentCount struct{}

// ParseSimpleTest maps a configuration name to a strategy.
func ParseSimpleTest(name string) (SimpleTest, error) {
	switch strings.ToLower(name) {
	case "delta", "":
		return Delta{}, nil
	case "components", "component-count", "cstar":
		return ComponentCount{}, nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown simple-point test %q", name)
	}
}

// IsSimple reports whether the center of w is simple under t.
func IsSimple(t SimpleTest, w *Window) bool {
	return t.IsIntSimple(w) && t.IsExtSimple(w)
}

// IsIntSimple floods the foreground cells of the window, center excluded,
// from the first foreground neighbour and checks that every one of them was
// reached. Isolated points (in == 1) and fully interior points (in == 27)
// are never simple.
func (Delta) IsIntSimple(w *Window) bool {
	in := w.Count()
	if in == 1 || in == neighborhood.WindowSize {
		return false
	}

	var visited [neighborhood.WindowSize]bool
	visited[neighborhood.Center] = true

	seed := -1
	for n := 0; n < neighborhood.WindowSize; n++ {
		if w[n] && !visited[n] {
			seed = n
			break
		}
	}
	if seed < 0 {
		return in-1 == 0
	}

	var queue [neighborhood.WindowSize]int
	head, tail := 0, 0
	queue[tail] = seed
	tail++
	visited[seed] = true
	for head < tail {
		cur := queue[head]
		head++
		for _, next := range windowAdjacency[cur] {
			if w[next] && !visited[next] {
				visited[next] = true
				queue[tail] = next
				tail++
			}
		}
	}
	return tail == in-1
}

// IsExtSimple floods the background of the 18 window twice with
// 6-adjacency. The first pass starts at the center and measures every
// background cell reachable through a face (out, center included); the
// second starts from the first background face cell with the center
// blocked. The point is simple iff the second pass reaches all out-1 cells,
// meaning exactly one background component touches the center.
//
// out == 1 means no background face cell exists and removing the center
// would open a cavity. out == 18 is also rejected, which keeps tips
// attached by a single face.
func (Delta) IsExtSimple(w *Window) bool {
	tbl := neighborhood.Eighteen()

	var visited [neighborhood.WindowSize]bool
	out := floodBackground(w, tbl, &visited, -1)
	if out == 0 || out == 1 || out == 18 {
		return false
	}

	visited = [neighborhood.WindowSize]bool{}
	visited[neighborhood.Center] = true
	seed := -1
	for i := 0; i < tbl.Len(); i++ {
		if tbl.SixConnected(i) && !w[tbl.Window(i)] {
			seed = i
			break
		}
	}
	if seed < 0 {
		return false
	}
	return floodBackground(w, tbl, &visited, seed) == out-1
}

// floodBackground counts the background cells of the 18 table reachable
// through 6-adjacency. A negative seed starts at the center, whose face
// cells are its 6-neighbours; otherwise the flood starts at table entry
// seed. The returned count includes the seed.
func floodBackground(w *Window, tbl *neighborhood.Table, visited *[neighborhood.WindowSize]bool, seed int) int {
	var queue [neighborhood.WindowSize]int
	head, tail := 0, 0

	if seed < 0 {
		visited[neighborhood.Center] = true
		count := 1
		for i := 0; i < tbl.Len(); i++ {
			cell := tbl.Window(i)
			if tbl.SixConnected(i) && !w[cell] && !visited[cell] {
				visited[cell] = true
				queue[tail] = i
				tail++
				count++
			}
		}
		for head < tail {
			cur := queue[head]
			head++
			for _, next := range tbl.Neighbors(cur) {
				cell := tbl.Window(next)
				if !w[cell] && !visited[cell] {
					visited[cell] = true
					queue[tail] = next
					tail++
					count++
				}
			}
		}
		return count
	}

	visited[tbl.Window(seed)] = true
	queue[tail] = seed
	tail++
	for head < tail {
		cur := queue[head]
		head++
		for _, next := range tbl.Neighbors(cur) {
			cell := tbl.Window(next)
			if !w[cell] && !visited[cell] {
				visited[cell] = true
				queue[tail] = next
				tail++
			}
		}
	}
	return tail
}

// IsIntSimple reports Cstar == 1.
func (ComponentCount) IsIntSimple(w *Window) bool {
	return Cstar(w) == 1
}

// IsExtSimple reports Cbar == 1.
func (ComponentCount) IsExtSimple(w *Window) bool {
	return Cbar(w) == 1
}
