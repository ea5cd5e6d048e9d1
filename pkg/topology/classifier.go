package topology

import "medialskel/pkg/volume"

// Classifier evaluates the point predicates against the live state of a
// binary grid. It only reads the grid; callers own all mutation.
type Classifier struct {
	grid *volume.Grid[uint8]
	test SimpleTest
}

// NewClassifier binds test to g. A nil test selects Delta.
func NewClassifier(g *volume.Grid[uint8], test SimpleTest) *Classifier {
	if test == nil {
		test = Delta{}
	}
	return &Classifier{grid: g, test: test}
}

// IsBoundary reports whether p is foreground with a background 26-neighbour.
func (c *Classifier) IsBoundary(p volume.Index) bool {
	w := Capture(c.grid, p)
	return IsBoundary(&w)
}

// IsIntSimple applies the object half of the simple test at p.
func (c *Classifier) IsIntSimple(p volume.Index) bool {
	w := Capture(c.grid, p)
	return c.test.IsIntSimple(&w)
}

// IsExtSimple applies the background half of the simple test at p.
func (c *Classifier) IsExtSimple(p volume.Index) bool {
	w := Capture(c.grid, p)
	return c.test.IsExtSimple(&w)
}

// IsSimple reports whether removing p preserves local topology.
func (c *Classifier) IsSimple(p volume.Index) bool {
	w := Capture(c.grid, p)
	return IsSimple(c.test, &w)
}

// IsEnd reports whether p has fewer than two foreground neighbours.
func (c *Classifier) IsEnd(p volume.Index) bool {
	w := Capture(c.grid, p)
	return IsEnd(&w)
}
