// Package neighborhood holds the immutable 6-, 18- and 26-neighbourhood
// tables of the unit cube around a voxel.
//
// Every table lists its offsets in lexicographic order (x slowest, z
// fastest) and, for each offset, the other offsets of the same table that
// are locally adjacent under that connectivity:
//
//	26: Chebyshev distance 1 (face, edge or corner contact)
//	18: L1 distance 1 (face contact; the 6-adjacency used for background)
//	 6: none (face offsets never touch each other through a face)
//
// The tables are built once at package initialisation and only handed out
// read-only afterwards.
package neighborhood

import (
	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// WindowSize is the number of cells in the 3x3x3 window around a voxel.
const WindowSize = 27

// Center is the window index of the voxel itself.
const Center = 13

// Table is one connectivity class.
type Table struct {
	k         int
	offsets   []volume.Offset
	adjacency [][]int
	six       []bool
	window    []int
}

var (
	six        = build(6)
	eighteen   = build(18)
	twentySix  = build(26)
	byConnectv = map[int]*Table{6: six, 18: eighteen, 26: twentySix}
)

// Six returns the face-neighbour table.
func Six() *Table { return six }

// Eighteen returns the face+edge table.
func Eighteen() *Table { return eighteen }

// TwentySix returns the full cube table.
func TwentySix() *Table { return twentySix }

// Lookup returns the table for connectivity k in {6, 18, 26}.
func Lookup(k int) (*Table, error) {
	t, ok := byConnectv[k]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unsupported connectivity %d", k)
	}
	return t, nil
}

// Offsets returns a copy of the offsets of connectivity class k.
func Offsets(k int) ([]volume.Offset, error) {
	t, err := Lookup(k)
	if err != nil {
		return nil, err
	}
	out := make([]volume.Offset, len(t.offsets))
	copy(out, t.offsets)
	return out, nil
}

// Adjacency returns a copy of the local adjacency lists of class k, one list
// of table indices per offset.
func Adjacency(k int) ([][]int, error) {
	t, err := Lookup(k)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(t.adjacency))
	for i, adj := range t.adjacency {
		out[i] = append([]int(nil), adj...)
	}
	return out, nil
}

// IsSixConnected reports whether entry i of the 18 table is a face neighbour
// of the center. Out-of-range indices report false.
func IsSixConnected(i int) bool {
	return i >= 0 && i < len(eighteen.six) && eighteen.six[i]
}

// Connectivity returns 6, 18 or 26.
func (t *Table) Connectivity() int { return t.k }

// Len returns the number of offsets.
func (t *Table) Len() int { return len(t.offsets) }

// Offset returns offset i.
func (t *Table) Offset(i int) volume.Offset { return t.offsets[i] }

// Neighbors returns the indices adjacent to entry i. The slice is shared and
// must not be modified.
func (t *Table) Neighbors(i int) []int { return t.adjacency[i] }

// SixConnected reports whether entry i is a face neighbour of the center.
func (t *Table) SixConnected(i int) bool { return t.six[i] }

// Window returns the 3x3x3 window index of entry i.
func (t *Table) Window(i int) int { return t.window[i] }

// WindowIndex maps an offset with components in [-1, 1] to its cell in the
// 3x3x3 window, in raster order with x fastest.
func WindowIndex(o volume.Offset) int {
	return (o[2]+1)*9 + (o[1]+1)*3 + (o[0] + 1)
}

// WindowOffset is the inverse of WindowIndex.
func WindowOffset(w int) volume.Offset {
	return volume.Offset{w%3 - 1, (w/3)%3 - 1, w/9 - 1}
}

func build(k int) *Table {
	t := &Table{k: k}
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				o := volume.Offset{x, y, z}
				nz := nonZero(o)
				if nz == 0 {
					continue
				}
				switch k {
				case 6:
					if nz > 1 {
						continue
					}
				case 18:
					if nz > 2 {
						continue
					}
				}
				t.offsets = append(t.offsets, o)
				t.six = append(t.six, nz == 1)
				t.window = append(t.window, WindowIndex(o))
			}
		}
	}

	t.adjacency = make([][]int, len(t.offsets))
	for i, a := range t.offsets {
		for j, b := range t.offsets {
			if i != j && adjacent(k, a, b) {
				t.adjacency[i] = append(t.adjacency[i], j)
			}
		}
	}
	return t
}

func adjacent(k int, a, b volume.Offset) bool {
	switch k {
	case 26:
		cheb := 0
		for d := 0; d < 3; d++ {
			cheb = max(cheb, abs(a[d]-b[d]))
		}
		return cheb == 1
	case 18:
		l1 := 0
		for d := 0; d < 3; d++ {
			l1 += abs(a[d] - b[d])
		}
		return l1 == 1
	}
	return false
}

func nonZero(o volume.Offset) int {
	n := 0
	for _, c := range o {
		if c != 0 {
			n++
		}
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
