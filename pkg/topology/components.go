package topology

import "medialskel/pkg/neighborhood"

// Cstar returns the number of 26-connected foreground components among the
// 26 neighbours of the center.
func Cstar(w *Window) int {
	tbl := neighborhood.TwentySix()
	return countComponents(tbl, func(i int) bool { return w[tbl.Window(i)] }, nil)
}

// Cbar returns the number of 6-connected background components inside the
// 18 window that touch the center through a face. Floods start only at face
// cells but spread through every background cell of the 18 window.
func Cbar(w *Window) int {
	tbl := neighborhood.Eighteen()
	return countComponents(tbl, func(i int) bool { return !w[tbl.Window(i)] }, tbl.SixConnected)
}

// countComponents floods member entries of tbl along its adjacency lists.
// When seedable is non-nil only entries it accepts start a new component.
func countComponents(tbl *neighborhood.Table, member func(int) bool, seedable func(int) bool) int {
	var (
		visited [neighborhood.WindowSize]bool
		queue   [neighborhood.WindowSize]int
	)
	components := 0
	for start := 0; start < tbl.Len(); start++ {
		if visited[start] || !member(start) {
			continue
		}
		if seedable != nil && !seedable(start) {
			continue
		}
		components++
		head, tail := 0, 1
		queue[0] = start
		visited[start] = true
		for head < tail {
			cur := queue[head]
			head++
			for _, next := range tbl.Neighbors(cur) {
				if !visited[next] && member(next) {
					visited[next] = true
					queue[tail] = next
					tail++
				}
			}
		}
	}
	return components
}
