package thinning

import (
	"container/heap"

	"medialskel/pkg/volume"
)

// Pixel is a priority queue entry. Lower priorities pop first.
type Pixel struct {
	Index    volume.Index
	Priority float64
}

type pixelHeap []Pixel

func (h pixelHeap) Len() int           { return len(h) }
func (h pixelHeap) Less(i, j int) bool { return h[i].Priority < h[j].Priority }
func (h pixelHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *pixelHeap) Push(x any) {
	*h = append(*h, x.(Pixel))
}

func (h *pixelHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

func (h *pixelHeap) push(p Pixel) { heap.Push(h, p) }
func (h *pixelHeap) pop() Pixel   { return heap.Pop(h).(Pixel) }
