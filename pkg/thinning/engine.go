// Package thinning implements topology preserving erosion of a binary
// object down to its medial curve or medial surface.
//
// The Engine pops boundary voxels from a min-heap keyed by a priority field
// (distance magnitude or flux), deletes those that are still simple and not
// end points, and pushes the neighbours that became simple. Heap entries are
// never invalidated eagerly: every popped voxel is re-tested against the
// current skeleton and silently skipped when the test no longer holds.
package thinning

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"medialskel/pkg/errors"
	"medialskel/pkg/neighborhood"
	"medialskel/pkg/topology"
	"medialskel/pkg/volume"
)

// State is the lifecycle stage of an Engine.
type State int

const (
	Idle State = iota
	Initialized
	Seeded
	Eroding
	Done
)

func (s State) String() string {
	return [...]string{"idle", "initialized", "seeded", "eroding", "done"}[s]
}

// Priority assigns the heap key of a voxel.
type Priority func(p volume.Index) float64

// DistancePriority keys voxels by distance magnitude so the voxels closest
// to the object boundary are eroded first.
func DistancePriority(dist *volume.Grid[float64]) Priority {
	return func(p volume.Index) float64 { return math.Abs(dist.At(p)) }
}

// FluxPriority keys voxels by their raw flux value.
func FluxPriority(flux *volume.Grid[float64]) Priority {
	return func(p volume.Index) float64 { return flux.At(p) }
}

// Options tune an Engine.
type Options struct {
	// Region restricts erosion to a sub-box of the object. Nil means the
	// whole grid.
	Region *volume.Region
	// Logger receives debug progress. Nil disables logging.
	Logger *log.Logger
}

// Stats summarises one erosion run.
type Stats struct {
	Initial   int
	Seeded    int
	Pushed    int
	Popped    int
	Stale     int
	Deleted   int
	Kept      int
	Remaining int
}

const (
	flagQueued uint8 = 1 << iota
	flagKept
)

// Engine runs one erosion. It exclusively owns the skeleton it mutates.
type Engine struct {
	strategy Strategy
	opts     Options

	state    State
	skeleton *volume.Grid[uint8]
	flags    *volume.Grid[uint8]
	heap     pixelHeap
	priority Priority
	stats    Stats
}

// New creates an idle engine driven by s.
func New(s Strategy, opts Options) *Engine {
	return &Engine{strategy: s, opts: opts}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State { return e.state }

// Stats returns the counters collected so far.
func (e *Engine) Stats() Stats { return e.stats }

// Skeleton returns the working skeleton. After Done it is the result and
// the caller may keep it; the engine no longer touches it.
func (e *Engine) Skeleton() *volume.Grid[uint8] { return e.skeleton }

// Initialize copies object into the engine's skeleton buffer. The object
// must be binary ({0,1}) inside the working region.
func (e *Engine) Initialize(object *volume.Grid[uint8]) error {
	if e.state != Idle {
		return fmt.Errorf("initialize: engine is %s", e.state)
	}
	if object == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil object volume")
	}

	skeleton := object.Clone()
	skeleton.SetBoundary(volume.Boundary[uint8]{Kind: volume.Constant})
	region := object.Region()
	if e.opts.Region != nil {
		region = *e.opts.Region
	}
	if err := skeleton.SetRegion(region); err != nil {
		return err
	}

	var bad error
	skeleton.Each(func(p volume.Index, v uint8) {
		if bad == nil && v > 1 {
			bad = errors.New(errors.ErrCodeInvalidInput, "object value %d at %v is not binary", v, p)
		}
	})
	if bad != nil {
		return bad
	}

	e.skeleton = skeleton
	e.flags = volume.Like[uint8](skeleton)
	e.heap = e.heap[:0]
	e.stats = Stats{Initial: volume.Count(skeleton)}
	e.state = Initialized
	e.debug("initialized", "region", region, "voxels", e.stats.Initial)
	return nil
}

// Seed queues every boundary voxel that is currently simple.
func (e *Engine) Seed(priority Priority) error {
	if e.state != Initialized {
		return fmt.Errorf("seed: engine is %s", e.state)
	}
	if priority == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil priority")
	}
	e.priority = priority

	e.skeleton.Each(func(p volume.Index, v uint8) {
		if v == 0 {
			return
		}
		w := topology.Capture(e.skeleton, p)
		if topology.IsBoundary(&w) && e.simple(&w) {
			e.enqueue(p)
		}
	})
	e.stats.Seeded = e.stats.Pushed
	e.state = Seeded
	e.debug("seeded", "queued", e.stats.Seeded)
	return nil
}

// Erode drains the heap. Each pop is re-tested; stale entries are dropped.
// Simple end points are kept for good, other simple points are deleted and
// their newly simple neighbours queued.
func (e *Engine) Erode() error {
	if e.state != Seeded {
		return fmt.Errorf("erode: engine is %s", e.state)
	}
	e.state = Eroding

	table := neighborhood.TwentySix()
	region := e.skeleton.Region()
	for e.heap.Len() > 0 {
		px := e.heap.pop()
		p := px.Index
		e.stats.Popped++
		e.clear(p, flagQueued)

		if e.skeleton.At(p) == 0 {
			e.stats.Stale++
			continue
		}
		w := topology.Capture(e.skeleton, p)
		if !e.simple(&w) {
			e.stats.Stale++
			continue
		}
		if e.strategy.IsEnd(p, &w) {
			e.set(p, flagKept)
			e.stats.Kept++
			continue
		}

		e.skeleton.Set(p, 0)
		e.stats.Deleted++

		for i := 0; i < table.Len(); i++ {
			q := p.Add(table.Offset(i))
			if !region.Contains(q) || e.skeleton.At(q) == 0 || e.flags.At(q) != 0 {
				continue
			}
			nw := topology.Capture(e.skeleton, q)
			if e.simple(&nw) {
				e.enqueue(q)
			}
		}
	}

	e.stats.Remaining = volume.Count(e.skeleton)
	e.flags = nil
	e.heap = nil
	e.state = Done
	e.debug("eroded", "deleted", e.stats.Deleted, "kept", e.stats.Kept,
		"stale", e.stats.Stale, "remaining", e.stats.Remaining)
	return nil
}

// Run initializes, seeds and erodes in one call and returns the skeleton.
func Run(s Strategy, object *volume.Grid[uint8], priority Priority, opts Options) (*volume.Grid[uint8], Stats, error) {
	e := New(s, opts)
	if err := e.Initialize(object); err != nil {
		return nil, Stats{}, err
	}
	if err := e.Seed(priority); err != nil {
		return nil, Stats{}, err
	}
	if err := e.Erode(); err != nil {
		return nil, e.Stats(), err
	}
	return e.Skeleton(), e.Stats(), nil
}

func (e *Engine) simple(w *topology.Window) bool {
	return e.strategy.IsIntSimple(w) && e.strategy.IsExtSimple(w)
}

func (e *Engine) enqueue(p volume.Index) {
	e.heap.push(Pixel{Index: p, Priority: e.priority(p)})
	e.set(p, flagQueued)
	e.stats.Pushed++
}

func (e *Engine) set(p volume.Index, f uint8) {
	e.flags.Set(p, e.flags.At(p)|f)
}

func (e *Engine) clear(p volume.Index, f uint8) {
	e.flags.Set(p, e.flags.At(p)&^f)
}

func (e *Engine) debug(msg string, keyvals ...any) {
	if e.opts.Logger != nil {
		e.opts.Logger.Debug(msg, keyvals...)
	}
}
