// Package gc implements the Cheney-style copying collector: the per-cell
// copier, the root scanner, and the collector driver that ties them to the
// card tables and the generation layout (spec.md §4.3, §4.4, §4.5).
//
// Structurally this is a direct port of
// _examples/original_source/vm/data_gc.cpp, written in the idiom of the
// teacher's mgcwork.go (small, comment-heavy structs; explicit invariants).
package gc

import (
	"github.com/pkg/errors"

	"github.com/stephenalindsay/factorcore/internal/cardtable"
	"github.com/stephenalindsay/factorcore/internal/genheap"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

// ErrNewspaceFull is the Result-typed stand-in for the source's
// longjmp(gc_jmp,1): the copier's non-local exit back to the driver when a
// copy cannot fit (spec.md §5 "Non-local exit for overflow").
var ErrNewspaceFull = errors.New("gc: newspace exhausted")

// Hooks are the external code-heap collaborators the GC must invoke but
// does not implement (spec.md §6): compiled-code marking and sweeping.
// A zero-value Hooks is a valid no-op implementation, used by callers with
// no code heap (e.g. tests and cmd/factorvm's reference object model).
type Hooks struct {
	MarkActiveBlocks    func(ctxToken any)
	MarkObjectCodeBlock func(addr uintptr)
	CopyCodeHeapRoots   func()
	FreeUnmarked        func()
	UnmarkMarked        func()

	// CompileAllWords performs compile_all_words(), requested by the
	// `become` primitive after its full GC (spec.md §4.7).
	CompileAllWords func()
}

func (h Hooks) markActiveBlocks(tok any) {
	if h.MarkActiveBlocks != nil {
		h.MarkActiveBlocks(tok)
	}
}
func (h Hooks) markObjectCodeBlock(addr uintptr) {
	if h.MarkObjectCodeBlock != nil {
		h.MarkObjectCodeBlock(addr)
	}
}
func (h Hooks) copyCodeHeapRoots() {
	if h.CopyCodeHeapRoots != nil {
		h.CopyCodeHeapRoots()
	}
}
func (h Hooks) freeUnmarked() {
	if h.FreeUnmarked != nil {
		h.FreeUnmarked()
	}
}
func (h Hooks) unmarkMarked() {
	if h.UnmarkMarked != nil {
		h.UnmarkMarked()
	}
}
func (h Hooks) compileAllWords() {
	if h.CompileAllWords != nil {
		h.CompileAllWords()
	}
}

// State is the collector's working state for one collection, combining the
// generation layout, card tables, and object-model oracle it needs to
// trace and copy (spec.md §9: "organize them as a single owning VM value").
type State struct {
	Heap  *genheap.Heap
	Cards *cardtable.Tables
	Model objmodel.Model
	Hooks Hooks

	CollectingGen        genheap.Gen
	CollectingAgingAgain bool
	Compacting           bool // always false: compaction is out of scope
	GrowingDataHeap      bool

	Newspace *zone.Segment

	LastCodeHeapScan genheap.Gen
	GCOff            bool

	Stats *Stats

	// abandonedTenuredActive/Semispace hold the tenured zones replaced by a
	// GrowTenured call, kept alive until endGC releases them (whatever is
	// still reachable in them has already been copied into the new zones
	// by the retried collection).
	abandonedTenuredActive    *zone.Segment
	abandonedTenuredSemispace *zone.Segment
}

// CompileAllWords invokes the CompileAllWords hook if set, a nil-safe
// wrapper for callers outside this package (the `become` primitive, after
// its full GC).
func (s *State) CompileAllWords() { s.Hooks.compileAllWords() }

// NewState builds the collector state for heap h, defaulting to GC enabled
// and no code-heap scan performed yet (spec.md's init_data_gc).
func NewState(h *genheap.Heap, cards *cardtable.Tables, model objmodel.Model, hooks Hooks) *State {
	return &State{
		Heap:             h,
		Cards:            cards,
		Model:            model,
		Hooks:            hooks,
		LastCodeHeapScan: genheap.Nursery,
		Stats:            NewStats(h.GenCount),
	}
}
