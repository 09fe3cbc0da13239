// Package genheap lays out the ordered vector of generations the collector
// promotes objects through (spec.md §3 "Generation"/"Heap", §4.1).
package genheap

import (
	"github.com/pkg/errors"

	"github.com/stephenalindsay/factorcore/internal/zone"
)

// Gen indexes a generation, youngest (Nursery) to oldest.
type Gen int

const Nursery Gen = 0

// Generation is either a single zone (the nursery) or, for an accumulating
// generation (aging, tenured), an {active, semispace} pair that is rotated
// on collection so the new active zone starts empty (spec.md §4.1).
type Generation struct {
	Active    *zone.Segment
	Semispace *zone.Segment // nil for the nursery
}

// Accumulating reports whether this generation has a semispace to rotate
// into, i.e. it is not the nursery.
func (g *Generation) Accumulating() bool { return g.Semispace != nil }

// Rotate swaps Active and Semispace (begin_gc's generation-swap step for
// aging/tenured collections).
func (g *Generation) Rotate() {
	g.Active, g.Semispace = g.Semispace, g.Active
}

// Config describes the startup heap layout (spec.md §6 "Configuration").
type Config struct {
	HasAging    bool
	NurserySize uintptr
	AgingSize   uintptr
	TenuredSize uintptr
}

// Heap is the ordered vector of generations indexed from youngest
// (Nursery = 0) to oldest (Tenured = GenCount-1) (spec.md §3 "Heap").
type Heap struct {
	Config      Config
	Generations []Generation
	GenCount    Gen
	Aging       Gen // -1 if !HasAging
	Tenured     Gen
}

// New builds a heap with a nursery, an optional aging generation gated by
// cfg.HasAging, and a tenured generation, matching spec.md's HAS_AGING
// build-time toggle (modeled here as a runtime Config field, since this is
// an ordinary Go module rather than a build with preprocessor flags).
func New(cfg Config) (*Heap, error) {
	nursery, err := zone.AllocSegment(cfg.NurserySize)
	if err != nil {
		return nil, errors.Wrap(err, "genheap: allocating nursery")
	}

	h := &Heap{Config: cfg}
	h.Generations = append(h.Generations, Generation{Active: nursery})

	if cfg.HasAging {
		agingActive, err := zone.AllocSegment(cfg.AgingSize)
		if err != nil {
			return nil, errors.Wrap(err, "genheap: allocating aging active zone")
		}
		agingSemi, err := zone.AllocSegment(cfg.AgingSize)
		if err != nil {
			return nil, errors.Wrap(err, "genheap: allocating aging semispace")
		}
		h.Aging = Gen(len(h.Generations))
		h.Generations = append(h.Generations, Generation{Active: agingActive, Semispace: agingSemi})
	} else {
		h.Aging = -1
	}

	tenuredActive, err := zone.AllocSegment(cfg.TenuredSize)
	if err != nil {
		return nil, errors.Wrap(err, "genheap: allocating tenured active zone")
	}
	tenuredSemi, err := zone.AllocSegment(cfg.TenuredSize)
	if err != nil {
		return nil, errors.Wrap(err, "genheap: allocating tenured semispace")
	}
	h.Tenured = Gen(len(h.Generations))
	h.Generations = append(h.Generations, Generation{Active: tenuredActive, Semispace: tenuredSemi})

	h.GenCount = Gen(len(h.Generations))
	return h, nil
}

// Nursery returns the youngest generation's active zone.
func (h *Heap) Nursery() *zone.Segment { return h.Generations[Nursery].Active }

// Gen returns generation g.
func (h *Heap) Gen(g Gen) *Generation { return &h.Generations[g] }

// CollectingAccumulationGen reports whether g is one of the generations
// that rotates a semispace on collection rather than promoting in place
// (spec.md §4.1: collecting_accumulation_gen_p() ≡ g ∈ {AGING, TENURED}).
func (h *Heap) CollectingAccumulationGen(g Gen) bool {
	return (h.Aging >= 0 && g == h.Aging) || g == h.Tenured
}

// ResetGeneration sets here := start for generation g's active zone
// (spec.md §4.1 reset_generation).
func (h *Heap) ResetGeneration(g Gen) {
	h.Generations[g].Active.Reset()
}

// ResetGenerations resets each generation in [lo, hi] inclusive (spec.md
// §4.1 reset_generations).
func (h *Heap) ResetGenerations(lo, hi Gen) {
	for g := lo; g <= hi; g++ {
		h.ResetGeneration(g)
	}
}

// GrowTenured performs grow_data_heap for the tenured generation: it
// replaces the tenured active/semispace pair with larger zones, sized to
// the old active zone's capacity doubled plus requestedBytes, the
// allocation request the collector driver was handed (spec.md §4.5,
// "growing the data heap"). It returns the old zones so the caller (the collector
// driver) can keep scanning the abandoned collection's oldspace until
// end_gc releases them.
func (h *Heap) GrowTenured(requestedBytes uintptr) (oldActive, oldSemispace *zone.Segment, err error) {
	tenured := h.Gen(h.Tenured)
	oldActive = tenured.Active
	oldSemispace = tenured.Semispace

	newSize := oldActive.Size()*2 + requestedBytes
	newActive, err := zone.AllocSegment(newSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "genheap: growing tenured active zone")
	}
	newSemispace, err := zone.AllocSegment(newSize)
	if err != nil {
		newActive.Release()
		return nil, nil, errors.Wrap(err, "genheap: growing tenured semispace")
	}

	tenured.Active = newActive
	tenured.Semispace = newSemispace
	return oldActive, oldSemispace, nil
}

// Release returns every generation's backing memory to the platform.
func (h *Heap) Release() error {
	var first error
	for i := range h.Generations {
		g := &h.Generations[i]
		if err := g.Active.Release(); err != nil && first == nil {
			first = err
		}
		if g.Semispace != nil {
			if err := g.Semispace.Release(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
