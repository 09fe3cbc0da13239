// Package vm wires the heap, card tables, context manager, and collector
// state into the single owning value spec.md §9 asks for in place of the
// source's file-scope globals (performing_gc, newspace, collecting_gen,
// gc_jmp, gc_stats, stack_chain, unused_contexts, userenv): the way the
// teacher's getg() reaches g/m/p (proc.go), every VM method reaches this
// struct instead of touching package-level state.
package vm

import (
	"go.uber.org/zap"

	"github.com/stephenalindsay/factorcore/internal/cardtable"
	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/context"
	"github.com/stephenalindsay/factorcore/internal/gc"
	"github.com/stephenalindsay/factorcore/internal/genheap"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
)

// VM owns one heap, the context chain, and the collector state, plus the
// root set the collector walks on every cycle. There is no separate card
// table field here: GC.Cards is the single owner, since beginGC replaces it
// wholesale with a larger *cardtable.Tables after a tenured heap growth
// (spec.md §4.2/§4.5) and a second copy on VM would drift out of sync with
// it the moment that happens. The external write barrier marks through the
// Cards method below, which always reaches the current table.
type VM struct {
	Heap     *genheap.Heap
	Contexts *context.Manager
	GC       *gc.State
	Model    objmodel.Model
	Logger   *zap.Logger

	roots gc.Roots
}

// Cards returns the card tables the write barrier marks through
// (`POINTS_TO_NURSERY`/`POINTS_TO_AGING`, spec.md §4.2). It always reflects
// whatever table GC currently owns, including one installed by a
// beginGC-driven growth mid-collection.
func (v *VM) Cards() *cardtable.Tables { return v.GC.Cards }

// New performs init_data_gc and init_stacks as one construction step
// (spec.md's VM construction, supplemented per SPEC_FULL.md): allocate the
// generation layout, size card tables to cover every generation's active
// and semispace zones, allocate the root context, and start the collector
// state with last_code_heap_scan = NURSERY and collecting_aging_again
// cleared.
func New(cfg Config) (*VM, error) {
	cfg = cfg.withDefaults()

	heap, err := genheap.New(genheap.Config{
		HasAging:    cfg.HasAging,
		NurserySize: cfg.NurserySize,
		AgingSize:   cfg.AgingSize,
		TenuredSize: cfg.TenuredSize,
	})
	if err != nil {
		return nil, err
	}

	lo, hi := heapAddressSpan(heap)
	cards := cardtable.New(lo, hi-lo)

	contexts, err := context.NewManager(cfg.DSSize, cfg.RSSize)
	if err != nil {
		heap.Release()
		return nil, err
	}

	state := gc.NewState(heap, cards, cfg.Model, cfg.Hooks)

	v := &VM{
		Heap:     heap,
		Contexts: contexts,
		GC:       state,
		Model:    cfg.Model,
		Logger:   cfg.Logger,
		roots: gc.Roots{
			Contexts: contexts,
			UserEnv:  make([]cell.Cell, cfg.UserEnvSize),
		},
	}
	return v, nil
}

// heapAddressSpan returns [lo, hi) covering every generation's active and
// semispace zone, so the card tables constructed at startup have room for
// every address objects in the heap can ever occupy without growing.
func heapAddressSpan(h *genheap.Heap) (lo, hi uintptr) {
	first := true
	consider := func(start, end uintptr) {
		if first {
			lo, hi = start, end
			first = false
			return
		}
		if start < lo {
			lo = start
		}
		if end > hi {
			hi = end
		}
	}
	for i := range h.Generations {
		g := &h.Generations[i]
		consider(g.Active.Start, g.Active.End)
		if g.Semispace != nil {
			consider(g.Semispace.Start, g.Semispace.End)
		}
	}
	return lo, hi
}

// RegisterConstant adds addr (the address of a global slot holding one of
// the interpreter's fixed constants, e.g. T or the bignum singletons) to
// the root set copy_roots walks first (spec.md §4.4 point 1).
func (v *VM) RegisterConstant(addr uintptr) {
	v.roots.Constants = append(v.roots.Constants, addr)
}

// RegisterLocal adds addr to gc_locals, the registered **cell handles
// copy_roots walks second (spec.md §4.4 point 2).
func (v *VM) RegisterLocal(addr uintptr) {
	v.roots.Locals = append(v.roots.Locals, addr)
}

// RegisterBignum adds addr to gc_bignums, the registered untagged
// bignum-pointer variables copy_roots walks third, untagged (spec.md §4.4
// point 3).
func (v *VM) RegisterBignum(addr uintptr) {
	v.roots.Bignums = append(v.roots.Bignums, addr)
}

// UserEnv returns the user-environment array root (spec.md's `userenv`),
// scanned last by copy_roots (spec.md §4.4 point 5).
func (v *VM) UserEnv() []cell.Cell { return v.roots.UserEnv }

// SetUserEnv overwrites slot i of the user environment.
func (v *VM) SetUserEnv(i int, c cell.Cell) { v.roots.UserEnv[i] = c }

// Release returns every generation's backing memory to the platform; the
// VM must not be used afterward.
func (v *VM) Release() error { return v.Heap.Release() }
