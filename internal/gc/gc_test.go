package gc

import (
	"testing"

	"github.com/stephenalindsay/factorcore/internal/cardtable"
	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/context"
	"github.com/stephenalindsay/factorcore/internal/genheap"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
)

// testClock returns a deterministic, monotonically increasing clock so
// tests don't depend on wall-clock time.
func testClock() func() uint64 {
	var t uint64
	return func() uint64 {
		t++
		return t
	}
}

func heapSpan(h *genheap.Heap) (lo, hi uintptr) {
	first := true
	consider := func(a, b uintptr) {
		if first {
			lo, hi, first = a, b, false
			return
		}
		if a < lo {
			lo = a
		}
		if b > hi {
			hi = b
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

func newTestState(t *testing.T, cfg genheap.Config) (*State, *genheap.Heap, *context.Manager) {
	t.Helper()
	h, err := genheap.New(cfg)
	if err != nil {
		t.Fatalf("genheap.New: %v", err)
	}
	t.Cleanup(func() { h.Release() })

	lo, hi := heapSpan(h)
	cards := cardtable.New(lo, hi-lo)

	ctxMgr, err := context.NewManager(1024, 1024)
	if err != nil {
		t.Fatalf("context.NewManager: %v", err)
	}

	s := NewState(h, cards, objmodel.RefModel{}, Hooks{})
	return s, h, ctxMgr
}

func TestMinorGCPromotesReachableObject(t *testing.T) {
	s, h, ctxMgr := newTestState(t, genheap.Config{
		HasAging:    false,
		NurserySize: 256,
		TenuredSize: 4096,
	})

	addr, ok := objmodel.AllotRecord(h.Nursery(), 1)
	if !ok {
		t.Fatalf("AllotRecord failed")
	}
	objmodel.SetCell(addr, 0, cell.Cell(7<<3))

	tagged := cell.Tagged(addr, 1)
	roots := &Roots{
		Contexts: ctxMgr,
		UserEnv:  []cell.Cell{tagged},
	}

	if err := s.GarbageCollection(genheap.Nursery, false, 0, roots, testClock()); err != nil {
		t.Fatalf("GarbageCollection: %v", err)
	}

	moved := roots.UserEnv[0]
	if moved.Tag() != tagged.Tag() {
		t.Fatalf("tag must survive relocation: got %d, want %d", moved.Tag(), tagged.Tag())
	}
	if h.Nursery().Contains(moved.Untagged()) {
		t.Fatalf("the object should have been promoted out of the nursery")
	}
	if !h.Gen(h.Tenured).Active.Contains(moved.Untagged()) {
		t.Fatalf("the object should have been promoted into tenured")
	}
	if objmodel.GetCell(moved.Untagged(), 0) != cell.Cell(7<<3) {
		t.Fatalf("the object's payload did not survive the copy")
	}
	if h.Nursery().Used() != 0 {
		t.Fatalf("end_gc must reset the collected generation, Used() = %d", h.Nursery().Used())
	}

	gs := s.Stats.PerGen[genheap.Nursery]
	if gs.Collections != 1 {
		t.Fatalf("Collections = %d, want 1", gs.Collections)
	}
	if gs.ObjectCount != 1 {
		t.Fatalf("ObjectCount = %d, want 1", gs.ObjectCount)
	}
}

func TestGarbageCollectionRejectsWhenGCOff(t *testing.T) {
	s, _, ctxMgr := newTestState(t, genheap.Config{
		HasAging:    false,
		NurserySize: 256,
		TenuredSize: 4096,
	})
	s.GCOff = true

	roots := &Roots{Contexts: ctxMgr}
	if err := s.GarbageCollection(genheap.Nursery, false, 0, roots, testClock()); err != ErrGCDisabled {
		t.Fatalf("GarbageCollection with gc_off = %v, want ErrGCDisabled", err)
	}
}

func TestEscalationGrowsTenuredOnOverflow(t *testing.T) {
	s, h, ctxMgr := newTestState(t, genheap.Config{
		HasAging:    false,
		NurserySize: 256,
		TenuredSize: 32, // deliberately too small to hold the live object
	})

	addr, ok := objmodel.AllotRecord(h.Nursery(), 4)
	if !ok {
		t.Fatalf("AllotRecord failed")
	}
	tagged := cell.Tagged(addr, 1)
	roots := &Roots{Contexts: ctxMgr, UserEnv: []cell.Cell{tagged}}

	oldTenuredSize := h.Gen(h.Tenured).Active.Size()

	if err := s.GarbageCollection(genheap.Nursery, false, 0, roots, testClock()); err != nil {
		t.Fatalf("GarbageCollection: %v", err)
	}

	if h.Gen(h.Tenured).Active.Size() <= oldTenuredSize {
		t.Fatalf("tenured generation should have grown past %d, got %d", oldTenuredSize, h.Gen(h.Tenured).Active.Size())
	}
	moved := roots.UserEnv[0]
	if !h.Gen(h.Tenured).Active.Contains(moved.Untagged()) {
		t.Fatalf("the object should have landed in the grown tenured generation")
	}
}
