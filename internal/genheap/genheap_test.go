package genheap

import "testing"

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	h, err := New(Config{
		HasAging:    true,
		NurserySize: 4096,
		AgingSize:   4096,
		TenuredSize: 4096,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Release() })
	return h
}

func TestGenerationIndices(t *testing.T) {
	h := newTestHeap(t)
	if h.Aging != 1 {
		t.Fatalf("Aging = %d, want 1", h.Aging)
	}
	if h.Tenured != 2 {
		t.Fatalf("Tenured = %d, want 2", h.Tenured)
	}
	if h.GenCount != 3 {
		t.Fatalf("GenCount = %d, want 3", h.GenCount)
	}
}

func TestNoAgingHasTwoGenerations(t *testing.T) {
	h, err := New(Config{HasAging: false, NurserySize: 4096, TenuredSize: 4096})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Release()

	if h.Aging != -1 {
		t.Fatalf("Aging = %d, want -1 when HasAging is false", h.Aging)
	}
	if h.Tenured != 1 {
		t.Fatalf("Tenured = %d, want 1", h.Tenured)
	}
	if h.CollectingAccumulationGen(Nursery) {
		t.Fatalf("the nursery must never be an accumulation generation")
	}
	if !h.CollectingAccumulationGen(h.Tenured) {
		t.Fatalf("tenured must be an accumulation generation")
	}
}

func TestCollectingAccumulationGen(t *testing.T) {
	h := newTestHeap(t)
	if h.CollectingAccumulationGen(Nursery) {
		t.Fatalf("nursery is not an accumulation generation")
	}
	if !h.CollectingAccumulationGen(h.Aging) {
		t.Fatalf("aging must be an accumulation generation")
	}
	if !h.CollectingAccumulationGen(h.Tenured) {
		t.Fatalf("tenured must be an accumulation generation")
	}
}

func TestRotateSwapsActiveAndSemispace(t *testing.T) {
	h := newTestHeap(t)
	gen := h.Gen(h.Tenured)
	oldActive, oldSemispace := gen.Active, gen.Semispace

	gen.Rotate()
	if gen.Active != oldSemispace || gen.Semispace != oldActive {
		t.Fatalf("Rotate did not swap Active/Semispace")
	}

	gen.Rotate()
	if gen.Active != oldActive || gen.Semispace != oldSemispace {
		t.Fatalf("a second Rotate should restore the original pairing")
	}
}

func TestResetGenerationsClampsToHi(t *testing.T) {
	h := newTestHeap(t)
	for g := Nursery; g < h.GenCount; g++ {
		if _, ok := h.Gen(g).Active.Allot(32); !ok {
			t.Fatalf("Allot failed on generation %d", g)
		}
	}

	h.ResetGenerations(Nursery, h.Aging)

	if h.Gen(Nursery).Active.Used() != 0 {
		t.Fatalf("nursery should have been reset")
	}
	if h.Gen(h.Aging).Active.Used() != 0 {
		t.Fatalf("aging should have been reset")
	}
	if h.Gen(h.Tenured).Active.Used() == 0 {
		t.Fatalf("tenured should NOT have been reset (outside [lo, hi])")
	}
}

func TestGrowTenuredReturnsOldZonesAndInstallsLarger(t *testing.T) {
	h := newTestHeap(t)
	oldActive := h.Gen(h.Tenured).Active
	oldSize := oldActive.Size()

	returnedActive, returnedSemispace, err := h.GrowTenured(1024)
	if err != nil {
		t.Fatalf("GrowTenured: %v", err)
	}
	if returnedActive != oldActive {
		t.Fatalf("GrowTenured must return the zone it replaced")
	}
	defer returnedActive.Release()
	defer returnedSemispace.Release()

	newActive := h.Gen(h.Tenured).Active
	if newActive == oldActive {
		t.Fatalf("the generation's Active zone must be replaced")
	}
	if newActive.Size() <= oldSize {
		t.Fatalf("grown tenured zone (%d) should be larger than the old one (%d)", newActive.Size(), oldSize)
	}
}
