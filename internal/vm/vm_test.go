package vm

import (
	"testing"

	"go.uber.org/zap"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	v, err := New(Config{
		DSSize:      1024,
		RSSize:      1024,
		HasAging:    true,
		NurserySize: 4096,
		AgingSize:   4096,
		TenuredSize: 8192,
		UserEnvSize: 2,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { v.Release() })
	return v
}

func TestDataStackRoundTrip(t *testing.T) {
	v := newTestVM(t)

	vals := []cell.Cell{cell.Cell(42 << 3), cell.Cell(99 << 3), cell.Cell(1 << 3)}
	v.SetDataStack(vals)

	got, err := v.DataStack()
	if err != nil {
		t.Fatalf("DataStack: %v", err)
	}
	if len(got) != len(vals) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(vals))
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("slot %d = %#x, want %#x", i, got[i], vals[i])
		}
	}
}

func TestDataStackEmptyIsNotUnderflow(t *testing.T) {
	v := newTestVM(t)

	got, err := v.DataStack()
	if err != nil {
		t.Fatalf("an empty stack must not report underflow: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0", len(got))
	}
}

func TestMinorGCAndGC(t *testing.T) {
	v := newTestVM(t)

	if err := v.MinorGC(); err != nil {
		t.Fatalf("MinorGC: %v", err)
	}
	if err := v.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	packed := v.GCStats()
	if packed.PerGen[0].Collections != 1 {
		t.Fatalf("nursery collections = %d, want 1", packed.PerGen[0].Collections)
	}

	v.ClearGCStats()
	packed = v.GCStats()
	if packed.TotalGCTime != 0 || packed.PerGen[0].Collections != 0 {
		t.Fatalf("ClearGCStats did not zero the counters: %+v", packed)
	}
}

func TestSetGCEnabled(t *testing.T) {
	v := newTestVM(t)
	v.SetGCEnabled(false)

	if err := v.GC(); err == nil {
		t.Fatalf("expected GC to fail while disabled")
	}

	v.SetGCEnabled(true)
	if err := v.GC(); err != nil {
		t.Fatalf("GC after re-enabling: %v", err)
	}
}

func TestBecomeRejectsUnequalLengths(t *testing.T) {
	v := newTestVM(t)
	if err := v.Become([]cell.Cell{1}, nil); err != ErrInvalidBecome {
		t.Fatalf("Become with unequal lengths = %v, want ErrInvalidBecome", err)
	}
}

func TestBecomeCoalescesReferences(t *testing.T) {
	v := newTestVM(t)

	oldAddr, ok := objmodel.AllotRecord(v.Heap.Nursery(), 1)
	if !ok {
		t.Fatalf("AllotRecord failed for oldAddr")
	}
	objmodel.SetCell(oldAddr, 0, cell.Cell(1<<3))

	newAddr, ok := objmodel.AllotRecord(v.Heap.Nursery(), 1)
	if !ok {
		t.Fatalf("AllotRecord failed for newAddr")
	}
	objmodel.SetCell(newAddr, 0, cell.Cell(99<<3))

	taggedOld := cell.Tagged(oldAddr, 1)
	taggedNew := cell.Tagged(newAddr, 1)
	v.SetUserEnv(0, taggedOld)

	if err := v.Become([]cell.Cell{taggedOld}, []cell.Cell{taggedNew}); err != nil {
		t.Fatalf("Become: %v", err)
	}

	resolved := v.UserEnv()[0]
	if objmodel.GetCell(resolved.Untagged(), 0) != cell.Cell(99<<3) {
		t.Fatalf("the root should now resolve to the new object's payload, got %#x", objmodel.GetCell(resolved.Untagged(), 0))
	}
}
