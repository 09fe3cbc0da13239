package context

import (
	"testing"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(4096, 4096)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerStartsEmpty(t *testing.T) {
	m := newTestManager(t)
	head := m.Current()
	if head == nil {
		t.Fatalf("NewManager must start with a root context")
	}
	if _, err := head.DataStack(head.DSRegion); err != nil {
		t.Fatalf("a fresh context's data stack must report empty, not underflow: %v", err)
	}
}

func TestDataStackRoundTrip(t *testing.T) {
	m := newTestManager(t)
	head := m.Current()
	model := objmodel.RefModel{}

	vals := []cell.Cell{cell.Cell(42 << 3), cell.Tagged(0x1234, 2), cell.Cell(1 << 3)}
	arr, ok := objmodel.AllotRecord(head.DSRegion, uintptr(len(vals)))
	if !ok {
		t.Fatalf("AllotRecord failed")
	}
	for i, v := range vals {
		objmodel.SetCell(arr, uintptr(i), v)
	}

	head.SetDataStack(model, arr)

	back, err := head.DataStack(head.DSRegion)
	if err != nil {
		t.Fatalf("DataStack: %v", err)
	}
	if objmodel.RecordLen(model, back) != uintptr(len(vals)) {
		t.Fatalf("round-tripped stack has length %d, want %d", objmodel.RecordLen(model, back), len(vals))
	}
	for i, want := range vals {
		if got := objmodel.GetCell(back, uintptr(i)); got != want {
			t.Fatalf("slot %d = %#x, want %#x", i, got, want)
		}
	}
}

func TestDataStackUnderflow(t *testing.T) {
	m := newTestManager(t)
	head := m.Current()

	// Push the stack pointer below bot - CELLS to simulate underflow.
	head.DSTop = head.DSRegion.Start - 2*zone.WordSize

	if _, err := head.DataStack(head.DSRegion); err != ErrDataStackUnderflow {
		t.Fatalf("DataStack = %v, want ErrDataStackUnderflow", err)
	}
}

func TestCheckDataStack(t *testing.T) {
	m := newTestManager(t)
	head := m.Current()
	model := objmodel.RefModel{}

	stack := []cell.Cell{cell.Cell(1 << 3), cell.Cell(2 << 3), cell.Cell(3 << 3)}
	arr, _ := objmodel.AllotRecord(head.DSRegion, uintptr(len(stack)))
	for i, v := range stack {
		objmodel.SetCell(arr, uintptr(i), v)
	}
	head.SetDataStack(model, arr)

	matching, _ := objmodel.AllotRecord(head.DSRegion, 1)
	objmodel.SetCell(matching, 0, cell.Cell(1<<3))
	if !head.CheckDataStack(model, matching, 0, 2) {
		t.Fatalf("expected check_datastack to report true for a matching prefix")
	}

	mismatched, _ := objmodel.AllotRecord(head.DSRegion, 1)
	objmodel.SetCell(mismatched, 0, cell.Cell(9<<3))
	if head.CheckDataStack(model, mismatched, 0, 2) {
		t.Fatalf("expected check_datastack to report false for a mismatched prefix")
	}
}

func TestNestUnnest(t *testing.T) {
	m := newTestManager(t)
	root := m.Current()
	root.DSTop = root.DSRegion.Start // one cell pushed

	currentCallback := cell.Tagged(0x500, 1)
	catchStack := cell.Tagged(0x600, 1)

	nested, err := m.Nest(currentCallback, catchStack)
	if err != nil {
		t.Fatalf("Nest: %v", err)
	}
	if m.Current() != nested {
		t.Fatalf("Nest must make the new context the head")
	}
	if nested.Next != root {
		t.Fatalf("the nested context must chain back to root")
	}

	ds, rs, cb, cs := m.Unnest()
	if ds != root.DSTop {
		t.Fatalf("Unnest returned ds=%#x, want the saved %#x", ds, root.DSTop)
	}
	if cb != currentCallback || cs != catchStack {
		t.Fatalf("Unnest did not restore the saved callback/catchstack values")
	}
	_ = rs
	if m.Current() != root {
		t.Fatalf("Unnest must restore root as the head")
	}
}

func TestFixStacksResetsOutOfRangePointer(t *testing.T) {
	m := newTestManager(t)
	head := m.Current()

	head.DSTop = head.DSRegion.End // past the top, should be reset
	head.FixStacks()
	if head.DSTop != head.DSRegion.Start-zone.WordSize {
		t.Fatalf("FixStacks did not reset an out-of-range data stack pointer")
	}
}
