package vm

import (
	"go.uber.org/zap"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/context"
	"github.com/stephenalindsay/factorcore/internal/gc"
	"github.com/stephenalindsay/factorcore/internal/genheap"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
)

// GC performs the `gc` primitive: a synchronous full collection
// (garbage_collection(TENURED, false, 0), spec.md §4.7).
func (v *VM) GC() error {
	return v.collect(v.Heap.Tenured, false, 0)
}

// MinorGC performs the `minor-gc` primitive: a nursery-only collection,
// exposed as its own entry point distinct from `gc` (data_gc.cpp's
// minor_gc(), restored per SPEC_FULL.md's supplemented-features section).
func (v *VM) MinorGC() error {
	return v.collect(genheap.Nursery, false, 0)
}

func (v *VM) collect(gen genheap.Gen, growing bool, requestedBytes uintptr) error {
	err := v.GC.GarbageCollection(gen, growing, requestedBytes, &v.roots, nil)
	gs := v.GC.Stats.PerGen[v.GC.CollectingGen]
	fields := []zap.Field{
		zap.Int("generation", int(gen)),
		zap.Uint64("collections", gs.Collections),
		zap.Uint64("gc_time_micros", gs.GCTime),
		zap.Uint64("object_count", gs.ObjectCount),
		zap.Uint64("bytes_copied", gs.BytesCopied),
	}
	if err != nil {
		v.Logger.Error("gc cycle failed", append(fields, zap.Error(err))...)
		return err
	}
	v.Logger.Info("gc cycle complete", fields...)
	return nil
}

// GCStats performs the `gc-stats` primitive: return the packed counter
// array, also logging it as a structured record (SPEC_FULL.md's DOMAIN
// STACK: stats visible to both hosted code and operational logs).
func (v *VM) GCStats() gc.Packed {
	packed := v.GC.Stats.Pack()
	v.Logger.Info("gc-stats",
		zap.Uint64("total_gc_time_micros", packed.TotalGCTime),
		zap.Uint64("cards_scanned", packed.CardsScanned),
		zap.Uint64("decks_scanned", packed.DecksScanned),
		zap.Uint64("card_scan_time_micros", packed.CardScanTime),
		zap.Uint64("code_heap_scans", packed.CodeHeapScans),
	)
	return packed
}

// ClearGCStats performs the `clear-gc-stats` primitive.
func (v *VM) ClearGCStats() { v.GC.Stats.Clear() }

// SetGCEnabled toggles gc_off, defaulting to enabled at construction
// (SPEC_FULL.md's supplemented gc_off feature).
func (v *VM) SetGCEnabled(enabled bool) { v.GC.GCOff = !enabled }

// Become performs the `become` primitive (spec.md §4.7): install a
// forwarding pointer from each differing oldArr[i] to newArr[i], run a
// full collection to chase those forwardings and rewrite every live
// reference, then request a recompile of all unoptimized words.
func (v *VM) Become(oldArr, newArr []cell.Cell) error {
	if len(oldArr) != len(newArr) {
		return ErrInvalidBecome
	}
	for i := range oldArr {
		if oldArr[i] != newArr[i] {
			v.Model.ForwardTo(oldArr[i].Untagged(), newArr[i].Untagged())
		}
	}
	if err := v.GC(); err != nil {
		return err
	}
	v.GC.CompileAllWords()
	v.Logger.Info("become complete", zap.Int("count", len(oldArr)))
	return nil
}

// DataStack performs the `datastack` primitive: a copy of the current
// context's data stack as a slice, or context.ErrDataStackUnderflow.
func (v *VM) DataStack() ([]cell.Cell, error) {
	return v.stackSnapshot(func(c *context.Context) (uintptr, error) {
		return c.DataStack(v.Heap.Nursery())
	})
}

// RetainStack performs the `retainstack` primitive.
func (v *VM) RetainStack() ([]cell.Cell, error) {
	return v.stackSnapshot(func(c *context.Context) (uintptr, error) {
		return c.RetainStack(v.Heap.Nursery())
	})
}

func (v *VM) stackSnapshot(toArray func(*context.Context) (uintptr, error)) ([]cell.Cell, error) {
	addr, err := toArray(v.Contexts.Current())
	if err != nil {
		return nil, err
	}
	length := objmodel.RecordLen(v.Model, addr)
	out := make([]cell.Cell, length)
	for i := uintptr(0); i < length; i++ {
		out[i] = objmodel.GetCell(addr, i)
	}
	return out, nil
}

// SetDataStack performs the `set-datastack` primitive: install vals as the
// current context's data stack.
func (v *VM) SetDataStack(vals []cell.Cell) {
	addr := v.allotArray(vals)
	v.Contexts.Current().SetDataStack(v.Model, addr)
}

// SetRetainStack performs the `set-retainstack` primitive.
func (v *VM) SetRetainStack(vals []cell.Cell) {
	addr := v.allotArray(vals)
	v.Contexts.Current().SetRetainStack(v.Model, addr)
}

func (v *VM) allotArray(vals []cell.Cell) uintptr {
	addr, ok := objmodel.AllotRecord(v.Heap.Nursery(), uintptr(len(vals)))
	if !ok {
		if err := v.MinorGC(); err != nil {
			v.Logger.Error("allotArray: minor gc failed", zap.Error(err))
		}
		addr, ok = objmodel.AllotRecord(v.Heap.Nursery(), uintptr(len(vals)))
		if !ok {
			panic("vm: nursery cannot fit stack array even after a minor gc")
		}
	}
	for i, c := range vals {
		objmodel.SetCell(addr, uintptr(i), c)
	}
	return addr
}

// CheckDataStack performs the `check_datastack` primitive: verify the
// current data stack matches expected in the slots `call(` leaves
// untouched after consuming `in` and producing `out` (spec.md §4.6).
func (v *VM) CheckDataStack(expected []cell.Cell, in, out int64) bool {
	addr, ok := objmodel.AllotRecord(v.Heap.Nursery(), uintptr(len(expected)))
	if !ok {
		panic("vm: nursery cannot fit check_datastack's comparison array")
	}
	for i, c := range expected {
		objmodel.SetCell(addr, uintptr(i), c)
	}
	return v.Contexts.Current().CheckDataStack(v.Model, addr, in, out)
}
