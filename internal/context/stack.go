package context

import (
	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

// StackToArray performs stack_to_array: if top < bottom-CELLS the stack has
// underflowed and this returns ok=false; otherwise it allots an array of
// (top-bottom+CELLS)/CELLS cells in alloc, copies the stack contents in,
// and returns its address.
func StackToArray(alloc objmodel.Allotter, bottom, top uintptr) (addr uintptr, ok bool) {
	depth := int64(top) - int64(bottom) + int64(zone.WordSize)
	if depth < 0 {
		return 0, false
	}
	numCells := uintptr(depth) / zone.WordSize
	addr, ok = objmodel.AllotRecord(alloc, numCells)
	if !ok {
		return 0, false
	}
	for i := uintptr(0); i < numCells; i++ {
		src := bottom + i*zone.WordSize
		objmodel.SetCell(addr, i, cell.ReadAt(src))
	}
	return addr, true
}

// ArrayToStack performs array_to_stack: copy array's body to bottom and
// return bottom + length*CELLS - CELLS as the new top-of-stack pointer.
func ArrayToStack(m objmodel.Model, array uintptr, bottom uintptr) uintptr {
	length := objmodel.RecordLen(m, array)
	for i := uintptr(0); i < length; i++ {
		cell.WriteAt(bottom+i*zone.WordSize, objmodel.GetCell(array, i))
	}
	return bottom + length*zone.WordSize - zone.WordSize
}

// DataStack performs the `datastack` primitive: push a copy of the data
// stack as an array, or report ErrDataStackUnderflow.
func (c *Context) DataStack(alloc objmodel.Allotter) (uintptr, error) {
	addr, ok := StackToArray(alloc, c.DSRegion.Start, c.DSTop)
	if !ok {
		return 0, ErrDataStackUnderflow
	}
	return addr, nil
}

// RetainStack performs the `retainstack` primitive.
func (c *Context) RetainStack(alloc objmodel.Allotter) (uintptr, error) {
	addr, ok := StackToArray(alloc, c.RSRegion.Start, c.RSTop)
	if !ok {
		return 0, ErrRetainStackUnderflow
	}
	return addr, nil
}

// SetDataStack performs the `set-datastack` primitive: install array as the
// data stack.
func (c *Context) SetDataStack(m objmodel.Model, array uintptr) {
	c.DSTop = ArrayToStack(m, array, c.DSRegion.Start)
}

// SetRetainStack performs the `set-retainstack` primitive.
func (c *Context) SetRetainStack(m objmodel.Model, array uintptr) {
	c.RSTop = ArrayToStack(m, array, c.RSRegion.Start)
}

// CheckDataStack implements `check_datastack`, used by the hosted
// language's call( to verify a stack effect against the live stack: with
// the current data stack depth d (in cells) and an expected array of
// length `length` representing the bottom `length` cells of the stack
// after `in` are consumed and `out` produced, it reports whether the
// current stack's bottom length-in cells match array's first length-in
// cells and the height change (out-in) accounts for the remaining depth.
//
// Decided per DESIGN.md's resolution of spec.md's open question: array's
// cells [0, length-in) are compared against the live stack's bottom
// length-in cells (the portion call( leaves untouched).
func (c *Context) CheckDataStack(m objmodel.Model, array uintptr, in, out int64) bool {
	height := out - in
	length := int64(objmodel.RecordLen(m, array))
	depth := (int64(c.DSTop) - int64(c.DSRegion.Start) + int64(zone.WordSize)) / int64(zone.WordSize)
	if depth-height != length {
		return false
	}
	for i := int64(0); i < length-in; i++ {
		live := cell.ReadAt(c.DSRegion.Start + uintptr(i)*zone.WordSize)
		want := objmodel.GetCell(array, uintptr(i))
		if live != want {
			return false
		}
	}
	return true
}
