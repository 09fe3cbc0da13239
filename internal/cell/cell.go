// Package cell defines the tagged machine word that flows through every
// data and retain stack slot in the VM core.
//
// The low bits of a Cell carry a tag identifying whether the word is an
// immediate value (fixnum, boolean, ...) or a pointer into the object
// heap. Payload layout beyond the tag is owned by the external object
// system (see package objmodel); this package only knows enough to tell
// an immediate from a potentially-traced reference.
package cell

import "unsafe"

// Cell is a machine-word-sized tagged value (spec.md §3 "Cell").
type Cell uintptr

// ReadAt reads the Cell stored at addr, e.g. one data/retain-stack slot or
// one element of a registered-local handle.
func ReadAt(addr uintptr) Cell {
	return *(*Cell)(unsafe.Pointer(addr))
}

// WriteAt overwrites the Cell stored at addr. Used by the copier to
// rewrite a handle in place once the referent has been relocated
// (spec.md §4.3 copy_handle: "overwrite *h with the new tagged pointer").
func WriteAt(addr uintptr, c Cell) {
	*(*Cell)(unsafe.Pointer(addr)) = c
}

const (
	tagBits = 3
	tagMask = Cell(1<<tagBits) - 1

	// tagImmediate marks a Cell that carries no heap reference: fixnums,
	// booleans, and other values the GC never traces.
	tagImmediate = Cell(0)
)

// Tag returns the low tagBits bits of the cell.
func (c Cell) Tag() Cell { return c & tagMask }

// Untagged strips the tag, returning the raw address when c is a pointer.
func (c Cell) Untagged() uintptr { return uintptr(c &^ tagMask) }

// Immediate reports whether c carries no heap reference and should never
// be traced by the collector (spec.md §4.3 copy_handle: "if *h is
// immediate, no-op").
func (c Cell) Immediate() bool { return c.Tag() == tagImmediate }

// Retag rebuilds a Cell from an untagged address and the tag of an
// existing cell, mirroring the source's RETAG(pointer, TAG(original)).
func Retag(addr uintptr, tag Cell) Cell {
	return Cell(addr) | (tag & tagMask)
}

// Tagged builds an immediate-free Cell pointing at addr with the given tag.
// tag must be non-zero; a zero tag would make the result indistinguishable
// from an immediate.
func Tagged(addr uintptr, tag Cell) Cell {
	return Retag(addr, tag)
}
