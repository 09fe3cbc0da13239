// Package objmodel defines the object-layout oracle the GC core consumes
// from the (out of scope) external object system, plus a small reference
// implementation used by tests and cmd/factorvm to exercise real copies.
//
// spec.md's Non-goals exclude "object representation details beyond what
// the GC must traverse"; this package is that minimal traversable
// representation, not a production object system.
package objmodel

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/stephenalindsay/factorcore/internal/cell"
)

// WordSize is the machine word size in bytes.
const WordSize = unsafe.Sizeof(uintptr(0))

// Model is the external object-system oracle the GC core consumes (spec.md
// §6 "Consumed" interfaces: untagged_object_size, binary_payload_start,
// header.forwarding_pointer_p/forwarding_pointer/forward_to/check_header).
type Model interface {
	// UntaggedObjectSize returns the total byte size of the object whose
	// header starts at addr, including the header word itself.
	UntaggedObjectSize(addr uintptr) uintptr

	// BinaryPayloadStart returns the byte offset from addr before which
	// cells are tagged references to trace, and after which bytes are
	// opaque (spec.md §3 "Object").
	BinaryPayloadStart(addr uintptr) uintptr

	// ForwardingPointerP reports whether the header at addr has been
	// overwritten with a forwarding marker during GC.
	ForwardingPointerP(addr uintptr) bool

	// ForwardingPointer returns the new address recorded in the first
	// body word, valid only when ForwardingPointerP(addr) is true.
	ForwardingPointer(addr uintptr) uintptr

	// ForwardTo installs a forwarding marker at addr pointing at newAddr.
	ForwardTo(addr uintptr, newAddr uintptr)

	// CheckHeader validates that the header at addr looks live, used as a
	// debug-build sanity check (spec.md §7 "Heap sanity").
	CheckHeader(addr uintptr) error
}

const (
	forwardingBit = uintptr(1)
	tagShift      = 1
	tagBits       = 8
	tagMaskBits   = uintptr(1)<<tagBits - 1
	sizeShift     = tagShift + tagBits
)

// Kind distinguishes, for the reference model only, whether an object's
// body cells are all traced references or entirely opaque payload (the
// bignum case in spec.md §4.4 point 3).
type Kind uint8

const (
	// KindRecord objects trace every cell between the header and the end
	// of the object.
	KindRecord Kind = 1
	// KindRaw objects (standing in for bignums and other untagged
	// payloads) have no traced cells at all.
	KindRaw Kind = 2
)

// RefModel is a minimal reference object system: one header word per
// object, followed either by traced cells (KindRecord) or opaque bytes
// (KindRaw). It implements Model directly against process memory via
// unsafe, manipulating heap words in place like a write barrier would.
type RefModel struct{}

func headerPtr(addr uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(addr))
}

func bodyWordPtr(addr uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(addr + WordSize))
}

func packHeader(kind Kind, totalWords uintptr) uintptr {
	return (totalWords << sizeShift) | (uintptr(kind) << tagShift)
}

func (RefModel) kindAndWords(addr uintptr) (Kind, uintptr) {
	h := *headerPtr(addr)
	kind := Kind((h >> tagShift) & tagMaskBits)
	words := h >> sizeShift
	return kind, words
}

// UntaggedObjectSize implements Model.
func (m RefModel) UntaggedObjectSize(addr uintptr) uintptr {
	_, words := m.kindAndWords(addr)
	return words * WordSize
}

// BinaryPayloadStart implements Model.
func (m RefModel) BinaryPayloadStart(addr uintptr) uintptr {
	kind, words := m.kindAndWords(addr)
	switch kind {
	case KindRecord:
		return words * WordSize
	default: // KindRaw: only the header is traced-region, rest is opaque
		return WordSize
	}
}

// ForwardingPointerP implements Model.
func (RefModel) ForwardingPointerP(addr uintptr) bool {
	return *headerPtr(addr)&forwardingBit != 0
}

// ForwardingPointer implements Model.
func (RefModel) ForwardingPointer(addr uintptr) uintptr {
	return *bodyWordPtr(addr)
}

// ForwardTo implements Model.
func (RefModel) ForwardTo(addr uintptr, newAddr uintptr) {
	*bodyWordPtr(addr) = newAddr
	*headerPtr(addr) = forwardingBit
}

// CheckHeader implements Model.
func (m RefModel) CheckHeader(addr uintptr) error {
	kind, words := m.kindAndWords(addr)
	if kind != KindRecord && kind != KindRaw {
		return errors.Errorf("objmodel: bad header kind %d at %#x", kind, addr)
	}
	if words == 0 {
		return errors.Errorf("objmodel: zero-size header at %#x", addr)
	}
	return nil
}

// Allotter is satisfied by zone.Segment; kept narrow so objmodel doesn't
// need to import the zone package's full surface.
type Allotter interface {
	Allot(size uintptr) (uintptr, bool)
}

// AllotRecord allocates a KindRecord object of numCells cells (plus the
// header word) in z, zeroing the cells, and returns its address.
func AllotRecord(z Allotter, numCells uintptr) (uintptr, bool) {
	totalWords := numCells + 1
	addr, ok := z.Allot(totalWords * WordSize)
	if !ok {
		return 0, false
	}
	*headerPtr(addr) = packHeader(KindRecord, totalWords)
	for i := uintptr(0); i < numCells; i++ {
		*(*uintptr)(unsafe.Pointer(addr + WordSize + i*WordSize)) = uintptr(0)
	}
	return addr, true
}

// SetCell writes a cell into slot i (0-based, counted after the header) of
// the record object at addr.
func SetCell(addr uintptr, i uintptr, c cell.Cell) {
	*(*uintptr)(unsafe.Pointer(addr + WordSize + i*WordSize)) = uintptr(c)
}

// GetCell reads slot i of the record object at addr.
func GetCell(addr uintptr, i uintptr) cell.Cell {
	return cell.Cell(*(*uintptr)(unsafe.Pointer(addr + WordSize + i*WordSize)))
}

// RecordLen returns the number of cells in the KindRecord object at addr,
// i.e. its capacity as an array.
func RecordLen(m Model, addr uintptr) uintptr {
	total := m.UntaggedObjectSize(addr)
	return total/WordSize - 1
}

// AllotRaw allocates a KindRaw object with byteLen opaque payload bytes
// (standing in for a bignum) and returns its address.
func AllotRaw(z Allotter, byteLen uintptr) (uintptr, bool) {
	totalWords := (byteLen+WordSize-1)/WordSize + 1
	addr, ok := z.Allot(totalWords * WordSize)
	if !ok {
		return 0, false
	}
	*headerPtr(addr) = packHeader(KindRaw, totalWords)
	return addr, true
}
