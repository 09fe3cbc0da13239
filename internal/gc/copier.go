package gc

import (
	"unsafe"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/genheap"
)

// ShouldCopy implements should_copy_p: whether the untagged pointer p must
// be relocated into newspace for the generation currently being collected
// (spec.md §4.3).
func (s *State) ShouldCopy(p uintptr) bool {
	if s.Newspace.Contains(p) {
		return false
	}
	switch {
	case s.CollectingGen == s.Heap.Tenured:
		return true
	case s.Heap.Aging >= 0 && s.CollectingGen == s.Heap.Aging:
		return !s.Heap.Gen(s.Heap.Tenured).Active.Contains(p)
	case s.CollectingGen == genheap.Nursery:
		return s.Heap.Nursery().Contains(p)
	default:
		return false
	}
}

// copyUntaggedObjectImpl performs copy_untagged_object_impl: bump-allocate
// size bytes in newspace and memcpy the old body in, or fail with
// ErrNewspaceFull (the copier's non-local exit, spec.md §5).
func (s *State) copyUntaggedObjectImpl(p uintptr, size uintptr) (uintptr, error) {
	newp, ok := s.Newspace.Allot(size)
	if !ok {
		return 0, ErrNewspaceFull
	}
	copyBytes(newp, p, size)

	gs := &s.Stats.PerGen[s.CollectingGen]
	gs.ObjectCount++
	gs.BytesCopied += uint64(size)

	return newp, nil
}

// copyObjectImpl performs copy_object_impl: copy the object's bytes and
// install a forwarding pointer at the old location.
func (s *State) copyObjectImpl(untagged uintptr) (uintptr, error) {
	size := s.Model.UntaggedObjectSize(untagged)
	newp, err := s.copyUntaggedObjectImpl(untagged, size)
	if err != nil {
		return 0, err
	}
	s.Model.ForwardTo(untagged, newp)
	return newp, nil
}

// ResolveForwarding follows a chain of forwarding pointers (spec.md §4.3
// resolve_forwarding / §8 property 3, forwarding idempotence): if untagged
// is itself forwarded, chase the chain; otherwise copy it if it's still
// in-scope for the generation being collected.
//
// Per the Open Question in spec.md §9 (resolved in DESIGN.md): a
// forwarding pointer installed by an abandoned, overflow-retried
// collection is chased exactly the same way as one from the current
// collection. The abandoned newspace is never reused as allocation space
// before end_gc resets younger generations, so this is always safe.
func (s *State) ResolveForwarding(untagged uintptr) (uintptr, error) {
	if s.Model.ForwardingPointerP(untagged) {
		return s.ResolveForwarding(s.Model.ForwardingPointer(untagged))
	}
	if err := s.Model.CheckHeader(untagged); err != nil {
		return 0, err
	}
	if s.ShouldCopy(untagged) {
		return s.copyObjectImpl(untagged)
	}
	return untagged, nil
}

// copyUntaggedObject performs the template<T> copy_untagged_object: chase
// any existing forwarding pointer, else copy fresh.
func (s *State) copyUntaggedObject(untagged uintptr) (uintptr, error) {
	if s.Model.ForwardingPointerP(untagged) {
		return s.ResolveForwarding(s.Model.ForwardingPointer(untagged))
	}
	if err := s.Model.CheckHeader(untagged); err != nil {
		return 0, err
	}
	return s.copyObjectImpl(untagged)
}

// CopyObject performs copy_object: copy the tagged pointer's referent and
// retag the result with the original's tag.
func (s *State) CopyObject(p cell.Cell) (cell.Cell, error) {
	newUntagged, err := s.copyUntaggedObject(p.Untagged())
	if err != nil {
		return 0, err
	}
	return cell.Retag(newUntagged, p.Tag()), nil
}

// CopyUntaggedHandle copies a bignum-style root: *addr holds an untagged
// pointer (or 0/null), which is copied (untagged, no retagging) and
// written back (spec.md §4.4 point 3, copy_registered_bignums).
func (s *State) CopyUntaggedHandle(addr uintptr) error {
	p := *(*uintptr)(unsafe.Pointer(addr))
	if p == 0 {
		return nil
	}
	if !s.ShouldCopy(p) {
		return nil
	}
	newp, err := s.copyUntaggedObject(p)
	if err != nil {
		return err
	}
	*(*uintptr)(unsafe.Pointer(addr)) = newp
	return nil
}

// CopyHandle performs copy_handle: if *handle is immediate, no-op; else
// relocate its referent if in-scope and rewrite the handle in place.
func (s *State) CopyHandle(addr uintptr) error {
	p := cell.ReadAt(addr)
	if p.Immediate() {
		return nil
	}
	if !s.ShouldCopy(p.Untagged()) {
		return nil
	}
	newp, err := s.CopyObject(p)
	if err != nil {
		return err
	}
	cell.WriteAt(addr, newp)
	return nil
}

func copyBytes(dst, src, size uintptr) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), size)
	copy(d, s)
}
