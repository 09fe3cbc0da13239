package gc

import (
	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

// copyNextFromNursery performs copy_next_from_nursery: trace one object's
// cells, copying only pointers within the nursery zone (the inlined,
// cheaper should_copy_p test for a nursery collection).
func (s *State) copyNextFromNursery(scan uintptr) (uintptr, error) {
	payloadStart := scan + s.Model.BinaryPayloadStart(scan)
	nursery := s.Heap.Nursery()
	for addr := scan + zone.WordSize; addr < payloadStart; addr += zone.WordSize {
		p := cell.ReadAt(addr)
		if p.Immediate() {
			continue
		}
		untagged := p.Untagged()
		if untagged >= nursery.Start && untagged < nursery.End {
			np, err := s.CopyObject(p)
			if err != nil {
				return 0, err
			}
			cell.WriteAt(addr, np)
		}
	}
	return scan + s.Model.UntaggedObjectSize(scan), nil
}

// copyNextFromAging performs copy_next_from_aging: copy pointers that are
// neither already in newspace nor in tenured.
func (s *State) copyNextFromAging(scan uintptr) (uintptr, error) {
	payloadStart := scan + s.Model.BinaryPayloadStart(scan)
	tenured := s.Heap.Gen(s.Heap.Tenured).Active
	for addr := scan + zone.WordSize; addr < payloadStart; addr += zone.WordSize {
		p := cell.ReadAt(addr)
		if p.Immediate() {
			continue
		}
		untagged := p.Untagged()
		if !s.Newspace.Contains(untagged) && !tenured.Contains(untagged) {
			np, err := s.CopyObject(p)
			if err != nil {
				return 0, err
			}
			cell.WriteAt(addr, np)
		}
	}
	return scan + s.Model.UntaggedObjectSize(scan), nil
}

// copyNextFromTenured performs copy_next_from_tenured: copy pointers not
// already in newspace, then mark the object's referenced code block.
func (s *State) copyNextFromTenured(scan uintptr) (uintptr, error) {
	payloadStart := scan + s.Model.BinaryPayloadStart(scan)
	for addr := scan + zone.WordSize; addr < payloadStart; addr += zone.WordSize {
		p := cell.ReadAt(addr)
		if p.Immediate() {
			continue
		}
		untagged := p.Untagged()
		if !s.Newspace.Contains(untagged) {
			np, err := s.CopyObject(p)
			if err != nil {
				return 0, err
			}
			cell.WriteAt(addr, np)
		}
	}
	s.Hooks.markObjectCodeBlock(scan)
	return scan + s.Model.UntaggedObjectSize(scan), nil
}

// CopyReachableObjects performs the Cheney scan-and-copy loop: scan walks
// newspace from its starting point to the ever-growing s.Newspace.Here,
// processing one object per step with the tracer matching the generation
// being collected (spec.md §4.3).
func (s *State) CopyReachableObjects(scan uintptr) error {
	return s.traceRange(scan, &s.Newspace.Here)
}
