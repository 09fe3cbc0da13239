package gc

import (
	"unsafe"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/context"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

// Roots is everything copy_roots walks at the start of a collection
// (spec.md §4.4), gathered from the VM: the four interpreter constants,
// the registered local/bignum handle stacks, the context chain, and the
// user environment.
type Roots struct {
	Constants []uintptr // addresses of T, bignum_zero, bignum_pos_one, bignum_neg_one
	Locals    []uintptr // gc_locals: addresses of registered **cell handles
	Bignums   []uintptr // gc_bignums: addresses of registered untagged bignum-pointer vars
	Contexts  *context.Manager
	UserEnv   []cell.Cell
}

// CopyRoots performs copy_roots in the exact order of spec.md §4.4:
// constants, registered locals, registered bignums, then (unless
// compacting) the context chain's stacks and saved slots, then the user
// environment.
func CopyRoots(s *State, r *Roots) error {
	for _, addr := range r.Constants {
		if err := s.CopyHandle(addr); err != nil {
			return err
		}
	}
	for _, addr := range r.Locals {
		if err := s.CopyHandle(addr); err != nil {
			return err
		}
	}
	for _, addr := range r.Bignums {
		if err := s.CopyUntaggedHandle(addr); err != nil {
			return err
		}
	}

	if !s.Compacting {
		r.Contexts.SaveStacks()
		for ctx := r.Contexts.Chain(); ctx != nil; ctx = ctx.Next {
			if err := s.copyStackElements(ctx.DSRegion.Start, ctx.DSTop); err != nil {
				return err
			}
			if err := s.copyStackElements(ctx.RSRegion.Start, ctx.RSTop); err != nil {
				return err
			}
			if err := s.CopyHandle(ctx.CatchStackAddr()); err != nil {
				return err
			}
			if err := s.CopyHandle(ctx.CurrentCallbackAddr()); err != nil {
				return err
			}
			s.Hooks.markActiveBlocks(ctx)
		}
	}

	for i := range r.UserEnv {
		addr := uintptr(unsafe.Pointer(&r.UserEnv[i]))
		if err := s.CopyHandle(addr); err != nil {
			return err
		}
	}
	return nil
}

// copyStackElements performs copy_stack_elements: copy every tagged
// pointer in [start, top] (inclusive, one cell at a time).
func (s *State) copyStackElements(start, top uintptr) error {
	for addr := start; addr <= top; addr += zone.WordSize {
		if err := s.CopyHandle(addr); err != nil {
			return err
		}
	}
	return nil
}
