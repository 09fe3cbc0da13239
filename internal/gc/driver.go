package gc

import (
	"github.com/pkg/errors"

	"github.com/stephenalindsay/factorcore/internal/genheap"
)

// ErrGCDisabled mirrors the source's critical_error("gc-off", ...): a
// collection was requested while GCOff is set.
var ErrGCDisabled = errors.New("gc: collection requested while gc is off")

// isOverflow reports whether err is ErrNewspaceFull, the retryable sentinel
// GarbageCollection escalates on; every other error bubbles straight out of
// GarbageCollection.
func isOverflow(err error) bool {
	return errors.Cause(err) == ErrNewspaceFull
}

// beginGC performs begin_gc: pick newspace for the generation about to be
// collected, either by rotating an accumulating generation's semispace in
// (clearing its cards, since it starts empty), growing the tenured
// generation if the previous attempt overflowed there, or pointing at the
// next-older generation's active zone for a promoting collection.
func (s *State) beginGC(requestedBytes uintptr) error {
	switch {
	case s.GrowingDataHeap:
		if s.CollectingGen != s.Heap.Tenured {
			return errors.New("gc: begin_gc: growing data heap while not collecting tenured")
		}
		oldActive, oldSemispace, err := s.Heap.GrowTenured(requestedBytes)
		if err != nil {
			return err
		}
		s.abandonedTenuredActive = oldActive
		s.abandonedTenuredSemispace = oldSemispace

		newActive := s.Heap.Gen(s.Heap.Tenured).Active
		newSemispace := s.Heap.Gen(s.Heap.Tenured).Semispace
		lo, hi := newActive.Start, newActive.End
		if newSemispace.Start < lo {
			lo = newSemispace.Start
		}
		if newSemispace.End > hi {
			hi = newSemispace.End
		}
		s.Cards = s.Cards.WithExpandedRange(lo, hi)
		s.Newspace = newActive

	case s.Heap.CollectingAccumulationGen(s.CollectingGen):
		gen := s.Heap.Gen(s.CollectingGen)
		gen.Rotate()
		s.Heap.ResetGeneration(s.CollectingGen)
		s.Newspace = gen.Active
		if err := s.Cards.Clear(s.Newspace.Start, s.Newspace.End); err != nil {
			return errors.Wrap(err, "gc: begin_gc: clearing rotated-in generation's cards")
		}

	default:
		s.Newspace = s.Heap.Gen(s.CollectingGen + 1).Active
	}
	return nil
}

// endGC performs end_gc: reset the generations younger than (or equal to,
// for a promoting collection) the one collected, release any tenured
// zones abandoned by a heap growth, and record timing.
func (s *State) endGC(elapsedMicros uint64) {
	if s.Heap.CollectingAccumulationGen(s.CollectingGen) {
		s.Heap.ResetGenerations(genheap.Nursery, s.CollectingGen-1)
	} else {
		s.Heap.ResetGenerations(genheap.Nursery, s.CollectingGen)
	}

	if s.abandonedTenuredActive != nil {
		s.abandonedTenuredActive.Release()
		s.abandonedTenuredSemispace.Release()
		s.abandonedTenuredActive = nil
		s.abandonedTenuredSemispace = nil
	}

	gs := &s.Stats.PerGen[s.CollectingGen]
	gs.Collections++
	gs.GCTime += elapsedMicros
	if elapsedMicros > gs.MaxGCTime {
		gs.MaxGCTime = elapsedMicros
	}

	s.GrowingDataHeap = false
	s.CollectingAgingAgain = false
}

// escalate performs the overflow-retry step of garbage_collection: having
// failed to fit a collection of s.CollectingGen into its newspace, decide
// whether to grow the heap, retry the same generation once more (aging
// only), or widen the collection to the next-older generation.
func (s *State) escalate() {
	switch {
	case s.CollectingGen == s.Heap.Tenured:
		s.GrowingDataHeap = true
		s.Hooks.unmarkMarked()
	case s.Heap.Aging >= 0 && s.CollectingGen == s.Heap.Aging && !s.CollectingAgingAgain:
		s.CollectingAgingAgain = true
	default:
		s.CollectingGen++
	}
}

// scanCodeHeapRoots performs garbage_collection's code-heap step. It runs
// once per GarbageCollection call, after the retry loop, and is skipped
// when the collected generation is younger than LastCodeHeapScan, which
// persists across calls; nothing in this package lowers it again
// (spec.md §4.5).
func (s *State) scanCodeHeapRoots() {
	if s.CollectingGen < s.LastCodeHeapScan {
		return
	}
	s.Stats.CodeHeapScans++
	if s.CollectingGen == s.Heap.Tenured {
		s.Hooks.freeUnmarked()
	} else {
		s.Hooks.copyCodeHeapRoots()
	}
	if s.Heap.CollectingAccumulationGen(s.CollectingGen) {
		s.LastCodeHeapScan = s.CollectingGen
	} else {
		s.LastCodeHeapScan = s.CollectingGen + 1
	}
}

// GarbageCollection performs garbage_collection: collect generation gen
// (escalating to older generations, and finally to a heap grow, if the
// collection overflows its newspace), tracing roots, dirty cards, and the
// reachable closure, then scanning code-heap roots (spec.md §4.5).
//
// requestedBytes is the allocation the caller could not satisfy and is
// forwarded unchanged to GrowTenured if collection escalates that far;
// pass 0 for a collection not triggered by a failed allocation (e.g. an
// explicit gc primitive call).
func (s *State) GarbageCollection(gen genheap.Gen, growingDataHeap bool, requestedBytes uintptr, roots *Roots, clock func() uint64) error {
	if s.GCOff {
		return ErrGCDisabled
	}
	if clock == nil {
		clock = nowMicros
	}

	s.CollectingGen = gen
	s.GrowingDataHeap = growingDataHeap

	start := clock()

	for {
		if err := s.beginGC(requestedBytes); err != nil {
			return err
		}
		scan := s.Newspace.Here

		err := s.collectOnce(scan, roots)
		if err == nil {
			break
		}
		if !isOverflow(err) {
			return err
		}
		s.escalate()
	}

	s.scanCodeHeapRoots()
	s.endGC(clock() - start)
	return nil
}

// collectOnce runs one attempt at tracing roots, dirty cards, and the
// reachable closure for the generation currently selected in s, without
// any retry logic of its own; GarbageCollection loops it under escalate.
func (s *State) collectOnce(scan uintptr, roots *Roots) error {
	if err := CopyRoots(s, roots); err != nil {
		return err
	}
	if err := s.CopyCards(); err != nil {
		return err
	}
	if err := s.CopyReachableObjects(scan); err != nil {
		return err
	}
	return nil
}
