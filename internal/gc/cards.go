package gc

import (
	"time"

	"github.com/stephenalindsay/factorcore/internal/cardtable"
	"github.com/stephenalindsay/factorcore/internal/genheap"
)

// nowMicros stands in for the external current_micros() hook (spec.md §6).
// GarbageCollection takes a clock argument that replaces it for the cycle
// timing (e.g. for deterministic tests); CopyCards always uses nowMicros.
func nowMicros() uint64 { return uint64(time.Now().UnixMicro()) }

// traceRange scans memory from scan up to the current value of *end,
// dispatching to the tracer matching s.CollectingGen (spec.md §4.3
// "Scanning iterates..."). *end is read fresh on every iteration so a
// caller scanning the growing newspace (via &s.Newspace.Here) observes
// objects appended by the very copies this loop performs (the Cheney
// property); a caller scanning a fixed card range passes a local variable
// that never changes.
func (s *State) traceRange(scan uintptr, end *uintptr) error {
	var err error
	for scan < *end {
		switch {
		case s.CollectingGen == genheap.Nursery:
			scan, err = s.copyNextFromNursery(scan)
		case s.Heap.Aging >= 0 && s.CollectingGen == s.Heap.Aging:
			scan, err = s.copyNextFromAging(scan)
		case s.CollectingGen == s.Heap.Tenured:
			scan, err = s.copyNextFromTenured(scan)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// firstObjectAtOrAfter re-derives object boundaries by walking from a
// generation's start, the fallback spec.md §4.2 allows when no per-card
// offset is recorded: "otherwise object boundaries are re-derived from the
// generation's start." Acceptable here since this is a reference/test
// implementation, not the performance-critical path the offset field
// exists to short-circuit.
func (s *State) firstObjectAtOrAfter(genStart, genHere, target uintptr) uintptr {
	scan := genStart
	for scan < genHere {
		size := s.Model.UntaggedObjectSize(scan)
		if scan+size > target {
			return scan
		}
		scan += size
	}
	return genHere
}

// copyCard performs copy_card: scan the objects on one card, copying any
// younger-generation pointers they hold.
func (s *State) copyCard(genStart, genHere, cardStart, cardEnd uintptr) (uint64, error) {
	objStart := s.firstObjectAtOrAfter(genStart, genHere, cardStart)
	end := cardEnd
	if objStart >= end {
		return 0, nil
	}
	if err := s.traceRange(objStart, &end); err != nil {
		return 0, err
	}
	return 1, nil
}

// cardMasks returns the (mask, unmask) pair for scanning generation `o`
// while collecting s.CollectingGen, per the table in spec.md §4.2.
func (s *State) cardMasks(o genheap.Gen) (mask, unmask byte, ok bool) {
	switch {
	case s.CollectingGen == genheap.Nursery:
		mask = cardtable.PointsToNursery
		switch {
		case o == s.Heap.Tenured:
			unmask = cardtable.PointsToNursery
		case s.Heap.Aging >= 0 && o == s.Heap.Aging:
			unmask = cardtable.AllMarks
		default:
			return 0, 0, false
		}
	case s.Heap.Aging >= 0 && s.CollectingGen == s.Heap.Aging:
		mask = cardtable.PointsToAging
		if s.CollectingAgingAgain {
			unmask = cardtable.AllMarks
		} else {
			unmask = cardtable.PointsToNursery
		}
	default:
		return 0, 0, false
	}
	return mask, unmask, true
}

// copyGenCards performs copy_gen_cards: scan generation o's decks/cards for
// pointers into the generation currently being collected.
func (s *State) copyGenCards(o genheap.Gen) error {
	mask, unmask, ok := s.cardMasks(o)
	if !ok {
		return nil
	}

	gen := s.Heap.Gen(o)
	genStart := gen.Active.Start
	genEnd := gen.Active.End
	genHere := gen.Active.Here

	var traceErr error
	cardsScanned, decksScanned, err := s.Cards.ScanRegion(genStart, genHere, genEnd, mask, unmask, func(cardStart, cardEnd uintptr) {
		if traceErr != nil {
			return
		}
		if _, err := s.copyCard(genStart, genHere, cardStart, cardEnd); err != nil {
			traceErr = err
		}
	})
	if err != nil {
		return err
	}
	if traceErr != nil {
		return traceErr
	}

	s.Stats.CardsScanned += cardsScanned
	s.Stats.DecksScanned += decksScanned
	return nil
}

// CopyCards performs copy_cards: scan cards in every generation older than
// the one being collected, recording the elapsed time against
// card_scan_time.
func (s *State) CopyCards() error {
	start := nowMicros()
	for g := s.CollectingGen + 1; g < s.Heap.GenCount; g++ {
		if err := s.copyGenCards(g); err != nil {
			return err
		}
	}
	s.Stats.CardScanTime += nowMicros() - start
	return nil
}
