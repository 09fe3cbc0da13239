// Package cardtable implements the byte-per-card write-barrier metadata and
// coarser deck summaries that let the collector skip clean regions of older
// generations (spec.md §4.2 "Card & Deck Tables").
package cardtable

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Mark bits a card (and its covering deck) can carry.
const (
	PointsToNursery byte = 1 << 0
	PointsToAging   byte = 1 << 1
	AllMarks        byte = PointsToNursery | PointsToAging
)

// CardBytes is the number of heap bytes a single card byte covers.
// DeckCards is the number of cards a single deck summary byte covers.
// CardBytes matches the "one per 128 bytes" example in spec.md §3. Both are
// kept as package constants rather than configuration: the scan filter below is
// hand-unrolled for a 4-card (32-bit) quad and changing the ratio doesn't
// change that shape.
const (
	CardBytes = 128
	DeckCards = 32
)

// Tables covers a contiguous address range [Base, Base+Size) of the heap
// with one card byte per CardBytes bytes and one deck byte per DeckCards
// cards.
type Tables struct {
	Base  uintptr
	Size  uintptr
	cards []byte
	decks []byte
}

// New allocates card/deck tables covering [base, base+size).
func New(base uintptr, size uintptr) *Tables {
	numCards := (size + CardBytes - 1) / CardBytes
	numDecks := (numCards + DeckCards - 1) / DeckCards
	return &Tables{
		Base:  base,
		Size:  size,
		cards: make([]byte, numCards),
		decks: make([]byte, numDecks),
	}
}

func (t *Tables) cardIndex(addr uintptr) (int, error) {
	if addr < t.Base || addr >= t.Base+t.Size {
		return 0, errors.Errorf("cardtable: address %#x out of range [%#x, %#x)", addr, t.Base, t.Base+t.Size)
	}
	return int((addr - t.Base) / CardBytes), nil
}

// Mark is the write-barrier entry point: the external object writer calls
// this when it stores a tagged pointer to a nursery or aging object into an
// older object, ORing mark into the containing card and its deck.
func (t *Tables) Mark(addr uintptr, mark byte) error {
	idx, err := t.cardIndex(addr)
	if err != nil {
		return err
	}
	t.cards[idx] |= mark
	t.decks[idx/DeckCards] |= mark
	return nil
}

// MarkRange marks every card covering [start, end) — used when a whole
// cell range (e.g. a freshly-copied object whose body references a younger
// generation) is written in one step.
func (t *Tables) MarkRange(start, end uintptr, mark byte) error {
	if start >= end {
		return nil
	}
	first, err := t.cardIndex(start)
	if err != nil {
		return err
	}
	last, err := t.cardIndex(end - 1)
	if err != nil {
		return err
	}
	for i := first; i <= last; i++ {
		t.cards[i] |= mark
		t.decks[i/DeckCards] |= mark
	}
	return nil
}

// cardAddr returns the heap address of the first byte of card i.
func (t *Tables) cardAddr(i int) uintptr { return t.Base + uintptr(i)*CardBytes }

// ScanFunc scans the objects found in [start, end). It returns nothing;
// ScanRegion does its own card and deck counting.
type ScanFunc func(start, end uintptr)

// ScanRegion implements the copy_gen_cards / copy_card_deck / copy_card
// protocol of spec.md §4.2 over one generation's address range
// [genStart, genEnd), clipping card scans to genHere (the generation's
// current allocation pointer, so cards at or past here are never scanned).
// Cards whose byte has any bit in mask are scanned with scan and then have
// unmask cleared; deck summaries are checked first as an O(heap/DeckCards)
// fast path to skip entirely-clean decks.
func (t *Tables) ScanRegion(genStart, genHere, genEnd uintptr, mask, unmask byte, scan ScanFunc) (cardsScanned, decksScanned uint64, err error) {
	firstCard, err := t.cardIndex(genStart)
	if err != nil {
		return 0, 0, err
	}
	var lastCard int
	if genEnd > t.Base {
		lc, err := t.cardIndex(genEnd - 1)
		if err != nil {
			return 0, 0, err
		}
		lastCard = lc + 1
	}

	firstDeck := firstCard / DeckCards
	lastDeck := (lastCard + DeckCards - 1) / DeckCards

	quadMask := uint32(mask) | uint32(mask)<<8 | uint32(mask)<<16 | uint32(mask)<<24

	for d := firstDeck; d < lastDeck && d < len(t.decks); d++ {
		if t.decks[d]&mask == 0 {
			continue
		}
		decksScanned++

		deckFirstCard := d * DeckCards
		deckLastCard := deckFirstCard + DeckCards
		if deckLastCard > len(t.cards) {
			deckLastCard = len(t.cards)
		}

		// Process cards in quads of 4 using a 32-bit OR-and-test filter,
		// mirroring the source's u32 quad_ptr scan.
		for quadStart := deckFirstCard; quadStart < deckLastCard; quadStart += 4 {
			quadEnd := quadStart + 4
			if quadEnd > deckLastCard {
				quadEnd = deckLastCard
			}
			var quadBytes [4]byte
			copy(quadBytes[:], t.cards[quadStart:quadEnd])
			quad := binary.LittleEndian.Uint32(quadBytes[:])
			if quad&quadMask == 0 {
				continue
			}
			for c := quadStart; c < quadEnd; c++ {
				if t.cards[c]&mask == 0 {
					continue
				}
				cardStart := t.cardAddr(c)
				cardEnd := cardStart + CardBytes
				if cardEnd > genEnd {
					cardEnd = genEnd
				}
				if genHere < cardEnd {
					cardEnd = genHere
				}
				if cardStart < cardEnd {
					scan(cardStart, cardEnd)
				}
				cardsScanned++
				t.cards[c] &^= unmask
			}
		}
		t.decks[d] &^= unmask
	}
	return cardsScanned, decksScanned, nil
}

// WithExpandedRange returns t unchanged if [lo, hi) already falls within
// its covered range, or else a new Tables spanning the union of t's range
// and [lo, hi) with every existing mark carried over at its original
// address. Used when growing the tenured generation hands the heap zones
// at addresses the original tables were never sized for.
func (t *Tables) WithExpandedRange(lo, hi uintptr) *Tables {
	base := t.Base
	end := t.Base + t.Size
	if lo < base {
		base = lo
	}
	if hi > end {
		end = hi
	}
	if base == t.Base && end == t.Base+t.Size {
		return t
	}

	nt := New(base, end-base)
	for i, b := range t.cards {
		if b == 0 {
			continue
		}
		addr := t.cardAddr(i)
		if idx, err := nt.cardIndex(addr); err == nil {
			nt.cards[idx] |= b
		}
	}
	for d := range nt.decks {
		first := d * DeckCards
		last := first + DeckCards
		if last > len(nt.cards) {
			last = len(nt.cards)
		}
		var summary byte
		for c := first; c < last; c++ {
			summary |= nt.cards[c]
		}
		nt.decks[d] = summary
	}
	return nt
}

// Clear zeroes every card and deck byte covering [start, end). Used when a
// generation is rotated with its semispace (begin_gc's clear_cards /
// clear_decks).
func (t *Tables) Clear(start, end uintptr) error {
	firstCard, err := t.cardIndex(start)
	if err != nil {
		return err
	}
	var lastCard int
	if end > t.Base {
		lc, err := t.cardIndex(end - 1)
		if err != nil {
			return err
		}
		lastCard = lc + 1
	}
	for i := firstCard; i < lastCard; i++ {
		t.cards[i] = 0
	}
	firstDeck := firstCard / DeckCards
	lastDeck := (lastCard + DeckCards - 1) / DeckCards
	for i := firstDeck; i < lastDeck && i < len(t.decks); i++ {
		t.decks[i] = 0
	}
	return nil
}
