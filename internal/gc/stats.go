package gc

import "github.com/stephenalindsay/factorcore/internal/genheap"

// GenStats are the per-generation counters of spec.md §3 "GC stats".
type GenStats struct {
	Collections uint64
	GCTime      uint64 // microseconds
	MaxGCTime   uint64
	ObjectCount uint64
	BytesCopied uint64
}

// Stats holds every counter the `gc-stats` primitive packs up, plus the
// process-global card/deck/code-heap counters (spec.md §3 "GC stats").
type Stats struct {
	PerGen []GenStats

	CardsScanned  uint64
	DecksScanned  uint64
	CardScanTime  uint64 // microseconds
	CodeHeapScans uint64
}

// NewStats allocates per-generation counters for a heap with genCount
// generations.
func NewStats(genCount genheap.Gen) *Stats {
	return &Stats{PerGen: make([]GenStats, genCount)}
}

// Clear implements `clear-gc-stats`: zero every counter.
func (s *Stats) Clear() {
	for i := range s.PerGen {
		s.PerGen[i] = GenStats{}
	}
	s.CardsScanned = 0
	s.DecksScanned = 0
	s.CardScanTime = 0
	s.CodeHeapScans = 0
}

// Packed is the flattened counter array the `gc-stats` primitive returns to
// hosted code: per generation (collections, total time, max time, average
// time, object count, bytes copied), then the process-wide totals (total
// gc time, cards scanned, decks scanned, card scan time, code heap scans).
type Packed struct {
	PerGen        []PackedGen
	TotalGCTime   uint64
	CardsScanned  uint64
	DecksScanned  uint64
	CardScanTime  uint64
	CodeHeapScans uint64
}

// PackedGen is one generation's row of the packed stats array.
type PackedGen struct {
	Collections uint64
	GCTime      uint64
	MaxGCTime   uint64
	AvgGCTime   uint64
	ObjectCount uint64
	BytesCopied uint64
}

// Pack builds the Packed view `gc-stats` returns, mirroring the source's
// PRIMITIVE(gc_stats) field order exactly.
func (s *Stats) Pack() Packed {
	p := Packed{PerGen: make([]PackedGen, len(s.PerGen))}
	var total uint64
	for i, g := range s.PerGen {
		var avg uint64
		if g.Collections != 0 {
			avg = g.GCTime / g.Collections
		}
		p.PerGen[i] = PackedGen{
			Collections: g.Collections,
			GCTime:      g.GCTime,
			MaxGCTime:   g.MaxGCTime,
			AvgGCTime:   avg,
			ObjectCount: g.ObjectCount,
			BytesCopied: g.BytesCopied,
		}
		total += g.GCTime
	}
	p.TotalGCTime = total
	p.CardsScanned = s.CardsScanned
	p.DecksScanned = s.DecksScanned
	p.CardScanTime = s.CardScanTime
	p.CodeHeapScans = s.CodeHeapScans
	return p
}
