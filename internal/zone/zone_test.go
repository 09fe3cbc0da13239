package zone

import "testing"

func TestAllocSegmentSizeAndAllot(t *testing.T) {
	seg, err := AllocSegment(4096)
	if err != nil {
		t.Fatalf("AllocSegment: %v", err)
	}
	defer seg.Release()

	if seg.Size() != 4096 {
		t.Fatalf("Size() = %d, want 4096", seg.Size())
	}
	if seg.Used() != 0 {
		t.Fatalf("a fresh segment must start empty, Used() = %d", seg.Used())
	}

	addr, ok := seg.Allot(WordSize * 4)
	if !ok {
		t.Fatalf("Allot failed on a fresh segment")
	}
	if !seg.Contains(addr) {
		t.Fatalf("Contains(%#x) = false, want true", addr)
	}
	if seg.Used() != WordSize*4 {
		t.Fatalf("Used() = %d, want %d", seg.Used(), WordSize*4)
	}
}

func TestAllotFailsWhenExhausted(t *testing.T) {
	seg, err := AllocSegment(WordSize * 4)
	if err != nil {
		t.Fatalf("AllocSegment: %v", err)
	}
	defer seg.Release()

	if _, ok := seg.Allot(WordSize * 4); !ok {
		t.Fatalf("expected the exact-fit allotment to succeed")
	}
	if _, ok := seg.Allot(WordSize); ok {
		t.Fatalf("expected allotment past the end to fail")
	}
}

func TestReset(t *testing.T) {
	seg, err := AllocSegment(4096)
	if err != nil {
		t.Fatalf("AllocSegment: %v", err)
	}
	defer seg.Release()

	if _, ok := seg.Allot(WordSize * 8); !ok {
		t.Fatalf("Allot failed")
	}
	seg.Reset()
	if seg.Used() != 0 {
		t.Fatalf("Reset did not empty the segment, Used() = %d", seg.Used())
	}
}

func TestContainsExcludesEnd(t *testing.T) {
	seg, err := AllocSegment(4096)
	if err != nil {
		t.Fatalf("AllocSegment: %v", err)
	}
	defer seg.Release()

	if seg.Contains(seg.End) {
		t.Fatalf("Contains(End) must be false: End is one past the last valid byte")
	}
	if !seg.Contains(seg.Start) {
		t.Fatalf("Contains(Start) must be true")
	}
}
