package cell

import (
	"testing"
	"unsafe"
)

func TestImmediate(t *testing.T) {
	imm := Cell(42 << 3)
	if !imm.Immediate() {
		t.Fatalf("expected tag-0 cell to be immediate")
	}
	if imm.Tag() != 0 {
		t.Fatalf("expected immediate tag 0, got %d", imm.Tag())
	}
}

func TestRetagPreservesAddressAndTag(t *testing.T) {
	const tag = Cell(3)
	addr := uintptr(0x1000)
	tagged := Tagged(addr, tag)

	if tagged.Immediate() {
		t.Fatalf("a non-zero tag must not be immediate")
	}
	if tagged.Tag() != tag {
		t.Fatalf("Tag() = %d, want %d", tagged.Tag(), tag)
	}
	if tagged.Untagged() != addr {
		t.Fatalf("Untagged() = %#x, want %#x", tagged.Untagged(), addr)
	}

	moved := Retag(addr+0x40, tagged.Tag())
	if moved.Untagged() != addr+0x40 {
		t.Fatalf("Retag did not move the address")
	}
	if moved.Tag() != tag {
		t.Fatalf("Retag changed the tag: got %d, want %d", moved.Tag(), tag)
	}
}

func TestReadWriteAt(t *testing.T) {
	var slot uintptr
	addr := uintptr(unsafe.Pointer(&slot))

	WriteAt(addr, Tagged(0x2000, 5))
	got := ReadAt(addr)
	if got.Untagged() != 0x2000 || got.Tag() != 5 {
		t.Fatalf("ReadAt/WriteAt round trip failed: got %#x tag %d", got.Untagged(), got.Tag())
	}
}
