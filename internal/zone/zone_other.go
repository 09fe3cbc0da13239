//go:build !unix

package zone

import "unsafe"

// allocRaw falls back to a plain Go allocation on platforms without mmap
// support wired in. The backing slice is retained by Segment so it is never
// collected while the segment is alive; Go's heap does not relocate live
// objects, so the address handed out here remains stable.
func allocRaw(size uintptr) ([]byte, uintptr, error) {
	b := make([]byte, size)
	return b, uintptr(unsafe.Pointer(&b[0])), nil
}

func freeRaw(backing []byte) error {
	return nil
}
