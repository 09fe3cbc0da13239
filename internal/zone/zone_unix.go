//go:build unix

package zone

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocRaw reserves size bytes of anonymous, private memory via mmap:
// memory handed to the mutator/collector comes straight from the OS and is
// never relocated by the Go runtime, so the uintptrs we hand out as Cells
// stay valid for the lifetime of the segment.
func allocRaw(size uintptr) ([]byte, uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, err
	}
	return b, uintptr(unsafe.Pointer(&b[0])), nil
}

func freeRaw(backing []byte) error {
	return unix.Munmap(backing)
}
