// Package physmem simulates the physical memory of a machine on the host.
// An Arena is a flat byte range where physical address p lives at Base()+p.
// Translators created with both offsets set to Base() let the memory core
// run unmodified against the arena in tests and in the memsim tool.
package physmem

import (
	"fmt"
	"unsafe"

	"kernos/kernel/mem"
)

// Arena is a block of host memory standing in for physical RAM.
type Arena struct {
	data []byte
	size mem.Size
}

// New reserves an arena large enough to hold physical addresses in
// [0, size). The size is rounded up to the nearest page. The arena contents
// are zero-filled.
func New(size mem.Size) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("arena size must be greater than zero")
	}

	size = mem.Size(size.Pages()) << mem.PageShift
	data, err := allocate(size)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %d bytes for arena: %w", uint64(size), err)
	}

	return &Arena{data: data, size: size}, nil
}

// Close releases the arena memory. Pointers derived from the arena must not
// be used afterwards.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}

	if err := release(a.data); err != nil {
		return fmt.Errorf("failed to release arena: %w", err)
	}
	a.data = nil
	return nil
}

// Base returns the host address that corresponds to physical address 0.
func (a *Arena) Base() uintptr {
	if a.data == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.data[0]))
}

// Size returns the size of the simulated physical address space.
func (a *Arena) Size() mem.Size {
	return a.size
}

// Frame returns the contents of the page frame that starts at physAddr.
// It returns nil if the frame lies outside the arena.
func (a *Arena) Frame(physAddr uintptr) []byte {
	return a.Slice(mem.PageAlignDown(physAddr), mem.PageSize)
}

// Slice returns the arena bytes backing [physAddr, physAddr+length). It
// returns nil if the range is invalid.
func (a *Arena) Slice(physAddr uintptr, length mem.Size) []byte {
	if a.data == nil || uint64(physAddr)+uint64(length) > uint64(a.size) {
		return nil
	}
	return a.data[physAddr : physAddr+uintptr(length)]
}

// ReadUint64 returns the 64-bit value stored at physAddr.
func (a *Arena) ReadUint64(physAddr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(a.Base() + physAddr))
}

// Contains returns true if [physAddr, physAddr+length) lies inside the arena.
func (a *Arena) Contains(physAddr uintptr, length mem.Size) bool {
	return uint64(physAddr)+uint64(length) <= uint64(a.size)
}
