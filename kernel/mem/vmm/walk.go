package vmm

import (
	"unsafe"

	"kernos/kernel/mem"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. When
	// compiling the kernel this function will be automatically inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *PageTableEntry) bool

// entry returns a pointer to the entry at index in the table located at
// tablePhysAddr. The table address is translated on every call so the
// pointer is valid under the active translation regime.
func (pdt *PageDirectoryTable) entry(tablePhysAddr, index uintptr) *PageTableEntry {
	return (*PageTableEntry)(ptePtrFn(pdt.tablePointer(tablePhysAddr) + (index << mem.PointerShift)))
}

// tablePointer returns the address through which the table at tablePhysAddr
// is currently reachable.
func (pdt *PageDirectoryTable) tablePointer(tablePhysAddr uintptr) uintptr {
	for i := 0; i < pdt.pendingCount; i++ {
		if pdt.pending[i] == tablePhysAddr {
			return scratchPtrFn(pendingSlotAddr(i), tablePhysAddr)
		}
	}

	return pdt.xlat.PhysToPointer(tablePhysAddr)
}

// walk performs a page table walk for the given virtual address. It calls the
// supplied walkFn with the page table entry that corresponds to each page
// table level. If walkFn returns false then the walk is aborted. walkFn must
// only return true for entries that point to a lower level table.
func (pdt *PageDirectoryTable) walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level     uint8
		tableAddr uintptr
		pte       *PageTableEntry
	)

	for level, tableAddr = uint8(0), pdt.RootAddress(); level < pageLevels; level++ {
		pte = pdt.entry(tableAddr, tableIndex(virtAddr, level))
		if !walkFn(level, pte) {
			return
		}

		tableAddr = pte.Address()
	}
}
