package vmm

import "kernos/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << mem.PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(mem.PageAlignDown(virtAddr) >> mem.PageShift)
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
}

// tableIndex returns the index of the entry that virtAddr selects in the
// table at the given level.
func tableIndex(virtAddr uintptr, level uint8) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
}

// isCanonical returns true if the bits of virtAddr above the significant
// bits are all copies of the top significant bit.
func isCanonical(virtAddr uintptr) bool {
	top := uint64(virtAddr) >> (virtAddrBits - 1)
	return top == 0 || top == (1<<(64-virtAddrBits+1))-1
}
