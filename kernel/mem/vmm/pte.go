package vmm

import (
	"kernos/kernel/mem/pmm"
)

// PageTableEntry describes a page table entry. These entries encode a
// physical frame address and a set of flags.
type PageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint64(*pte) | uint64(flags))
}

// Flags returns the flag bits of the entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & pteFlagMask)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte PageTableEntry) Frame() pmm.Frame {
	return pmm.FrameFromAddress(pte.Address())
}

// Address returns the physical address that this page table entry points to.
func (pte PageTableEntry) Address() uintptr {
	return uintptr(uint64(pte) & ptePhysPageMask)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *PageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (PageTableEntry)((uint64(*pte) &^ ptePhysPageMask) | uint64(frame.Address()))
}

// makeEntry packs a physical address and a set of flags into an entry. The
// address is aligned down to its frame and the flags are masked so that they
// cannot spill into the frame number bits.
func makeEntry(physAddr uintptr, flags PageTableEntryFlag) PageTableEntry {
	return PageTableEntry((uint64(physAddr) & ptePhysPageMask) | (uint64(flags) & pteFlagMask))
}
