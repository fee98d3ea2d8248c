package vmm

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// entriesPerTable is the number of entries in each page table.
	entriesPerTable = 512

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// pteFlagMask selects the entry bits that callers may set: the flag bits
	// 0-11 and the no-execute bit 63.
	pteFlagMask = uint64(0x8000000000000fff)

	// virtAddrBits is the number of significant virtual address bits. Bits
	// above it must be copies of the top significant bit.
	virtAddrBits = 48

	// KernelWindowOffset is the virtual address where the kernel tables
	// map physical address 0. Physical frames that the kernel needs to
	// reach after it stops using the boot loader tables (page tables,
	// the frame bytemap) are mapped at frame address + KernelWindowOffset.
	// The window does not overlap the boot loader's direct map, the kernel
	// image or user space.
	KernelWindowOffset = uintptr(0xffffc00000000000)

	// HigherHalfBase is the virtual address the kernel image is linked at.
	HigherHalfBase = uintptr(0xffffffff80000000)

	// scratchPageAddr is a reserved virtual page used to reach freshly
	// allocated page tables that are not mapped in the kernel window yet.
	// For amd64 this address uses the following table indices: 510, 511,
	// 511, 511.
	scratchPageAddr = uintptr(0xffffff7ffffff000)

	// maxPendingTables is the number of scratch slots below scratchPageAddr
	// that hold tables allocated after activation until they are mapped in
	// the kernel window.
	maxPendingTables = 8
)

var (
	// pageLevelBits defines the number of virtual address bits that correspond to each
	// page level. For the amd64 architecture each PageLevel uses 9 bits which amounts to
	// 512 entries for each page level.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page table component
	// of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set if when using 2Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

const (
	// intermediateFlags are applied to entries that point to a lower level
	// table. They never restrict access; the leaf entry decides.
	intermediateFlags = FlagPresent | FlagRW

	// tableMapFlags are used when mapping page tables into the kernel window.
	tableMapFlags = FlagPresent | FlagRW | FlagNoExecute
)
