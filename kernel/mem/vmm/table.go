// Package vmm builds and maintains the kernel's 4-level page table hierarchy
// and performs the hand-off from the boot loader's page tables to the
// kernel's own.
package vmm

import (
	"io"

	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/physmap"
	"kernos/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrNotInitialized is returned when using a table before Init.
	ErrNotInitialized = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "page directory table is not initialized"}

	// ErrAlreadyInitialized is returned when calling Init twice.
	ErrAlreadyInitialized = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "page directory table is already initialized"}

	// ErrAlreadyActive is returned when calling Activate twice.
	ErrAlreadyActive = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "page directory table is already active"}

	// ErrUnalignedAddress is returned when a physical or virtual address
	// passed to a mapping call is not page-aligned.
	ErrUnalignedAddress = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "address is not page-aligned"}

	// ErrNonCanonicalAddress is returned for virtual addresses whose upper
	// bits are not a sign extension of bit 47.
	ErrNonCanonicalAddress = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "virtual address is not canonical"}

	// ErrPhysAddressTooLarge is returned for physical addresses that do not
	// fit in the frame number bits of an entry.
	ErrPhysAddressTooLarge = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "physical address exceeds the addressable range"}

	// ErrRemap is returned by Map when the virtual address is already mapped
	// to a different frame or with different flags.
	ErrRemap = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "virtual address is already mapped"}

	// ErrScratchExhausted is returned when more new tables wait for their
	// kernel window mapping than there are scratch slots to reach them.
	ErrScratchExhausted = &kernel.Error{Module: "vmm", Kind: kernel.KindInvariantViolation, Message: "no free scratch slot for a new page table"}

	// memsetFn is used by tests and is automatically inlined by the compiler.
	memsetFn = mem.Memset

	// scratchPtrFn returns the address through which the frame installed in
	// the scratch slot at slotAddr is accessed. It is used by tests to
	// redirect the access to the simulated physical memory.
	scratchPtrFn = func(slotAddr, _ uintptr) uintptr {
		return slotAddr
	}

	vmmLogPrefix = []byte("[vmm] ")
)

// FrameAllocator is implemented by physical frame allocators that can
// supply frames for page tables.
type FrameAllocator interface {
	AllocFrame() (pmm.Frame, *kernel.Error)
	FreeFrame(pmm.Frame) *kernel.Error
}

// State describes the lifecycle of a PageDirectoryTable.
type State uint8

const (
	// StateUninitialized is the state of a zero PageDirectoryTable.
	StateUninitialized State = iota

	// StateBootOwned indicates that the root table exists but the boot
	// loader tables are still active.
	StateBootOwned

	// StateKernelOwned indicates that the table has been activated.
	StateKernelOwned
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateBootOwned:
		return "boot-owned"
	case StateKernelOwned:
		return "kernel-owned"
	default:
		return "uninitialized"
	}
}

// PageDirectoryTable describes the top-most table in a multi-level paging
// scheme together with the collaborators needed to grow the hierarchy.
//
// Tables are reached through the translator: the boot loader's direct map
// while the boot loader tables are active and the kernel window afterwards.
// Every table allocated by a PageDirectoryTable is mapped into the kernel
// window so that it stays reachable after Activate.
type PageDirectoryTable struct {
	rootFrame pmm.Frame
	state     State

	frames FrameAllocator
	xlat   *physmap.Translator
	hw     cpu.Hardware
	log    kfmt.PrefixWriter

	// scratchTable is the physical address of the last level table that
	// holds the entries for scratchPageAddr and the pending table slots.
	scratchTable uintptr

	// pending lists tables that were linked after Activate but are not
	// mapped in the kernel window yet. pending[i] is reached through
	// pendingSlotAddr(i).
	pending      [maxPendingTables]uintptr
	pendingCount int
}

// Init allocates and clears the root table, prepares the scratch slot and
// maps every table it allocated into the kernel window. Diagnostics are
// written to log, which may be nil.
func (pdt *PageDirectoryTable) Init(frames FrameAllocator, xlat *physmap.Translator, hw cpu.Hardware, log io.Writer) *kernel.Error {
	if pdt.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	pdt.frames = frames
	pdt.xlat = xlat
	pdt.hw = hw
	pdt.log = kfmt.PrefixWriter{Sink: log, Prefix: vmmLogPrefix}

	rootFrame, err := frames.AllocFrame()
	if err != nil {
		return err
	}

	pdt.rootFrame = rootFrame
	pdt.zeroFrame(rootFrame.Address())
	pdt.state = StateBootOwned

	if _, err = pdt.IdentityMap(rootFrame.Address(), tableMapFlags); err != nil {
		return err
	}

	// Build the path down to the scratch slot now; the last level table
	// must exist before any table is allocated under the kernel tables.
	tableAddr := pdt.RootAddress()
	for level := uint8(0); level < pageLevels-1; level++ {
		if tableAddr, err = pdt.mapTableLevel(tableAddr, tableIndex(scratchPageAddr, level), intermediateFlags); err != nil {
			return err
		}
	}
	pdt.scratchTable = tableAddr

	kfmt.Fprintf(&pdt.log, "root table allocated at 0x%x\n", pdt.RootAddress())
	return nil
}

// State returns the lifecycle state of the table.
func (pdt *PageDirectoryTable) State() State {
	return pdt.state
}

// RootAddress returns the physical address of the root table.
func (pdt *PageDirectoryTable) RootAddress() uintptr {
	return pdt.rootFrame.Address()
}

// zeroFrame clears the frame at physAddr. While the boot loader tables are
// active the frame is reached through the direct map. Afterwards it is
// temporarily installed in the scratch slot as it is not yet mapped in the
// kernel window.
func (pdt *PageDirectoryTable) zeroFrame(physAddr uintptr) {
	if pdt.xlat.Regime() == physmap.RegimeBootOwned {
		memsetFn(pdt.xlat.PhysToPointer(physAddr), 0, mem.PageSize)
		return
	}

	pdt.installScratch(scratchPageAddr, physAddr)
	memsetFn(scratchPtrFn(scratchPageAddr, physAddr), 0, mem.PageSize)
	pdt.releaseScratch(scratchPageAddr)
}

// installScratch points the scratch slot at slotAddr to the frame at physAddr.
func (pdt *PageDirectoryTable) installScratch(slotAddr, physAddr uintptr) {
	slot := pdt.entry(pdt.scratchTable, tableIndex(slotAddr, pageLevels-1))
	*slot = PageTableEntry(tableMapFlags)
	slot.SetFrame(pmm.FrameFromAddress(physAddr))
	pdt.hw.FlushTLBEntry(slotAddr)
}

// releaseScratch empties the scratch slot at slotAddr.
func (pdt *PageDirectoryTable) releaseScratch(slotAddr uintptr) {
	*pdt.entry(pdt.scratchTable, tableIndex(slotAddr, pageLevels-1)) = 0
	pdt.hw.FlushTLBEntry(slotAddr)
}

// pendingSlotAddr returns the scratch page used to reach pending table i.
// The slots sit right below scratchPageAddr in the same last level table.
func pendingSlotAddr(i int) uintptr {
	return scratchPageAddr - uintptr(i+1)<<mem.PageShift
}

// pushPending makes the table at physAddr reachable through the next free
// pending slot until popPending is called.
func (pdt *PageDirectoryTable) pushPending(physAddr uintptr) *kernel.Error {
	if pdt.pendingCount == maxPendingTables {
		return ErrScratchExhausted
	}

	pdt.installScratch(pendingSlotAddr(pdt.pendingCount), physAddr)
	pdt.pending[pdt.pendingCount] = physAddr
	pdt.pendingCount++
	return nil
}

// popPending releases the most recently pushed pending slot.
func (pdt *PageDirectoryTable) popPending() {
	pdt.pendingCount--
	pdt.pending[pdt.pendingCount] = 0
	pdt.releaseScratch(pendingSlotAddr(pdt.pendingCount))
}

// mapTableLevel returns the physical address of the table referenced by the
// entry at index in the table located at tablePhysAddr. If the entry is not
// present, a new table is allocated, cleared, linked and then mapped into
// the kernel window. The table is linked before it is mapped so that any
// table the kernel window mapping needs below this entry is found instead of
// allocated again.
//
// After Activate a new table may cover its own kernel window address, so it
// is reached through a pending scratch slot until that mapping exists.
func (pdt *PageDirectoryTable) mapTableLevel(tablePhysAddr, index uintptr, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	pte := pdt.entry(tablePhysAddr, index)
	if pte.HasFlags(FlagPresent) {
		// Shared tables must not restrict user access to leaves below them.
		if flags&FlagUserAccessible != 0 {
			pte.SetFlags(FlagUserAccessible)
		}
		return pte.Address(), nil
	}

	frame, err := pdt.frames.AllocFrame()
	if err != nil {
		return 0, err
	}

	// A table must never be reachable before it is cleared.
	pdt.zeroFrame(frame.Address())

	if pdt.xlat.Regime() == physmap.RegimeKernelOwned {
		if err = pdt.pushPending(frame.Address()); err != nil {
			_ = pdt.frames.FreeFrame(frame)
			return 0, err
		}
		defer pdt.popPending()
	}

	*pte = makeEntry(frame.Address(), intermediateFlags|(flags&FlagUserAccessible))

	if _, err = pdt.IdentityMap(frame.Address(), tableMapFlags); err != nil {
		return 0, err
	}

	return frame.Address(), nil
}

// Map establishes a mapping between a virtual page and a physical memory
// frame, creating any missing intermediate tables. Both addresses must be
// page-aligned. Flags are masked to the bits that may legally be set in an
// entry.
//
// Mapping a page to the frame and flags it is already mapped to is a no-op.
// Any other change to an existing mapping returns ErrRemap; use Remap to
// replace it.
func (pdt *PageDirectoryTable) Map(physAddr, virtAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	return pdt.mapPage(physAddr, virtAddr, flags, false)
}

// Remap behaves like Map but replaces any existing mapping for virtAddr.
func (pdt *PageDirectoryTable) Remap(physAddr, virtAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	return pdt.mapPage(physAddr, virtAddr, flags, true)
}

func (pdt *PageDirectoryTable) mapPage(physAddr, virtAddr uintptr, flags PageTableEntryFlag, overwrite bool) *kernel.Error {
	switch {
	case pdt.state == StateUninitialized:
		return ErrNotInitialized
	case !mem.IsPageAligned(physAddr) || !mem.IsPageAligned(virtAddr):
		return ErrUnalignedAddress
	case !isCanonical(virtAddr):
		return ErrNonCanonicalAddress
	case uint64(physAddr)&^ptePhysPageMask != 0:
		return ErrPhysAddressTooLarge
	}

	var (
		err       *kernel.Error
		tableAddr = pdt.RootAddress()
		leaf      = makeEntry(physAddr, flags)
	)

	for level := uint8(0); level < pageLevels-1; level++ {
		if tableAddr, err = pdt.mapTableLevel(tableAddr, tableIndex(virtAddr, level), flags); err != nil {
			return err
		}
	}

	pte := pdt.entry(tableAddr, tableIndex(virtAddr, pageLevels-1))
	switch {
	case *pte == leaf:
		return nil
	case *pte != 0 && !overwrite:
		return ErrRemap
	}

	*pte = leaf
	if pdt.state == StateKernelOwned {
		pdt.hw.FlushTLBEntry(virtAddr)
	}

	return nil
}

// IdentityMap maps physAddr into the kernel window and returns the virtual
// address it was mapped at.
func (pdt *PageDirectoryTable) IdentityMap(physAddr uintptr, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	virtAddr := physAddr + pdt.xlat.KernelOffset()
	if err := pdt.Map(physAddr, virtAddr, flags); err != nil {
		return 0, err
	}

	return virtAddr, nil
}

// MapRegion maps pageCount consecutive frames starting at physAddr to
// consecutive pages starting at virtAddr.
func (pdt *PageDirectoryTable) MapRegion(physAddr, virtAddr uintptr, pageCount uint64, flags PageTableEntryFlag) *kernel.Error {
	frame := pmm.FrameFromAddress(physAddr)
	for page := PageFromAddress(virtAddr); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := pdt.Map(frame.Address(), page.Address(), flags); err != nil {
			return err
		}
	}

	return nil
}

// IdentityMapRegion maps pageCount consecutive frames starting at physAddr
// into the kernel window and returns the virtual address of the first one.
func (pdt *PageDirectoryTable) IdentityMapRegion(physAddr uintptr, pageCount uint64, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	virtAddr := physAddr + pdt.xlat.KernelOffset()
	if err := pdt.MapRegion(physAddr, virtAddr, pageCount, flags); err != nil {
		return 0, err
	}

	return virtAddr, nil
}

// Lookup returns the last level entry for virtAddr. It returns
// ErrInvalidMapping if any table on the path is missing or the entry is
// empty.
func (pdt *PageDirectoryTable) Lookup(virtAddr uintptr) (PageTableEntry, *kernel.Error) {
	if pdt.state == StateUninitialized {
		return 0, ErrNotInitialized
	}

	if !isCanonical(virtAddr) {
		return 0, ErrNonCanonicalAddress
	}

	var (
		entry PageTableEntry
		err   = ErrInvalidMapping
	)

	pdt.walk(virtAddr, func(pteLevel uint8, pte *PageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if *pte != 0 {
				entry, err = *pte, nil
			}
			return false
		}

		return pte.HasFlags(FlagPresent)
	})

	return entry, err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (pdt *PageDirectoryTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pdt.Lookup(virtAddr)
	if err != nil {
		return 0, err
	}

	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Address() + PageOffset(virtAddr), nil
}

// Activate loads the root table into the processor and switches address
// translation to the kernel window in the same step. The kernel image, the
// active stack and all data reached through the translator must be mapped
// before calling Activate.
func (pdt *PageDirectoryTable) Activate() *kernel.Error {
	switch pdt.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateKernelOwned:
		return ErrAlreadyActive
	}

	rootAddr := pdt.RootAddress()
	if err := pdt.xlat.SwitchRegime(func() {
		pdt.hw.LoadRootTable(rootAddr)
	}); err != nil {
		return err
	}

	pdt.state = StateKernelOwned
	kfmt.Fprintf(&pdt.log, "root table activated at 0x%x\n", rootAddr)
	return nil
}
