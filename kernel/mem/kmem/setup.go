package kmem

import (
	"io"

	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/hal/limine"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/physmap"
	"kernos/kernel/mem/pmm"
	"kernos/kernel/mem/vmm"
)

var (
	// ErrAlreadyInitialized is returned when calling Init twice.
	ErrAlreadyInitialized = &kernel.Error{Module: "kmem", Kind: kernel.KindInvariantViolation, Message: "memory context is already initialized"}

	// ErrNoStackPointer is returned when the location of the active stack
	// is unknown.
	ErrNoStackPointer = &kernel.Error{Module: "kmem", Kind: kernel.KindBootstrapUnsatisfiable, Message: "active stack pointer is unknown"}

	// ErrStackOutsideDirectMap is returned when the active stack is neither
	// part of the kernel image nor reachable through the boot loader's
	// direct map.
	ErrStackOutsideDirectMap = &kernel.Error{Module: "kmem", Kind: kernel.KindBootstrapUnsatisfiable, Message: "active stack is not reachable through the direct map"}

	kmemLogPrefix = []byte("[kmem] ")
)

const (
	kernelImageFlags = vmm.FlagPresent | vmm.FlagRW
	dataFlags        = vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute
)

// Init takes over memory management from the boot loader. It builds the
// frame allocator from the memory map, creates the kernel page tables, maps
// everything the kernel touches after the switch and finally activates the
// new tables:
//   - the kernel image at its link address
//   - the active stack at its direct map address
//   - the frame bytemap in the kernel window
//
// Page tables are mapped in the kernel window as they are allocated.
// Diagnostics from every stage are written to log, which may be nil.
//
// The context only counts as initialized once the new tables are active. A
// failed Init discards the partially built allocator and tables so that it
// can be retried.
func (ctx *Context) Init(info *limine.BootInfo, hw cpu.Hardware, log io.Writer, opts ...Option) *kernel.Error {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	if ctx.initialized {
		return ErrAlreadyInitialized
	}

	if err := info.Validate(); err != nil {
		return err
	}

	if info.StackPointer == 0 {
		return ErrNoStackPointer
	}

	ctx.frames = pmm.BytemapAllocator{}
	ctx.tables = vmm.PageDirectoryTable{}
	ctx.cfg = makeConfig(info.StackSize, opts)
	ctx.log = kfmt.PrefixWriter{Sink: log, Prefix: kmemLogPrefix}
	ctx.xlat = *physmap.New(uintptr(info.HHDMOffset), ctx.cfg.windowOffset)

	if err := ctx.frames.Init(info.MemoryMap, &ctx.xlat, log); err != nil {
		return err
	}

	if err := ctx.tables.Init(&ctx.frames, &ctx.xlat, hw, log); err != nil {
		return err
	}

	if err := ctx.mapKernelImage(info); err != nil {
		return err
	}

	if err := ctx.mapStack(info.StackPointer); err != nil {
		return err
	}

	if err := ctx.mapBytemap(); err != nil {
		return err
	}

	if err := ctx.tables.Activate(); err != nil {
		return err
	}
	ctx.initialized = true

	kfmt.Fprintf(&ctx.log, "hand-off complete; %d/%d frames free\n", ctx.frames.FreeFrameCount(), ctx.frames.TotalFrames())
	return nil
}

// mapKernelImage maps the kernel-and-modules region that holds the kernel
// image, starting at the image's physical base, to the image's link address.
func (ctx *Context) mapKernelImage(info *limine.BootInfo) *kernel.Error {
	region, err := info.KernelRegion()
	if err != nil {
		return err
	}

	physAddr := mem.PageAlignDown(uintptr(info.KernelAddress.PhysicalBase))
	virtAddr := mem.PageAlignDown(uintptr(info.KernelAddress.VirtualBase))
	pageCount := mem.Size(uintptr(region.End()) - physAddr).Pages()

	if err = ctx.tables.MapRegion(physAddr, virtAddr, pageCount, kernelImageFlags); err != nil {
		return err
	}

	kfmt.Fprintf(&ctx.log, "kernel image mapped: 0x%16x -> 0x%x (%d pages)\n", virtAddr, physAddr, pageCount)
	return nil
}

// mapStack maps the pages within the configured stack size on either side of
// stackPtr at their direct map address. Stacks that live inside the kernel
// image are already mapped.
func (ctx *Context) mapStack(stackPtr uintptr) *kernel.Error {
	if _, err := ctx.tables.Lookup(stackPtr); err == nil {
		return nil
	}

	directMapBase := ctx.xlat.BootOffset()
	if stackPtr < directMapBase {
		return ErrStackOutsideDirectMap
	}

	stackSize := uintptr(ctx.cfg.stackSize)
	low := directMapBase
	if stackPtr-directMapBase > stackSize {
		low = stackPtr - stackSize
	}
	low = mem.PageAlignDown(low)
	high := mem.PageAlignUp(stackPtr + stackSize)
	pageCount := uint64(high-low) >> mem.PageShift

	if err := ctx.tables.MapRegion(low-directMapBase, low, pageCount, dataFlags); err != nil {
		return err
	}

	kfmt.Fprintf(&ctx.log, "stack mapped: [0x%16x - 0x%16x]\n", low, high)
	return nil
}

// mapBytemap maps the frames backing the bytemap in the kernel window so the
// allocator keeps working once the translator switches to it.
func (ctx *Context) mapBytemap() *kernel.Error {
	virtAddr, err := ctx.tables.IdentityMapRegion(ctx.frames.BytemapBase(), ctx.frames.BytemapPages(), dataFlags)
	if err != nil {
		return err
	}

	kfmt.Fprintf(&ctx.log, "bytemap mapped at 0x%16x (%d pages)\n", virtAddr, ctx.frames.BytemapPages())
	return nil
}
