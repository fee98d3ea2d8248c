// Package kmem ties the physical frame allocator and the kernel page tables
// together and sequences the hand-off from the boot loader's page tables to
// the kernel's own.
package kmem

import (
	"kernos/kernel"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem/physmap"
	"kernos/kernel/mem/pmm"
	"kernos/kernel/mem/vmm"
	"kernos/kernel/sync"
)

// Context owns the memory management state of the kernel: the frame
// allocator, the kernel page tables and the translator shared by both. All
// methods are serialized by a spinlock.
type Context struct {
	lock        sync.Spinlock
	initialized bool

	xlat   physmap.Translator
	frames pmm.BytemapAllocator
	tables vmm.PageDirectoryTable
	log    kfmt.PrefixWriter
	cfg    config
}

// AllocFrames reserves count contiguous physical frames.
func (ctx *Context) AllocFrames(count int) (pmm.Frame, *kernel.Error) {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.frames.AllocFrames(count)
}

// AllocFrame reserves a single physical frame.
func (ctx *Context) AllocFrame() (pmm.Frame, *kernel.Error) {
	return ctx.AllocFrames(1)
}

// FreeFrame returns a frame to the allocator.
func (ctx *Context) FreeFrame(frame pmm.Frame) *kernel.Error {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.frames.FreeFrame(frame)
}

// Map establishes a mapping from virtAddr to physAddr in the kernel tables.
func (ctx *Context) Map(physAddr, virtAddr uintptr, flags vmm.PageTableEntryFlag) *kernel.Error {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.tables.Map(physAddr, virtAddr, flags)
}

// IdentityMap maps physAddr into the kernel window and returns the virtual
// address it can be accessed at.
func (ctx *Context) IdentityMap(physAddr uintptr, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error) {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.tables.IdentityMap(physAddr, flags)
}

// Lookup returns the leaf entry that maps virtAddr.
func (ctx *Context) Lookup(virtAddr uintptr) (vmm.PageTableEntry, *kernel.Error) {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.tables.Lookup(virtAddr)
}

// Translate returns the physical address that virtAddr maps to.
func (ctx *Context) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	ctx.lock.Acquire()
	defer ctx.lock.Release()

	return ctx.tables.Translate(virtAddr)
}

// PhysToPointer returns the address at which physAddr can be accessed under
// the active translation regime.
func (ctx *Context) PhysToPointer(physAddr uintptr) uintptr {
	return ctx.xlat.PhysToPointer(physAddr)
}

// Frames returns the frame allocator. Callers must not use it concurrently
// with the Context methods.
func (ctx *Context) Frames() *pmm.BytemapAllocator {
	return &ctx.frames
}

// Tables returns the kernel page tables. Callers must not use them
// concurrently with the Context methods.
func (ctx *Context) Tables() *vmm.PageDirectoryTable {
	return &ctx.tables
}

// Translator returns the translator shared by the allocator and the tables.
func (ctx *Context) Translator() *physmap.Translator {
	return &ctx.xlat
}
