package limine

import (
	"kernos/kernel"
	"kernos/kernel/mem"
)

var (
	// ErrNoMemoryMap is returned when the boot loader did not provide a
	// memory map or the map has no usable regions.
	ErrNoMemoryMap = &kernel.Error{Module: "limine", Kind: kernel.KindBootstrapUnsatisfiable, Message: "boot loader did not provide a usable memory map"}

	// ErrNoKernelAddress is returned when the kernel load addresses are missing.
	ErrNoKernelAddress = &kernel.Error{Module: "limine", Kind: kernel.KindBootstrapUnsatisfiable, Message: "boot loader did not provide the kernel load address"}

	// ErrNoHHDMOffset is returned when the higher-half direct map offset is missing.
	ErrNoHHDMOffset = &kernel.Error{Module: "limine", Kind: kernel.KindBootstrapUnsatisfiable, Message: "boot loader did not provide the higher-half direct map offset"}

	// ErrNoKernelRegion is returned when the kernel physical base does not
	// fall inside a kernel-and-modules region.
	ErrNoKernelRegion = &kernel.Error{Module: "limine", Kind: kernel.KindBootstrapUnsatisfiable, Message: "kernel image is not covered by a kernel-and-modules region"}
)

// KernelAddress describes where the boot loader placed the kernel image.
type KernelAddress struct {
	// The physical address the image was loaded at.
	PhysicalBase uint64

	// The virtual address the image is linked at.
	VirtualBase uint64
}

// BootInfo collects the boot loader responses consumed by the memory core.
type BootInfo struct {
	// MemoryMap lists the physical memory regions.
	MemoryMap MemoryMap

	// KernelAddress holds the kernel load addresses.
	KernelAddress *KernelAddress

	// HHDMOffset is the virtual offset at which the boot loader mapped all
	// physical memory.
	HHDMOffset uint64

	// StackSize is the stack size requested from the boot loader. A zero
	// value means the loader default.
	StackSize mem.Size

	// StackPointer is a pointer into the stack the kernel is running on.
	// It is captured by the entrypoint when left unset.
	StackPointer uintptr
}

// Validate checks that all the information required to take over memory
// management is present.
func (info *BootInfo) Validate() *kernel.Error {
	switch {
	case len(info.MemoryMap) == 0 || info.MemoryMap.UsableTop() == 0:
		return ErrNoMemoryMap
	case info.KernelAddress == nil:
		return ErrNoKernelAddress
	case info.HHDMOffset == 0:
		return ErrNoHHDMOffset
	}

	return nil
}

// KernelRegion returns the kernel-and-modules region that contains the
// physical base of the kernel image.
func (info *BootInfo) KernelRegion() (MemoryMapEntry, *kernel.Error) {
	if info.KernelAddress == nil {
		return MemoryMapEntry{}, ErrNoKernelAddress
	}

	region, ok := info.MemoryMap.FindRegion(info.KernelAddress.PhysicalBase, MemKernelAndModules)
	if !ok {
		return MemoryMapEntry{}, ErrNoKernelRegion
	}

	return region, nil
}
