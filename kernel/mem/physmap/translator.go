// Package physmap converts between physical addresses and pointers that the
// kernel can dereference. Two translation regimes exist: while the boot
// loader's page tables are active, physical memory is reached through the
// loader's higher-half direct map; once the kernel's own tables are loaded it
// is reached through the kernel's identity window. The regime changes exactly
// once.
package physmap

import "kernos/kernel"

// Regime identifies the page tables that back physical address translation.
type Regime uint8

const (
	// RegimeBootOwned indicates that the boot loader's tables are active.
	RegimeBootOwned Regime = iota

	// RegimeKernelOwned indicates that the kernel's tables are active.
	RegimeKernelOwned
)

// String implements fmt.Stringer for Regime.
func (r Regime) String() string {
	if r == RegimeKernelOwned {
		return "kernel-owned"
	}
	return "boot-owned"
}

var (
	// ErrRegimeAlreadyKernel is returned when attempting to switch to the
	// kernel-owned regime a second time.
	ErrRegimeAlreadyKernel = &kernel.Error{Module: "physmap", Kind: kernel.KindInvariantViolation, Message: "translation regime already switched to kernel-owned tables"}
)

// Translator converts physical addresses to dereferenceable pointers and
// back under the currently active regime.
type Translator struct {
	bootOffset   uintptr
	kernelOffset uintptr
	regime       Regime
}

// New returns a Translator in the boot-owned regime. bootOffset is the
// boot loader's direct map offset and kernelOffset the offset of the
// identity window maintained by the kernel tables.
func New(bootOffset, kernelOffset uintptr) *Translator {
	return &Translator{
		bootOffset:   bootOffset,
		kernelOffset: kernelOffset,
	}
}

// Regime returns the active translation regime.
func (t *Translator) Regime() Regime {
	return t.regime
}

// BootOffset returns the boot loader's direct map offset.
func (t *Translator) BootOffset() uintptr {
	return t.bootOffset
}

// KernelOffset returns the offset of the kernel identity window.
func (t *Translator) KernelOffset() uintptr {
	return t.kernelOffset
}

// ActiveOffset returns the offset used by the active regime.
func (t *Translator) ActiveOffset() uintptr {
	if t.regime == RegimeKernelOwned {
		return t.kernelOffset
	}
	return t.bootOffset
}

// PhysToPointer returns a dereferenceable address for physAddr.
func (t *Translator) PhysToPointer(physAddr uintptr) uintptr {
	return physAddr + t.ActiveOffset()
}

// PointerToPhys returns the physical address behind a pointer obtained via
// PhysToPointer under the active regime.
func (t *Translator) PointerToPhys(ptr uintptr) uintptr {
	return ptr - t.ActiveOffset()
}

// SwitchRegime invokes loadRoot, which is expected to load the kernel's root
// page table, and flips the translator to the kernel-owned regime before
// returning. No translation can be observed between the two steps. Calling
// SwitchRegime after the flip returns ErrRegimeAlreadyKernel without
// invoking loadRoot.
func (t *Translator) SwitchRegime(loadRoot func()) *kernel.Error {
	if t.regime == RegimeKernelOwned {
		return ErrRegimeAlreadyKernel
	}

	loadRoot()
	t.switchToKernel()
	return nil
}

func (t *Translator) switchToKernel() {
	t.regime = RegimeKernelOwned
}
