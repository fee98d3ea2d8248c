package kmem

import (
	"kernos/kernel/mem"
	"kernos/kernel/mem/vmm"
)

// DefaultStackSize is the size of the stack region mapped on each side of
// the stack pointer when the boot loader did not report a stack size.
const DefaultStackSize = 64 * mem.Kb

type config struct {
	windowOffset uintptr
	stackSize    mem.Size
}

// Option customizes the hand-off performed by Context.Init.
type Option func(*config)

// WithKernelWindowOffset overrides the virtual address where physical
// address 0 appears in the kernel window.
func WithKernelWindowOffset(offset uintptr) Option {
	return func(cfg *config) {
		cfg.windowOffset = offset
	}
}

// WithStackSize overrides the stack size reported by the boot loader.
func WithStackSize(size mem.Size) Option {
	return func(cfg *config) {
		cfg.stackSize = size
	}
}

func makeConfig(stackSize mem.Size, opts []Option) config {
	cfg := config{
		windowOffset: vmm.KernelWindowOffset,
		stackSize:    stackSize,
	}
	if cfg.stackSize == 0 {
		cfg.stackSize = DefaultStackSize
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
