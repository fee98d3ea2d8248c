package kmain

import (
	"unsafe"

	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/driver/serial"
	"kernos/kernel/hal/limine"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem/kmem"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The memory context and the serial port live in static storage as
	// the Go allocator is not available yet.
	memCtx kmem.Context
	com1   serial.Port

	// hw provides the privileged instructions. It is replaced by tests.
	hw cpu.Hardware = cpu.Native{}

	// memOptions are passed to the memory context. Tests use them to point
	// the kernel window at simulated memory.
	memOptions []kmem.Option

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked once the boot loader responses have been
// decoded and runs on the stack provided by the boot loader.
//
// Kmain attaches the first serial port as the diagnostics sink, takes over
// memory management from the boot loader and never returns; any error halts
// the CPU after being reported.
//
//go:noinline
func Kmain(info *limine.BootInfo) {
	if err := com1.Init(hw, serial.COM1); err == nil {
		kfmt.SetOutputSink(&com1)
	}
	kfmt.Printf("Starting kernos\n")

	if info.StackPointer == 0 {
		var stackMarker uintptr
		info.StackPointer = uintptr(unsafe.Pointer(&stackMarker))
	}

	info.MemoryMap.Print(kfmt.GetOutputSink())

	if err := memCtx.Init(info, hw, nil, memOptions...); err != nil {
		panicFn(err)
		return
	}

	// Use panicFn instead of panic to prevent the compiler from treating
	// the call as dead code and eliminating it.
	panicFn(errKmainReturned)
}
