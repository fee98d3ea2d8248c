package main

import (
	"kernos/kernel/hal/limine"
	"kernos/kernel/kmain"
)

// The addresses of the boot loader responses are patched in by the rt0 code
// before main runs.
var (
	memmapResponsePtr        uintptr
	hhdmResponsePtr          uintptr
	kernelAddressResponsePtr uintptr
)

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// Global variables are passed as arguments to Kmain to prevent the compiler
// from inlining the actual call and removing Kmain from the generated .o file.
func main() {
	kmain.Kmain(limine.Decode(limine.Responses{
		Memmap:        memmapResponsePtr,
		HHDM:          hhdmResponsePtr,
		KernelAddress: kernelAddressResponsePtr,
	}))
}
