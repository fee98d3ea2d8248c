package kfmt

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the active output sink and
// halts the CPU. It is the only place where the boot sequence turns an error
// into a machine halt.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		if err.Kind != kernel.KindUnknown {
			Printf("[%s] unrecoverable error (%s): %s\n", err.Module, err.Kind.String(), err.Message)
		} else {
			Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
		}
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
