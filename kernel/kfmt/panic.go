package kfmt

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports e on the output sink and halts the hart. e may be a
// *kernel.Error, an error or a string. On hardware Panic never returns; it is
// used for the fatal boot conditions of the memory subsystems.
func Panic(e interface{}) {
	if err := panicCause(e); err != nil {
		Printf("[panic]: %s: %s\n", err.Module, err.Message)
	} else {
		Printf("[panic]: unknown cause\n")
	}
	Printf("halting hart\n")

	cpuHaltFn()
}

// panicCause wraps e into a *kernel.Error. Go errors and strings reuse a
// preallocated error value.
func panicCause(e interface{}) *kernel.Error {
	switch t := e.(type) {
	case *kernel.Error:
		return t
	case error:
		errRuntimePanic.Message = t.Error()
	case string:
		errRuntimePanic.Message = t
	default:
		return nil
	}

	return errRuntimePanic
}
