// Package kmain sequences the initialization of the kernel memory subsystems.
package kmain

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/cpu"
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kfmt"
	"github.com/brymer-meneses/Nekos/kernel/mem/pmm/allocator"
	"github.com/brymer-meneses/Nekos/kernel/mem/vmm"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	allocatorInitFn  = allocator.Init
	vmmInitFn        = vmm.Init
	activateFn       = activateKernelDirectory
	consolePutcharFn = cpu.ConsolePutchar
	panicFn          = kfmt.Panic

	errKmainReturned         = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errMissingBootInfo       = &kernel.Error{Module: "kmain", Message: "bootloader did not provide the boot information"}
	errUnsupportedPagingMode = &kernel.Error{Module: "kmain", Message: "bootloader enabled an unsupported paging mode"}
)

// sbiConsole is an io.Writer that outputs to the SBI debug console.
type sbiConsole struct{}

// Write implements io.Writer.
func (sbiConsole) Write(p []byte) (int, error) {
	for _, ch := range p {
		consolePutcharFn(ch)
	}
	return len(p), nil
}

// Kmain is the only Go symbol that is visible (exported) from the boot shim.
// The shim invokes it after setting up a stack and zeroing the bss, passing
// the boot information it collected from the bootloader responses.
//
// Kmain is not expected to return. If it does, the shim will halt the hart.
//
//go:noinline
func Kmain(bootInfo *boot.Info) {
	kfmt.SetOutputSink(sbiConsole{})
	boot.SetInfo(bootInfo)

	var err *kernel.Error
	if err = checkBootInfo(bootInfo); err != nil {
		panicFn(err)
	} else if err = allocatorInitFn(bootInfo); err != nil {
		panicFn(err)
	} else if err = vmmInitFn(bootInfo, allocator.AllocFrame); err != nil {
		panicFn(err)
	} else {
		activateFn()
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// checkBootInfo ensures that the bootloader provided what the memory
// subsystems need.
func checkBootInfo(bootInfo *boot.Info) *kernel.Error {
	if bootInfo == nil {
		return errMissingBootInfo
	}

	if !bootInfo.PagingMode.Valid() {
		return errUnsupportedPagingMode
	}

	kfmt.Infof("paging mode: %s, direct map at 0x%16x\n", bootInfo.PagingMode.String(), bootInfo.DirectMapOffset)
	return nil
}

// activateKernelDirectory switches to the kernel page directory.
func activateKernelDirectory() {
	pd := vmm.KernelDirectory()
	pd.Activate()
	kfmt.Infof("switched to kernel page directory at 0x%x\n", pd.Root())
}
