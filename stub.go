//go:build riscv64
// +build riscv64

package main

import (
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kmain"
)

// bootInfo is populated by the boot shim from the bootloader responses
// before main is invoked.
var bootInfo boot.Info

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// A global variable is passed as an argument to Kmain to prevent the compiler
// from inlining the actual call and removing Kmain from the generated .o file.
func main() {
	kmain.Kmain(&bootInfo)
}
