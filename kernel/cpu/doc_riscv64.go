//go:build riscv64
// +build riscv64

// Package cpu exposes the riscv64 privileged primitives used by the memory
// subsystems: address-translation fences, the satp register, wfi and the SBI
// debug console.
package cpu
