//go:build !riscv64
// +build !riscv64

// Package cpu exposes the riscv64 privileged primitives used by the memory
// subsystems. On other architectures the primitives are inert so that the
// portable kernel packages can be unit-tested on a development host; the
// kernel image itself only builds for riscv64.
package cpu

// Halt stops instruction execution on the current hart.
func Halt() {}

// FlushTLB flushes all address-translation cache entries of the current hart.
func FlushTLB() {}

// FlushTLBEntry flushes the address-translation cache entries for a
// particular virtual address.
func FlushTLBEntry(_ uintptr) {}

// ReadSATP returns the value stored in the satp register.
func ReadSATP() uint64 { return 0 }

// WriteSATP loads value into the satp register and flushes the TLB.
func WriteSATP(_ uint64) {}

// ConsolePutchar writes a single byte to the SBI debug console.
func ConsolePutchar(_ byte) {}
