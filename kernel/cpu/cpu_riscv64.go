//go:build riscv64
// +build riscv64

package cpu

// Halt stops instruction execution on the current hart.
func Halt()

// FlushTLB flushes all address-translation cache entries of the current hart.
func FlushTLB()

// FlushTLBEntry flushes the address-translation cache entries for a
// particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ReadSATP returns the value stored in the satp register.
func ReadSATP() uint64

// WriteSATP loads value into the satp register and flushes the TLB.
func WriteSATP(value uint64)

// ConsolePutchar writes a single byte to the SBI debug console.
func ConsolePutchar(ch byte)
