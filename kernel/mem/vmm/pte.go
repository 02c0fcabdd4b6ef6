package vmm

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// Flags shared by the Sv39, Sv48 and Sv57 page table entry formats.
const (
	PteValid PageTableEntryFlag = 1 << iota
	PteReadable
	PteWritable
	PteExecutable
	PteUser
	PteGlobal
	PteAccessed
	PteDirty
)

const (
	ptePPNShift = 10
	ptePPNBits  = 44
	ptePPNMask  = (uint64(1)<<ptePPNBits - 1) << ptePPNShift

	// pteLeafMask selects the flags whose presence turns an entry into a
	// leaf. A valid entry with none of them set points to the next table.
	pteLeafMask = PteReadable | PteWritable | PteExecutable
)

// pageTableEntry describes a page table entry. These entries encode the
// physical page number (PPN) of a frame in bits 10 to 53 and a set of flags
// in the low 8 bits.
type pageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// IsLeaf returns true if this is a valid entry that maps a page rather than
// pointing to a next-level table.
func (pte pageTableEntry) IsLeaf() bool {
	return pte.HasFlags(PteValid) && pte.HasAnyFlag(pteLeafMask)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uint64(pte) & ptePPNMask) >> ptePPNShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (pageTableEntry)((uint64(*pte) &^ ptePPNMask) | (uint64(frame)<<ptePPNShift)&ptePPNMask)
}

// Address returns the physical address of the frame this entry points to.
func (pte pageTableEntry) Address() mem.PhysicalAddr {
	return pte.Frame().Address()
}
