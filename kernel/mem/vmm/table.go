// Package vmm manages the riscv64 Sv39, Sv48 and Sv57 page tables. Page
// tables are accessed through the bootloader-installed direct map so no
// recursive mapping is required.
package vmm

import (
	"unsafe"

	"github.com/brymer-meneses/Nekos/kernel/mem"
)

const (
	// pageLevelBits is the number of virtual address bits consumed by
	// each paging level.
	pageLevelBits = 9

	// entriesPerTable is the number of entries in a page table.
	entriesPerTable = 1 << pageLevelBits

	// maxLeafLevel is the highest level at which a leaf entry can be
	// installed by Map (a 1 GiB page).
	maxLeafLevel = 2
)

// pageTable is a single page-sized table of page table entries.
type pageTable [entriesPerTable]pageTableEntry

// tableAt returns a pointer to the page table stored in the physical frame
// at addr using the direct map located at directMap.
func tableAt(addr mem.PhysicalAddr, directMap uint64) *pageTable {
	return (*pageTable)(unsafe.Pointer(addr.ToVirtual(directMap).Pointer()))
}

// entryIndex returns the index of the entry that covers virtAddr in a table
// at the given level.
func entryIndex(virtAddr mem.VirtualAddr, level uint8) uint64 {
	return (virtAddr.Raw() >> (mem.PageShift + pageLevelBits*uint64(level))) & (entriesPerTable - 1)
}

// levelPageSize returns the size of the page mapped by a leaf entry at the
// given level: 4 KiB at level 0, 2 MiB at level 1 and 1 GiB at level 2.
func levelPageSize(level uint8) mem.Size {
	return mem.PageSize << (pageLevelBits * uint64(level))
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the root table. It calls the supplied walkFn with the entry that
// corresponds to each visited level. The walk descends while entries point
// to a next-level table and stops after visiting an invalid entry, a leaf or
// a level 0 entry.
func walk(root mem.PhysicalAddr, mode mem.PagingMode, directMap uint64, virtAddr mem.VirtualAddr, walkFn pageTableWalker) {
	table := tableAt(root, directMap)
	for level := mode.RootLevel(); ; level-- {
		pte := &table[entryIndex(virtAddr, level)]
		if !walkFn(level, pte) {
			return
		}

		if level == 0 || !pte.HasFlags(PteValid) || pte.IsLeaf() {
			return
		}

		table = tableAt(pte.Address(), directMap)
	}
}
