package vmm

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/mem/pmm"
)

var (
	// memsetFn is used by tests and is automatically inlined by the compiler.
	memsetFn = mem.Memset

	// ErrUnalignedVirtualAddr is returned by Map when the virtual address
	// is not page-aligned.
	ErrUnalignedVirtualAddr = &kernel.Error{Module: "vmm", Message: "virtual address is not page-aligned"}

	// ErrUnalignedPhysicalAddr is returned by Map when the physical
	// address is not page-aligned.
	ErrUnalignedPhysicalAddr = &kernel.Error{Module: "vmm", Message: "physical address is not page-aligned"}

	// ErrUnalignedSize is returned by Map when the length of the region
	// is not a multiple of the page size.
	ErrUnalignedSize = &kernel.Error{Module: "vmm", Message: "mapping length is not a multiple of the page size"}

	// ErrPageFrameAlloc is returned by Map when a frame for a page table
	// could not be allocated.
	ErrPageFrameAlloc = &kernel.Error{Module: "vmm", Message: "failed to allocate a page table frame"}

	errUnsupportedPagingMode = &kernel.Error{Module: "vmm", Message: "unsupported paging mode"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// Mapper installs mappings into a hierarchy of page tables that is accessed
// through the direct map.
//
// A Mapper does not synchronize access to the tables it modifies and never
// flushes the TLB; callers are responsible for both.
type Mapper struct {
	// Mode is the paging mode which determines the number of levels.
	Mode mem.PagingMode

	// DirectMap is the offset at which physical memory is mapped into
	// the kernel's address space.
	DirectMap uint64

	// AllocFn provides frames for new page tables.
	AllocFn FrameAllocatorFn
}

// Map establishes a mapping of length bytes from virtAddr to physAddr in the
// page table hierarchy rooted at root. The region is covered greedily with
// the largest page size (1 GiB, 2 MiB or 4 KiB) that fits the remaining
// length and for which both addresses are suitably aligned.
//
// Missing intermediate tables are allocated via AllocFn and zeroed. An
// intermediate entry that holds a huge page leaf is replaced by a new table
// and existing leaf entries are overwritten.
//
// If a table frame cannot be allocated, Map returns ErrPageFrameAlloc and
// the pages mapped before the failure remain mapped.
func (m *Mapper) Map(root mem.PhysicalAddr, virtAddr mem.VirtualAddr, physAddr mem.PhysicalAddr, length mem.Size, flags VirtualMemoryFlags) *kernel.Error {
	switch {
	case !m.Mode.Valid():
		return errUnsupportedPagingMode
	case !virtAddr.IsAlignedWith(mem.PageSize):
		return ErrUnalignedVirtualAddr
	case !physAddr.IsAlignedWith(mem.PageSize):
		return ErrUnalignedPhysicalAddr
	case length%mem.PageSize != 0:
		return ErrUnalignedSize
	}

	pteFlags := flags.pteFlags()
	for length > 0 {
		level := leafLevel(virtAddr, physAddr, length)

		pte, err := m.leafEntry(root, virtAddr, level)
		if err != nil {
			return err
		}

		*pte = 0
		pte.SetFrame(pmm.FrameFromAddress(physAddr))
		pte.SetFlags(pteFlags)

		pageSize := levelPageSize(level)
		virtAddr, physAddr, length = virtAddr.Add(pageSize), physAddr.Add(pageSize), length-pageSize
	}

	return nil
}

// leafLevel selects the highest level whose page size fits in length and is
// compatible with the alignment of both addresses.
func leafLevel(virtAddr mem.VirtualAddr, physAddr mem.PhysicalAddr, length mem.Size) uint8 {
	for level := uint8(maxLeafLevel); level > 0; level-- {
		pageSize := levelPageSize(level)
		if length >= pageSize && virtAddr.IsAlignedWith(pageSize) && physAddr.IsAlignedWith(pageSize) {
			return level
		}
	}

	return 0
}

// leafEntry walks the tables from the root down to the table at the
// requested leaf level, allocating any missing tables along the way, and
// returns a pointer to the entry for virtAddr at that level.
func (m *Mapper) leafEntry(root mem.PhysicalAddr, virtAddr mem.VirtualAddr, leaf uint8) (*pageTableEntry, *kernel.Error) {
	table := tableAt(root, m.DirectMap)
	for level := m.Mode.RootLevel(); level > leaf; level-- {
		pte := &table[entryIndex(virtAddr, level)]

		if !pte.HasFlags(PteValid) || pte.IsLeaf() {
			frame, err := m.AllocFn()
			if err != nil {
				return nil, ErrPageFrameAlloc
			}

			memsetFn(frame.Address().ToVirtual(m.DirectMap), 0, mem.PageSize)

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(PteValid)
		}

		table = tableAt(pte.Address(), m.DirectMap)
	}

	return &table[entryIndex(virtAddr, leaf)], nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (m *Mapper) Translate(root mem.PhysicalAddr, virtAddr mem.VirtualAddr) (mem.PhysicalAddr, *kernel.Error) {
	if !m.Mode.Valid() {
		return 0, errUnsupportedPagingMode
	}

	var (
		physAddr mem.PhysicalAddr
		err      = ErrInvalidMapping
	)

	walk(root, m.Mode, m.DirectMap, virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.IsLeaf() {
			return true
		}

		// Append the offset inside the (possibly huge) page to the
		// frame address
		pageSize := levelPageSize(level)
		physAddr = pte.Address().Add(mem.Size(virtAddr.Raw()) & (pageSize - 1))
		err = nil
		return false
	})

	return physAddr, err
}

// Unmap removes the leaf entry that maps virtAddr and returns the size of the
// page that it mapped. Page tables that become empty are not released.
func (m *Mapper) Unmap(root mem.PhysicalAddr, virtAddr mem.VirtualAddr) (mem.Size, *kernel.Error) {
	if !m.Mode.Valid() {
		return 0, errUnsupportedPagingMode
	}

	var (
		pageSize mem.Size
		err      = ErrInvalidMapping
	)

	walk(root, m.Mode, m.DirectMap, virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.IsLeaf() {
			return true
		}

		*pte = 0
		pageSize, err = levelPageSize(level), nil
		return false
	})

	return pageSize, err
}
