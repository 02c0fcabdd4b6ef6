package vmm

import (
	"testing"

	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/mem/memtest"
	"github.com/brymer-meneses/Nekos/kernel/mem/pmm"
)

var errTestOutOfFrames = &kernel.Error{Module: "test", Message: "out of frames"}

// testFrameAllocator hands out the frames of a simulated physical memory
// arena in ascending order. Frame 0 is reserved for the root table.
type testFrameAllocator struct {
	arena *memtest.Arena

	// next is the arena index of the next frame to hand out; frames at
	// indices >= limit are never handed out.
	next, limit uint64
}

func newTestFrameAllocator(frames uint64) *testFrameAllocator {
	arena := memtest.NewArena(0x8000_0000, frames)

	// Fill with garbage so that tables which are not cleared before use
	// get noticed.
	arena.Randomize()
	memsetFn(arena.PhysBase.ToVirtual(arena.DirectMapOffset), 0, mem.PageSize)

	return &testFrameAllocator{arena: arena, next: 1, limit: frames}
}

func (a *testFrameAllocator) root() mem.PhysicalAddr {
	return a.arena.PhysBase
}

func (a *testFrameAllocator) allocated() uint64 {
	return a.next - 1
}

func (a *testFrameAllocator) alloc() (pmm.Frame, *kernel.Error) {
	if a.next >= a.limit {
		return pmm.InvalidFrame, errTestOutOfFrames
	}

	frame := pmm.FrameFromAddress(a.arena.FrameAddr(a.next))
	a.next++
	return frame, nil
}

func (a *testFrameAllocator) mapper(mode mem.PagingMode) *Mapper {
	return &Mapper{Mode: mode, DirectMap: a.arena.DirectMapOffset, AllocFn: a.alloc}
}

// countLeaves returns the number of leaf entries at each level of the page
// table hierarchy rooted at the supplied table.
func countLeaves(m *Mapper, table mem.PhysicalAddr, level uint8, counts *[maxLeafLevel + 1]int) {
	for _, pte := range tableAt(table, m.DirectMap) {
		switch {
		case !pte.HasFlags(PteValid):
		case pte.IsLeaf():
			counts[level]++
		case level > 0:
			countLeaves(m, pte.Address(), level-1, counts)
		}
	}
}

func TestMapGreedyPageSelection(t *testing.T) {
	specs := []struct {
		mode      mem.PagingMode
		virtAddr  mem.VirtualAddr
		physAddr  mem.PhysicalAddr
		length    mem.Size
		expLeaves [maxLeafLevel + 1]int
		expTables uint64
	}{
		// one 1G page in the Sv39 root table and one 4K page which needs a
		// level 1 and a level 0 table
		{mem.ModeSv39, 0x4000_0000, 0x8000_0000, mem.Gb + 4*mem.Kb, [3]int{1, 0, 1}, 2},
		// two 1G pages in a single level 2 table under the Sv48 root
		{mem.ModeSv48, 0x4000_0000, 0x8000_0000, 2 * mem.Gb, [3]int{0, 0, 2}, 1},
		// two 2M pages followed by two 4K pages
		{mem.ModeSv39, 0x20_0000, 0x8020_0000, 4*mem.Mb + 8*mem.Kb, [3]int{2, 2, 0}, 2},
		// the physical address is not 2M-aligned so only 4K pages can be used
		{mem.ModeSv39, 0x20_0000, 0x8020_1000, 2 * mem.Mb, [3]int{512, 0, 0}, 2},
		// 4K pages until the virtual address becomes 2M-aligned
		{mem.ModeSv39, 0x1f_e000, 0x801f_e000, 2*mem.Mb + 8*mem.Kb, [3]int{2, 1, 0}, 2},
		// Sv57 needs two extra levels of tables above the 1G page
		{mem.ModeSv57, 1<<48 | 1<<30, 0, mem.Gb, [3]int{0, 0, 1}, 2},
		// zero length is a no-op
		{mem.ModeSv48, 0x1000, 0x1000, 0, [3]int{0, 0, 0}, 0},
	}

	for specIndex, spec := range specs {
		alloc := newTestFrameAllocator(16)
		m := alloc.mapper(spec.mode)

		if err := m.Map(alloc.root(), spec.virtAddr, spec.physAddr, spec.length, FlagWriteable); err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		var counts [maxLeafLevel + 1]int
		countLeaves(m, alloc.root(), spec.mode.RootLevel(), &counts)
		if counts != spec.expLeaves {
			t.Errorf("[spec %d] expected leaf counts per level %v; got %v", specIndex, spec.expLeaves, counts)
		}

		if got := alloc.allocated(); got != spec.expTables {
			t.Errorf("[spec %d] expected %d table frames to be allocated; got %d", specIndex, spec.expTables, got)
		}

		// Sample the region and check that each address translates to
		// the matching physical address.
		stride := mem.PageSize
		if spec.length >= mem.Gb {
			stride = mem.HugePageSize2M + mem.PageSize
		}
		for offset := mem.Size(0); offset < spec.length; offset += stride {
			got, err := m.Translate(alloc.root(), spec.virtAddr.Add(offset))
			if err != nil {
				t.Errorf("[spec %d] unexpected translate error at offset 0x%x: %v", specIndex, offset, err)
				break
			}

			if exp := spec.physAddr.Add(offset); got != exp {
				t.Errorf("[spec %d] expected offset 0x%x to translate to 0x%x; got 0x%x", specIndex, offset, exp, got)
				break
			}
		}

		if _, err := m.Translate(alloc.root(), spec.virtAddr.Add(spec.length)); err != ErrInvalidMapping {
			t.Errorf("[spec %d] expected address past the region to be unmapped; got %v", specIndex, err)
		}
	}
}

func TestMapTwoGigabytePages(t *testing.T) {
	alloc := newTestFrameAllocator(8)
	m := alloc.mapper(mem.ModeSv48)

	if err := m.Map(alloc.root(), 0x4000_0000, 0x8000_0000, 2*mem.Gb, FlagWriteable); err != nil {
		t.Fatal(err)
	}

	root := tableAt(alloc.root(), m.DirectMap)
	l3 := root[0]
	if !l3.HasFlags(PteValid) || l3.IsLeaf() {
		t.Fatalf("expected root entry 0 to point to a level 2 table; got 0x%x", l3)
	}

	if l3.HasAnyFlag(PteReadable | PteWritable | PteExecutable | PteUser) {
		t.Fatalf("expected intermediate entry to only have the valid bit set; got 0x%x", l3)
	}

	l2 := tableAt(l3.Address(), m.DirectMap)
	for index, expPhys := range map[int]mem.PhysicalAddr{1: 0x8000_0000, 2: 0xc000_0000} {
		pte := l2[index]
		if exp := pageTableEntry(uint64(expPhys)>>mem.PageShift<<ptePPNShift) | pageTableEntry(PteValid|PteReadable|PteWritable); pte != exp {
			t.Errorf("expected level 2 entry %d to be 0x%x; got 0x%x", index, exp, pte)
		}
	}

	for _, spec := range []struct {
		virtAddr mem.VirtualAddr
		expPhys  mem.PhysicalAddr
	}{
		{0x4000_0000, 0x8000_0000},
		{0x4000_1234, 0x8000_1234},
		{0x7fff_ffff, 0xbfff_ffff},
		{0x8000_0000, 0xc000_0000},
		{0xbfff_f000, 0xffff_f000},
	} {
		got, err := m.Translate(alloc.root(), spec.virtAddr)
		if err != nil {
			t.Errorf("unexpected error translating 0x%x: %v", spec.virtAddr, err)
			continue
		}
		if got != spec.expPhys {
			t.Errorf("expected 0x%x to translate to 0x%x; got 0x%x", spec.virtAddr, spec.expPhys, got)
		}
	}
}

func TestMapValidation(t *testing.T) {
	specs := []struct {
		mode     mem.PagingMode
		virtAddr mem.VirtualAddr
		physAddr mem.PhysicalAddr
		length   mem.Size
		expErr   *kernel.Error
	}{
		{0, 0x1000, 0x1000, mem.PageSize, errUnsupportedPagingMode},
		{mem.PagingMode(42), 0x1000, 0x1000, mem.PageSize, errUnsupportedPagingMode},
		{mem.ModeSv39, 0x1001, 0x1000, mem.PageSize, ErrUnalignedVirtualAddr},
		{mem.ModeSv39, 0x1000, 0x1800, mem.PageSize, ErrUnalignedPhysicalAddr},
		{mem.ModeSv39, 0x1000, 0x1000, mem.PageSize + 1, ErrUnalignedSize},
		{mem.ModeSv39, 0x1000, 0x1000, 512, ErrUnalignedSize},
	}

	for specIndex, spec := range specs {
		alloc := newTestFrameAllocator(4)
		m := alloc.mapper(spec.mode)

		if err := m.Map(alloc.root(), spec.virtAddr, spec.physAddr, spec.length, 0); err != spec.expErr {
			t.Errorf("[spec %d] expected to get error %v; got %v", specIndex, spec.expErr, err)
		}

		if got := alloc.allocated(); got != 0 {
			t.Errorf("[spec %d] expected no frames to be allocated; got %d", specIndex, got)
		}

		for index, pte := range tableAt(alloc.root(), m.DirectMap) {
			if pte != 0 {
				t.Errorf("[spec %d] expected root table to remain empty; entry %d is 0x%x", specIndex, index, pte)
				break
			}
		}
	}
}

func TestMapPartialMappingOnAllocFailure(t *testing.T) {
	// The root frame plus one frame for a level 1 table.
	alloc := newTestFrameAllocator(2)
	m := alloc.mapper(mem.ModeSv39)

	// The 2M page only needs a level 1 table; the trailing 4K page also
	// needs a level 0 table which cannot be allocated.
	if err := m.Map(alloc.root(), 0, 0x8000_0000, 2*mem.Mb+mem.PageSize, FlagWriteable); err != ErrPageFrameAlloc {
		t.Fatalf("expected to get ErrPageFrameAlloc; got %v", err)
	}

	if got, err := m.Translate(alloc.root(), 0x1000); err != nil || got != 0x8000_1000 {
		t.Fatalf("expected the 2M page installed before the failure to remain mapped; got 0x%x, %v", got, err)
	}

	if _, err := m.Translate(alloc.root(), 0x20_0000); err != ErrInvalidMapping {
		t.Fatalf("expected the page after the failure to be unmapped; got %v", err)
	}
}

func TestMapOverwritesExistingMappings(t *testing.T) {
	alloc := newTestFrameAllocator(8)
	m := alloc.mapper(mem.ModeSv39)
	root := alloc.root()

	if err := m.Map(root, 0, 0x8000_0000, 2*mem.Mb, 0); err != nil {
		t.Fatal(err)
	}

	// Remap a single 4K page with different flags.
	if err := m.Map(root, 0, 0x9000_0000, mem.PageSize, FlagWriteable); err != nil {
		t.Fatal(err)
	}

	// The 2M leaf is replaced by a level 0 table.
	if got, err := m.Translate(root, 0x10); err != nil || got != 0x9000_0010 {
		t.Fatalf("expected remapped page to translate to 0x90000010; got 0x%x, %v", got, err)
	}

	if _, err := m.Translate(root, 0x1000); err != ErrInvalidMapping {
		t.Fatalf("expected the rest of the replaced huge page to be unmapped; got %v", err)
	}

	// Overwriting a 4K leaf does not allocate.
	allocated := alloc.allocated()
	if err := m.Map(root, 0, 0xa000_0000, mem.PageSize, FlagExecutable); err != nil {
		t.Fatal(err)
	}

	if got := alloc.allocated(); got != allocated {
		t.Fatalf("expected no new tables to be allocated; got %d new frames", got-allocated)
	}

	if got, err := m.Translate(root, 0); err != nil || got != 0xa000_0000 {
		t.Fatalf("expected overwritten page to translate to 0xa0000000; got 0x%x, %v", got, err)
	}
}

func TestTranslateAndUnmap(t *testing.T) {
	alloc := newTestFrameAllocator(8)
	m := alloc.mapper(mem.ModeSv48)
	root := alloc.root()

	if err := m.Map(root, 0x4000_0000, 0x4000_0000, mem.Gb, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Map(root, 0x20_0000, 0x8000_0000, 2*mem.Mb, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Map(root, 0x1000, 0x8100_0000, mem.PageSize, 0); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		virtAddr    mem.VirtualAddr
		expPageSize mem.Size
	}{
		{0x4abc_d123, mem.Gb},
		{0x2f_ffff, 2 * mem.Mb},
		{0x1fff, mem.PageSize},
	}

	for specIndex, spec := range specs {
		if _, err := m.Translate(root, spec.virtAddr); err != nil {
			t.Errorf("[spec %d] unexpected translate error: %v", specIndex, err)
		}

		pageSize, err := m.Unmap(root, spec.virtAddr)
		if err != nil {
			t.Errorf("[spec %d] unexpected unmap error: %v", specIndex, err)
			continue
		}

		if pageSize != spec.expPageSize {
			t.Errorf("[spec %d] expected unmapped page size to be %d; got %d", specIndex, spec.expPageSize, pageSize)
		}

		if _, err = m.Translate(root, spec.virtAddr); err != ErrInvalidMapping {
			t.Errorf("[spec %d] expected address to be unmapped; got %v", specIndex, err)
		}

		if _, err = m.Unmap(root, spec.virtAddr); err != ErrInvalidMapping {
			t.Errorf("[spec %d] expected second unmap to fail with ErrInvalidMapping; got %v", specIndex, err)
		}
	}

	// Intermediate tables are not released.
	if !tableAt(root, m.DirectMap)[0].HasFlags(PteValid) {
		t.Fatal("expected the root entry to still point to a table")
	}

	unsupported := Mapper{DirectMap: m.DirectMap}
	if _, err := unsupported.Translate(root, 0); err != errUnsupportedPagingMode {
		t.Errorf("expected to get errUnsupportedPagingMode; got %v", err)
	}
	if _, err := unsupported.Unmap(root, 0); err != errUnsupportedPagingMode {
		t.Errorf("expected to get errUnsupportedPagingMode; got %v", err)
	}
}

func TestEntryIndexAndPageSize(t *testing.T) {
	// This address breaks down to:
	// level 4 index: 0x1f
	// level 3 index: 1
	// level 2 index: 2
	// level 1 index: 3
	// level 0 index: 4
	// offset       : 0x400
	virtAddr := mem.VirtualAddr(0x1f<<48 | 1<<39 | 2<<30 | 3<<21 | 4<<12 | 0x400)

	for level, exp := range []uint64{4, 3, 2, 1, 0x1f} {
		if got := entryIndex(virtAddr, uint8(level)); got != exp {
			t.Errorf("expected index at level %d to be %d; got %d", level, exp, got)
		}
	}

	for level, exp := range []mem.Size{mem.PageSize, mem.HugePageSize2M, mem.HugePageSize1G} {
		if got := levelPageSize(uint8(level)); got != exp {
			t.Errorf("expected page size at level %d to be %d; got %d", level, exp, got)
		}
	}
}
