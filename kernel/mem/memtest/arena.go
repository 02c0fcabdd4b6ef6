// Package memtest provides a simulated physical memory region for testing the
// memory subsystems on a development host.
package memtest

import (
	"sync"
	"unsafe"

	"github.com/NebulousLabs/fastrand"
	"github.com/brymer-meneses/Nekos/kernel/mem"
)

// Arena is a page-aligned block of host memory that stands in for a range of
// physical memory starting at PhysBase. Physical addresses inside the range
// can be dereferenced by adding DirectMapOffset, exactly like the kernel
// accesses physical memory through the bootloader's direct map.
type Arena struct {
	// PhysBase is the simulated physical address of the first frame.
	PhysBase mem.PhysicalAddr

	// Frames is the number of frames in the arena.
	Frames uint64

	// DirectMapOffset maps PhysBase to the host address of the first frame.
	DirectMapOffset uint64

	buf []byte
}

var (
	// liveArenas keeps every arena reachable. Code under test only refers
	// to arena memory through integer addresses which the garbage
	// collector does not track.
	liveArenasMu sync.Mutex
	liveArenas   []*Arena
)

// NewArena allocates an arena with the requested number of frames whose
// simulated physical address starts at physBase. physBase must be
// page-aligned.
func NewArena(physBase mem.PhysicalAddr, frames uint64) *Arena {
	// Over-allocate by one page so the start can be aligned.
	buf := make([]byte, (frames+1)*uint64(mem.PageSize))
	start := mem.VirtualAddr(uintptr(unsafe.Pointer(&buf[0]))).AlignUp(mem.PageSize)

	arena := &Arena{
		PhysBase:        physBase,
		Frames:          frames,
		DirectMapOffset: start.Raw() - physBase.Raw(),
		buf:             buf,
	}

	liveArenasMu.Lock()
	liveArenas = append(liveArenas, arena)
	liveArenasMu.Unlock()

	return arena
}

// End returns the physical address right after the last arena frame.
func (a *Arena) End() mem.PhysicalAddr {
	return a.PhysBase.Add(mem.Size(a.Frames) * mem.PageSize)
}

// FrameAddr returns the physical address of the n-th arena frame.
func (a *Arena) FrameAddr(n uint64) mem.PhysicalAddr {
	return a.PhysBase.Add(mem.Size(n) * mem.PageSize)
}

// Bytes returns a slice over the simulated physical memory [addr, addr+size).
func (a *Arena) Bytes(addr mem.PhysicalAddr, size mem.Size) []byte {
	virt := addr.ToVirtual(a.DirectMapOffset)
	return unsafe.Slice((*byte)(unsafe.Pointer(virt.Pointer())), int(size))
}

// Fill sets every byte of the arena to value.
func (a *Arena) Fill(value byte) {
	b := a.Bytes(a.PhysBase, mem.Size(a.Frames)*mem.PageSize)
	for i := range b {
		b[i] = value
	}
}

// Randomize overwrites the arena with random bytes so that code reading
// memory it did not initialize is likely to misbehave.
func (a *Arena) Randomize() {
	fastrand.Read(a.Bytes(a.PhysBase, mem.Size(a.Frames)*mem.PageSize))
}
