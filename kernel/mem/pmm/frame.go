// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"math"

	"github.com/brymer-meneses/Nekos/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uint64

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() mem.PhysicalAddr {
	return mem.PhysicalAddr(f << mem.PageShift)
}

// FrameFromAddress returns a Frame that corresponds to the given physical
// address. This function can handle both page-aligned and not aligned
// addresses. In the latter case, the input address will be rounded down to
// the frame that contains it.
func FrameFromAddress(physAddr mem.PhysicalAddr) Frame {
	return Frame(physAddr.AlignDown(mem.PageSize) >> mem.PageShift)
}
