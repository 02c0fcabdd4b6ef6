package allocator

import (
	"math"
	"unsafe"

	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/sync"
)

// rootNode is the link value that refers to the sentinel node embedded in
// the allocator. It is not page-aligned so it never collides with the
// address of an in-place node.
const rootNode = mem.PhysicalAddr(math.MaxUint64)

var (
	// ErrOutOfMemory is returned when no free region is large enough to
	// satisfy an allocation request.
	ErrOutOfMemory = &kernel.Error{Module: "frame_alloc", Message: "out of memory"}

	errZeroFrames      = &kernel.Error{Module: "frame_alloc", Message: "requested frame count must be greater than zero"}
	errUnalignedRegion = &kernel.Error{Module: "frame_alloc", Message: "region address is not page-aligned"}
	errSeedOutOfOrder  = &kernel.Error{Module: "frame_alloc", Message: "seeded regions must be supplied in ascending address order"}
)

// freeListNode describes a maximal run of free frames. Nodes are not
// allocated anywhere; each one is written in place at the start of the
// free region it describes and accessed through the direct map.
//
// The next and prev links hold the physical address of the neighbouring
// nodes. Since a node lives at its region base, a node's address and its
// base are always equal.
type freeListNode struct {
	next, prev mem.PhysicalAddr
	base       mem.PhysicalAddr
	frames     uint64
}

// end returns the address of the first frame past the region.
func (n *freeListNode) end() mem.PhysicalAddr {
	return n.base.Add(mem.Size(n.frames) * mem.PageSize)
}

// FreeListAllocator is a physical frame allocator that tracks free memory as
// a list of regions sorted by ascending base address. The list is circular
// with a sentinel root node so insertion and removal never need to special
// case the list ends.
//
// The allocator maintains the following invariants while its lock is not
// held:
//  - nodes are in strictly ascending base address order.
//  - no node ends where its successor begins; adjacent regions are always
//    coalesced on insertion.
//
// Deallocating a region that overlaps a free region (e.g. a double free) is
// not detected and corrupts the list. Callers must only return frames that
// they obtained from Allocate.
type FreeListAllocator struct {
	lock sync.Spinlock

	// root is the sentinel; root.next is the lowest region and root.prev
	// the highest one.
	root freeListNode

	directMapOffset uint64
}

// Init resets the allocator to an empty state. Free regions are accessed via
// the direct map located at directMapOffset.
func (alloc *FreeListAllocator) Init(directMapOffset uint64) {
	alloc.lock.Acquire()
	alloc.root = freeListNode{next: rootNode, prev: rootNode}
	alloc.directMapOffset = directMapOffset
	alloc.lock.Release()
}

// Seed registers a free region during boot. Regions must be supplied in
// ascending address order; each region is appended to the tail of the list
// and merged with the previous region if the two are adjacent.
func (alloc *FreeListAllocator) Seed(region mem.PhysicalAddr, frames uint64) *kernel.Error {
	if !region.IsAlignedWith(mem.PageSize) {
		return errUnalignedRegion
	}

	if frames == 0 {
		return nil
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	tail := alloc.root.prev
	if tail != rootNode && region < alloc.node(tail).end() {
		return errSeedOutOfOrder
	}

	alloc.writeNode(region, frames)
	alloc.insertAfter(tail, region)

	if tail != rootNode && alloc.node(tail).end() == region {
		alloc.merge(tail, region)
	}

	return nil
}

// Allocate reserves a contiguous block of frames using a first-fit scan and
// returns the physical address of the first frame.
//
// When the selected region is larger than the request, the block is carved
// from the end of the region. This leaves the node, which lives at the region
// base, where it is and only shrinks it.
func (alloc *FreeListAllocator) Allocate(frames uint64) (mem.PhysicalAddr, *kernel.Error) {
	if frames == 0 {
		return 0, errZeroFrames
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	for cur := alloc.root.next; cur != rootNode; {
		node := alloc.node(cur)

		switch {
		case node.frames > frames:
			node.frames -= frames
			return node.end(), nil
		case node.frames == frames:
			alloc.unlink(cur)
			return node.base, nil
		}

		cur = node.next
	}

	return 0, ErrOutOfMemory
}

// Deallocate returns a block of frames to the allocator. A node for the block
// is written in place, linked in address order and merged with its
// neighbours when they are adjacent.
//
// The block must not overlap any free region. This precondition is not
// checked.
func (alloc *FreeListAllocator) Deallocate(addr mem.PhysicalAddr, frames uint64) *kernel.Error {
	if !addr.IsAlignedWith(mem.PageSize) {
		return errUnalignedRegion
	}

	if frames == 0 {
		return nil
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	// Find the last node below addr; the new node goes right after it.
	prev := rootNode
	for cur := alloc.root.next; cur != rootNode && cur < addr; cur = alloc.node(cur).next {
		prev = cur
	}

	alloc.writeNode(addr, frames)
	alloc.insertAfter(prev, addr)
	alloc.coalesce(addr)

	return nil
}

// FreeFrames returns the total number of free frames.
func (alloc *FreeListAllocator) FreeFrames() uint64 {
	var total uint64

	alloc.VisitFreeRegions(func(_ mem.PhysicalAddr, frames uint64) bool {
		total += frames
		return true
	})

	return total
}

// FreeRegionVisitor is invoked by VisitFreeRegions for each free region. The
// visitor must return true to continue or false to abort the scan.
type FreeRegionVisitor func(base mem.PhysicalAddr, frames uint64) bool

// VisitFreeRegions invokes visitor for each free region in ascending address
// order. The allocator lock is held for the duration of the scan so the
// visitor must not call back into the allocator.
func (alloc *FreeListAllocator) VisitFreeRegions(visitor FreeRegionVisitor) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	for cur := alloc.root.next; cur != rootNode; {
		node := alloc.node(cur)
		if !visitor(node.base, node.frames) {
			return
		}
		cur = node.next
	}
}

// node returns a pointer to the node stored at addr.
func (alloc *FreeListAllocator) node(addr mem.PhysicalAddr) *freeListNode {
	if addr == rootNode {
		return &alloc.root
	}

	return (*freeListNode)(unsafe.Pointer(addr.ToVirtual(alloc.directMapOffset).Pointer()))
}

// writeNode initializes an unlinked node describing [addr, addr+frames).
func (alloc *FreeListAllocator) writeNode(addr mem.PhysicalAddr, frames uint64) {
	*alloc.node(addr) = freeListNode{
		next:   rootNode,
		prev:   rootNode,
		base:   addr,
		frames: frames,
	}
}

// insertAfter links the node at addr right after the node at prev.
func (alloc *FreeListAllocator) insertAfter(prev, addr mem.PhysicalAddr) {
	var (
		prevNode = alloc.node(prev)
		node     = alloc.node(addr)
	)

	node.prev = prev
	node.next = prevNode.next
	alloc.node(prevNode.next).prev = addr
	prevNode.next = addr
}

// unlink removes the node at addr from the list. The node memory is left
// untouched; from this point on it belongs to whoever owns the frames.
func (alloc *FreeListAllocator) unlink(addr mem.PhysicalAddr) {
	node := alloc.node(addr)
	alloc.node(node.prev).next = node.next
	alloc.node(node.next).prev = node.prev
}

// merge extends the node at left with the region of its successor right and
// removes right from the list.
func (alloc *FreeListAllocator) merge(left, right mem.PhysicalAddr) {
	alloc.node(left).frames += alloc.node(right).frames
	alloc.unlink(right)
}

// coalesce merges the node at addr with its predecessor and successor if they
// are adjacent. As the list never contains adjacent nodes before the
// insertion, one merge per side restores the invariant.
func (alloc *FreeListAllocator) coalesce(addr mem.PhysicalAddr) {
	if prev := alloc.node(addr).prev; prev != rootNode && alloc.node(prev).end() == addr {
		alloc.merge(prev, addr)
		addr = prev
	}

	if next := alloc.node(addr).next; next != rootNode && alloc.node(addr).end() == next {
		alloc.merge(addr, next)
	}
}
