// Package allocator implements the kernel's physical frame allocator.
package allocator

import (
	"sync/atomic"

	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kfmt"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/mem/pmm"
	"github.com/brymer-meneses/Nekos/kernel/sync"
)

var (
	// frameAllocator is the system-wide frame allocator instance. It is
	// set up by Init and used through AllocFrames and DeallocFrames.
	frameAllocator FreeListAllocator

	// initLock serializes calls to Init while initialized is set once the
	// allocator has been seeded.
	initLock    sync.Spinlock
	initialized uint32

	// directMapOffset is used to zero allocated frames.
	directMapOffset uint64

	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	memsetFn = mem.Memset
	panicFn  = kfmt.Panic

	errNotInitialized     = &kernel.Error{Module: "frame_alloc", Message: "frame allocator used before initialization"}
	errAlreadyInitialized = &kernel.Error{Module: "frame_alloc", Message: "frame allocator already initialized"}
)

// Init sets up the kernel's physical frame allocator by seeding it with the
// usable regions of the memory map provided by the bootloader. Init may only
// be called once; subsequent calls return an error and leave the allocator
// untouched.
func Init(info *boot.Info) *kernel.Error {
	initLock.Acquire()
	defer initLock.Release()

	if atomic.LoadUint32(&initialized) != 0 {
		return errAlreadyInitialized
	}

	if info == nil {
		return errMissingBootInfo
	}

	frameAllocator.Init(info.DirectMapOffset)
	if err := ingestMemoryMap(&frameAllocator, info); err != nil {
		return err
	}

	directMapOffset = info.DirectMapOffset
	atomic.StoreUint32(&initialized, 1)
	return nil
}

// AllocFrames reserves a contiguous block of frames and returns the physical
// address of the first one. If zeroed is true, the block is cleared through
// the direct map before it is returned.
//
// Calling AllocFrames before Init is a fatal error.
func AllocFrames(frames uint64, zeroed bool) (mem.PhysicalAddr, *kernel.Error) {
	if atomic.LoadUint32(&initialized) == 0 {
		panicFn(errNotInitialized)
		return 0, errNotInitialized
	}

	addr, err := frameAllocator.Allocate(frames)
	if err != nil {
		return 0, err
	}

	if zeroed {
		memsetFn(addr.ToVirtual(directMapOffset), 0, mem.Size(frames)*mem.PageSize)
	}

	return addr, nil
}

// DeallocFrames returns a block of frames previously obtained via
// AllocFrames.
//
// Calling DeallocFrames before Init is a fatal error.
func DeallocFrames(addr mem.PhysicalAddr, frames uint64) *kernel.Error {
	if atomic.LoadUint32(&initialized) == 0 {
		panicFn(errNotInitialized)
		return errNotInitialized
	}

	return frameAllocator.Deallocate(addr, frames)
}

// AllocFrame reserves a single frame. Its signature allows it to be used as a
// page table frame source by the vmm package.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	addr, err := AllocFrames(1, false)
	if err != nil {
		return pmm.InvalidFrame, err
	}

	return pmm.FrameFromAddress(addr), nil
}

// FreeFrames returns the number of free frames tracked by the system-wide
// allocator.
func FreeFrames() uint64 {
	if atomic.LoadUint32(&initialized) == 0 {
		return 0
	}

	return frameAllocator.FreeFrames()
}
