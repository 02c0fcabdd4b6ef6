package allocator

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kfmt"
	"github.com/brymer-meneses/Nekos/kernel/mem"
)

var (
	errMissingBootInfo  = &kernel.Error{Module: "frame_alloc", Message: "no boot information available"}
	errMissingMemoryMap = &kernel.Error{Module: "frame_alloc", Message: "bootloader did not provide a memory map"}
)

// ingestMemoryMap seeds alloc with every usable region of the memory map.
//
// Reported regions may not be page-aligned; their start is rounded up and
// their end rounded down to a page boundary. Regions that do not contain a
// single whole page are ignored.
func ingestMemoryMap(alloc *FreeListAllocator, info *boot.Info) *kernel.Error {
	if info == nil {
		return errMissingBootInfo
	}

	if len(info.MemoryMap) == 0 {
		return errMissingMemoryMap
	}

	printMemoryMap(info)

	var err *kernel.Error
	info.VisitMemRegions(func(region *boot.MemoryMapEntry) bool {
		if region.Type != boot.MemUsable || region.Length < mem.PageSize {
			return true
		}

		start := region.PhysAddress.AlignUp(mem.PageSize)
		end := region.PhysAddress.Add(region.Length).AlignDown(mem.PageSize)
		if end <= start {
			return true
		}

		frames := uint64(end-start) >> mem.PageShift
		kfmt.Debugf("seeding [0x%16x - 0x%16x], frames: %d\n", start, end, frames)

		err = alloc.Seed(start, frames)
		return err == nil
	})

	if err != nil {
		return err
	}

	kfmt.Infof("frame allocator: %dKb free (%d frames)\n", uint64(mem.Size(alloc.FreeFrames())*mem.PageSize/mem.Kb), alloc.FreeFrames())
	return nil
}

// printMemoryMap prints out the system's memory map as reported by the
// bootloader together with the total amount of usable memory.
func printMemoryMap(info *boot.Info) {
	kfmt.Infof("system memory map:\n")
	var totalUsable mem.Size
	info.VisitMemRegions(func(region *boot.MemoryMapEntry) bool {
		kfmt.Infof("\t[0x%16x - 0x%16x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress.Add(region.Length), region.Length, region.Type.String())

		if region.Type == boot.MemUsable {
			totalUsable += region.Length
		}
		return true
	})
	kfmt.Infof("usable memory: %dKb\n", uint64(totalUsable/mem.Kb))
}
