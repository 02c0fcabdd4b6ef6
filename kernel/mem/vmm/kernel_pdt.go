package vmm

import (
	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/cpu"
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kfmt"
	"github.com/brymer-meneses/Nekos/kernel/mem"
)

var (
	// kernelDir is the page directory built by Init.
	kernelDir      PageDirectory
	kernelDirReady bool

	// The following functions are used by tests to override calls to the
	// CPU primitives which fault when invoked outside supervisor mode.
	switchRootFn    = cpu.WriteSATP
	activeRootFn    = cpu.ReadSATP
	flushTLBFn      = cpu.FlushTLB
	flushTLBEntryFn = cpu.FlushTLBEntry

	// panicFn is used by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errMissingBootInfo = &kernel.Error{Module: "vmm", Message: "no boot information available"}
	errNotInitialized  = &kernel.Error{Module: "vmm", Message: "kernel page directory used before initialization"}
)

// PageDirectory describes the root table of a page table hierarchy together
// with the mapper used to modify it.
type PageDirectory struct {
	root   mem.PhysicalAddr
	mapper Mapper
}

// Root returns the physical address of the root page table.
func (pd PageDirectory) Root() mem.PhysicalAddr {
	return pd.root
}

// Map establishes a mapping in this page directory. See Mapper.Map.
func (pd PageDirectory) Map(virtAddr mem.VirtualAddr, physAddr mem.PhysicalAddr, length mem.Size, flags VirtualMemoryFlags) *kernel.Error {
	return pd.mapper.Map(pd.root, virtAddr, physAddr, length, flags)
}

// Unmap removes the page that maps virtAddr from this page directory. If the
// directory is active, the stale TLB entry is flushed.
func (pd PageDirectory) Unmap(virtAddr mem.VirtualAddr) (mem.Size, *kernel.Error) {
	pageSize, err := pd.mapper.Unmap(pd.root, virtAddr)
	if err == nil && pd.Active() {
		flushTLBEntryFn(virtAddr.Pointer())
	}

	return pageSize, err
}

// Translate returns the physical address that virtAddr maps to in this page
// directory.
func (pd PageDirectory) Translate(virtAddr mem.VirtualAddr) (mem.PhysicalAddr, *kernel.Error) {
	return pd.mapper.Translate(pd.root, virtAddr)
}

// Active returns true if this is the page directory currently used by the
// MMU.
func (pd PageDirectory) Active() bool {
	return ActiveRootTable() == pd.root
}

// Activate loads this page directory into satp and flushes the TLB.
func (pd PageDirectory) Activate() {
	switchRootFn(cpu.MakeSATP(pd.mapper.Mode.SATPMode(), 0, uint64(pd.root)>>mem.PageShift))
	flushTLBFn()
}

// Init builds the kernel page directory. The kernel image sections are mapped
// at their link addresses with permissions matching their contents and the
// usable and bootloader-reclaimable memory regions are mapped through the
// direct map. The directory is not activated.
func Init(info *boot.Info, allocFn FrameAllocatorFn) *kernel.Error {
	if info == nil {
		return errMissingBootInfo
	}

	if !info.PagingMode.Valid() {
		return errUnsupportedPagingMode
	}

	rootFrame, err := allocFn()
	if err != nil {
		return ErrPageFrameAlloc
	}

	pd := PageDirectory{
		root: rootFrame.Address(),
		mapper: Mapper{
			Mode:      info.PagingMode,
			DirectMap: info.DirectMapOffset,
			AllocFn:   allocFn,
		},
	}
	memsetFn(pd.root.ToVirtual(info.DirectMapOffset), 0, mem.PageSize)

	if err = mapKernelSections(pd, info); err != nil {
		return err
	}

	if err = mapDirectMapRegions(pd, info); err != nil {
		return err
	}

	kfmt.Infof("kernel page directory at 0x%x (%s)\n", pd.root, info.PagingMode.String())

	kernelDir, kernelDirReady = pd, true
	return nil
}

// mapKernelSections maps the kernel image sections. Section boundaries are
// rounded outward to page boundaries and each section is mapped to the
// physical address where the bootloader loaded it.
func mapKernelSections(pd PageDirectory, info *boot.Info) *kernel.Error {
	imageOffset := info.KernelImageOffset()
	kfmt.Debugf("kernel image offset: 0x%x\n", imageOffset)

	for _, section := range []struct {
		name  string
		bound boot.Section
		flags VirtualMemoryFlags
	}{
		{"code", info.Sections.Code, FlagExecutable},
		{"rodata", info.Sections.ROData, 0},
		{"data", info.Sections.Data, FlagWriteable},
	} {
		start := section.bound.Start.AlignDown(mem.PageSize)
		end := section.bound.End.AlignUp(mem.PageSize)
		if end <= start {
			continue
		}

		kfmt.Debugf("mapping %s section [0x%16x - 0x%16x]\n", section.name, start, end)
		if err := pd.Map(start, start.ToPhysical(imageOffset), mem.Size(end-start), section.flags); err != nil {
			return err
		}
	}

	return nil
}

// mapDirectMapRegions maps every usable and bootloader-reclaimable region at
// its direct map address. The bootloader-reclaimable regions hold the boot
// stack and the bootloader responses which are still in use when the
// directory is activated.
func mapDirectMapRegions(pd PageDirectory, info *boot.Info) *kernel.Error {
	var err *kernel.Error
	info.VisitMemRegions(func(region *boot.MemoryMapEntry) bool {
		if region.Type != boot.MemUsable && region.Type != boot.MemBootloaderReclaimable {
			return true
		}

		start := region.PhysAddress.AlignDown(mem.PageSize)
		end := region.PhysAddress.Add(region.Length).AlignUp(mem.PageSize)
		if end <= start {
			return true
		}

		kfmt.Debugf("mapping region [0x%16x - 0x%16x] at 0x%16x\n", start, end, start.ToVirtual(info.DirectMapOffset))
		err = pd.Map(start.ToVirtual(info.DirectMapOffset), start, mem.Size(end-start), FlagWriteable)
		return err == nil
	})

	return err
}

// KernelDirectory returns the kernel page directory. Calling KernelDirectory
// before Init is a fatal error.
func KernelDirectory() PageDirectory {
	if !kernelDirReady {
		panicFn(errNotInitialized)
	}

	return kernelDir
}

// ActiveRootTable returns the physical address of the root page table that is
// currently loaded into satp.
func ActiveRootTable() mem.PhysicalAddr {
	return mem.PhysicalAddr(cpu.SATPRootPPN(activeRootFn()) << mem.PageShift)
}

// FlushTLB flushes all address-translation cache entries of the current hart.
func FlushTLB() {
	flushTLBFn()
}

// FlushTLBEntry flushes the address-translation cache entries for virtAddr.
func FlushTLBEntry(virtAddr mem.VirtualAddr) {
	flushTLBEntryFn(virtAddr.Pointer())
}
