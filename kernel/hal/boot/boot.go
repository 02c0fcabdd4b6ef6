// Package boot describes the information that the bootloader hands over to
// the kernel: the active paging mode, the direct-map offset, the physical
// memory map and the location of the kernel image sections.
//
// The boot shim copies the relevant bootloader responses into an Info value
// and registers it via SetInfo before any other kernel code runs.
package boot

import "github.com/brymer-meneses/Nekos/kernel/mem"

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemUsable indicates that the memory region is available for use.
	MemUsable MemoryEntryType = iota

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemACPIReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS once the tables have been parsed.
	MemACPIReclaimable

	// MemACPINVS indicates memory that must be preserved across sleep states.
	MemACPINVS

	// MemBadMemory indicates a region that contains defective RAM.
	MemBadMemory

	// MemBootloaderReclaimable indicates a region used by the bootloader
	// that can be reclaimed once the boot information has been consumed.
	MemBootloaderReclaimable

	// MemKernelAndModules indicates the region where the kernel image and
	// its modules were loaded.
	MemKernelAndModules

	// MemFramebuffer indicates a memory-mapped framebuffer.
	MemFramebuffer

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemUsable:
		return "usable"
	case MemReserved:
		return "reserved"
	case MemACPIReclaimable:
		return "ACPI (reclaimable)"
	case MemACPINVS:
		return "ACPI NVS"
	case MemBadMemory:
		return "bad memory"
	case MemBootloaderReclaimable:
		return "bootloader (reclaimable)"
	case MemKernelAndModules:
		return "kernel and modules"
	case MemFramebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress mem.PhysicalAddr

	// The length of the memory region.
	Length mem.Size

	// The type of this entry.
	Type MemoryEntryType
}

// Section describes a [Start, End) range of the kernel's virtual address
// space as reported by the linker script symbols.
type Section struct {
	Start, End mem.VirtualAddr
}

// KernelSections holds the boundaries of the kernel image sections that need
// to be mapped with distinct permissions.
type KernelSections struct {
	// Code is mapped readable and executable.
	Code Section

	// ROData is mapped read-only.
	ROData Section

	// Data (including bss) is mapped readable and writable.
	Data Section

	// Image spans the whole kernel image. Its start is used to calculate
	// the offset between the kernel's virtual and physical load address.
	Image Section
}

// Info contains the boot information consumed by the memory subsystems.
type Info struct {
	// PagingMode is the paging mode that the bootloader enabled.
	PagingMode mem.PagingMode

	// DirectMapOffset is the offset at which the bootloader mapped the
	// entire physical memory (the higher-half direct map).
	DirectMapOffset uint64

	// KernelPhysAddress is the physical address where the kernel image
	// was loaded.
	KernelPhysAddress mem.PhysicalAddr

	// MemoryMap lists the physical memory regions sorted by base address.
	MemoryMap []MemoryMapEntry

	// Sections describes the kernel image layout.
	Sections KernelSections
}

var (
	info *Info
)

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfo registers the boot information. This function must be invoked
// before invoking any other function exported by this package.
func SetInfo(bootInfo *Info) {
	info = bootInfo
}

// GetInfo returns the registered boot information or nil if SetInfo has not
// been called yet.
func GetInfo() *Info {
	return info
}

// VisitMemRegions will invoke the supplied visitor for each memory region
// reported by the bootloader, in ascending base address order.
func VisitMemRegions(visitor MemRegionVisitor) {
	if info == nil {
		return
	}

	info.VisitMemRegions(visitor)
}

// VisitMemRegions invokes the supplied visitor for each entry of this
// memory map.
func (i *Info) VisitMemRegions(visitor MemRegionVisitor) {
	for index := range i.MemoryMap {
		entry := &i.MemoryMap[index]

		// Mark unknown entry types as reserved
		if entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// KernelImageOffset returns the difference between the kernel's virtual and
// physical load addresses. The image start is rounded down to a page boundary
// since the linker script does not necessarily place the first symbol at the
// start of a page.
func (i *Info) KernelImageOffset() uint64 {
	return i.Sections.Image.Start.AlignDown(mem.PageSize).Raw() - i.KernelPhysAddress.Raw()
}
