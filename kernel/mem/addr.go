package mem

// PhysicalAddr is an address in the physical address space. It cannot be
// dereferenced directly; use ToVirtual with the direct-map offset to obtain
// an address that the kernel can access.
type PhysicalAddr uint64

// VirtualAddr is an address in the kernel's virtual address space.
type VirtualAddr uint64

// Raw returns the underlying address value.
func (a PhysicalAddr) Raw() uint64 { return uint64(a) }

// IsAlignedWith returns true if the address is a multiple of align. The
// align argument must be a power of 2.
func (a PhysicalAddr) IsAlignedWith(align Size) bool {
	return uint64(a)&(uint64(align)-1) == 0
}

// AlignDown rounds the address down to the nearest multiple of align.
func (a PhysicalAddr) AlignDown(align Size) PhysicalAddr {
	return PhysicalAddr(uint64(a) &^ (uint64(align) - 1))
}

// AlignUp rounds the address up to the nearest multiple of align.
func (a PhysicalAddr) AlignUp(align Size) PhysicalAddr {
	return PhysicalAddr((uint64(a) + uint64(align) - 1) &^ (uint64(align) - 1))
}

// Add returns the address offset by size bytes.
func (a PhysicalAddr) Add(size Size) PhysicalAddr {
	return a + PhysicalAddr(size)
}

// ToVirtual returns the virtual address through which this physical address
// is reachable using the bootloader-installed direct map.
func (a PhysicalAddr) ToVirtual(directMapOffset uint64) VirtualAddr {
	return VirtualAddr(uint64(a) + directMapOffset)
}

// Raw returns the underlying address value.
func (a VirtualAddr) Raw() uint64 { return uint64(a) }

// IsAlignedWith returns true if the address is a multiple of align. The
// align argument must be a power of 2.
func (a VirtualAddr) IsAlignedWith(align Size) bool {
	return uint64(a)&(uint64(align)-1) == 0
}

// AlignDown rounds the address down to the nearest multiple of align.
func (a VirtualAddr) AlignDown(align Size) VirtualAddr {
	return VirtualAddr(uint64(a) &^ (uint64(align) - 1))
}

// AlignUp rounds the address up to the nearest multiple of align.
func (a VirtualAddr) AlignUp(align Size) VirtualAddr {
	return VirtualAddr((uint64(a) + uint64(align) - 1) &^ (uint64(align) - 1))
}

// Add returns the address offset by size bytes.
func (a VirtualAddr) Add(size Size) VirtualAddr {
	return a + VirtualAddr(size)
}

// ToPhysical reverses ToVirtual for an address that lies inside a region
// mapped at a fixed offset (e.g. the direct map or the kernel image).
func (a VirtualAddr) ToPhysical(offset uint64) PhysicalAddr {
	return PhysicalAddr(uint64(a) - offset)
}

// Pointer returns the address as a uintptr suitable for unsafe.Pointer
// conversions.
func (a VirtualAddr) Pointer() uintptr {
	return uintptr(a)
}
