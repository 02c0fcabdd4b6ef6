package vmm

// VirtualMemoryFlags describes the access permissions requested for a
// mapping independently of the page table entry format.
type VirtualMemoryFlags uint8

const (
	// FlagWriteable allows writes to the mapped region.
	FlagWriteable VirtualMemoryFlags = 1 << iota

	// FlagExecutable allows instruction fetches from the mapped region.
	FlagExecutable

	// FlagUserAccessible allows U-mode access to the mapped region.
	FlagUserAccessible

	// FlagMMIO marks the region as device memory. The base Sv schemes
	// have no memory-type bits so this only ensures the region is never
	// executable.
	FlagMMIO
)

// pteFlags converts the flags into the page table entry flags for a leaf
// entry. Leaf entries are always valid and readable.
func (f VirtualMemoryFlags) pteFlags() PageTableEntryFlag {
	flags := PteValid | PteReadable

	if f&FlagWriteable != 0 {
		flags |= PteWritable
	}

	if f&FlagExecutable != 0 && f&FlagMMIO == 0 {
		flags |= PteExecutable
	}

	if f&FlagUserAccessible != 0 {
		flags |= PteUser
	}

	return flags
}
