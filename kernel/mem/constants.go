package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a frame number (shift right
	// by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's base page (and frame) size in bytes.
	PageSize = Size(1 << PageShift)

	// HugePageSize2M is the size of a leaf mapping installed one level
	// above the base page level.
	HugePageSize2M = 2 * Mb

	// HugePageSize1G is the size of a leaf mapping installed two levels
	// above the base page level.
	HugePageSize1G = Gb
)
