package mem

// PagingMode selects the number of page table levels used by the MMU.
type PagingMode uint8

// The paging modes supported by riscv64 supervisor-mode address translation.
const (
	ModeSv39 PagingMode = iota + 1
	ModeSv48
	ModeSv57
)

// Valid returns true if m is one of the supported paging modes.
func (m PagingMode) Valid() bool {
	return m >= ModeSv39 && m <= ModeSv57
}

// Levels returns the number of page table levels walked by the MMU.
func (m PagingMode) Levels() uint8 {
	if !m.Valid() {
		return 0
	}
	return uint8(m) + 2
}

// RootLevel returns the level index of the root page table. Level 0 is the
// table whose entries map 4K pages.
func (m PagingMode) RootLevel() uint8 {
	return m.Levels() - 1
}

// SATPMode returns the value of the MODE field of the satp register that
// enables this paging mode.
func (m PagingMode) SATPMode() uint64 {
	if !m.Valid() {
		return 0
	}
	return uint64(m) + 7
}

// String implements fmt.Stringer for PagingMode.
func (m PagingMode) String() string {
	switch m {
	case ModeSv39:
		return "sv39"
	case ModeSv48:
		return "sv48"
	case ModeSv57:
		return "sv57"
	default:
		return "unknown"
	}
}
