package cpu

const (
	satpModeShift = 60
	satpASIDShift = 44
	satpASIDMask  = uint64(0xffff)
	satpPPNMask   = uint64(1)<<satpASIDShift - 1
)

// MakeSATP encodes a satp register value that enables the paging mode with
// the given MODE field value, using the root page table located at physical
// frame number rootPPN.
func MakeSATP(mode uint64, asid uint16, rootPPN uint64) uint64 {
	return mode<<satpModeShift | (uint64(asid)&satpASIDMask)<<satpASIDShift | rootPPN&satpPPNMask
}

// SATPRootPPN extracts the root page table frame number from a satp value.
func SATPRootPPN(satp uint64) uint64 {
	return satp & satpPPNMask
}

// SATPMode extracts the MODE field from a satp value.
func SATPMode(satp uint64) uint64 {
	return satp >> satpModeShift
}
