package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Frames returns the number of page frames that are required for storing
// this size. Sizes that are not a multiple of PageSize are rounded up.
func (s Size) Frames() uint64 {
	return uint64((s+PageSize-1)&^(PageSize-1)) >> PageShift
}

// Raw returns the size in bytes as a uint64 so it can be passed to
// kfmt.Printf.
func (s Size) Raw() uint64 {
	return uint64(s)
}
