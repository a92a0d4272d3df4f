package addonbridge

// Memory is guest linear memory as seen by the host. Offsets address the
// guest's space; an access that falls outside it fails.
//
// Read may return a view that aliases guest memory, and any guest call can
// grow the memory and invalidate the view. Callers copy what they keep.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// Allocator reserves regions of guest memory so the host can copy data in.
// Implementations call through to the guest's exported allocator, so Alloc
// may grow the memory. Free is advisory; a guest without a deallocator
// ignores it.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
