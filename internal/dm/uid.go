package dm

// UID identifies a DataItem: high 32 bits are the 1-based page number, low
// 16 bits are the byte offset within that page, and the middle 16 bits are
// reserved zero (spec.md §3).
type UID uint64

// NewUID packs a page number and in-page offset into a UID.
func NewUID(pgno uint32, offset uint16) UID {
	return UID(uint64(pgno)<<32 | uint64(offset))
}

// Pgno returns the page number encoded in the UID.
func (u UID) Pgno() uint32 { return uint32(u >> 32) }

// Offset returns the in-page byte offset encoded in the UID.
func (u UID) Offset() uint16 { return uint16(u) }
