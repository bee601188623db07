package dm

import (
	"encoding/binary"
	"sync"

	"github.com/gaoyinhao/MiniDB/internal/pcache"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

const (
	itemValidLen  = 1
	itemSizeLen   = 2
	itemHeaderLen = itemValidLen + itemSizeLen

	itemValid   byte = 0
	itemDeleted byte = 1
)

// wrapDataItemRaw builds the on-page bytes of a new, live DataItem wrapping
// payload (spec.md §3: [valid][size][payload]).
func wrapDataItemRaw(payload []byte) []byte {
	raw := make([]byte, itemHeaderLen+len(payload))
	raw[0] = itemValid
	binary.BigEndian.PutUint16(raw[1:3], uint16(len(payload)))
	copy(raw[itemHeaderLen:], payload)
	return raw
}

// DataItem is a pinned, in-place view of one on-page record. Data() aliases
// the owning page's byte buffer (spec.md §9): the rwlock below is what
// serializes readers and writers of that aliased slice.
type DataItem struct {
	dm     *DataManager
	page   *pcache.Page
	offset uint16
	lock   sync.RWMutex
	oldRaw []byte
}

func newDataItem(dm *DataManager, page *pcache.Page, offset uint16) *DataItem {
	return &DataItem{dm: dm, page: page, offset: offset}
}

// UID returns the identifier of this DataItem.
func (di *DataItem) UID() UID { return NewUID(di.page.Number(), di.offset) }

func (di *DataItem) size() uint16 {
	return binary.BigEndian.Uint16(di.page.Data()[di.offset+itemValidLen : di.offset+itemHeaderLen])
}

func (di *DataItem) raw() []byte {
	end := di.offset + itemHeaderLen + di.size()
	return di.page.Data()[di.offset:end]
}

// IsValid reports whether the item is still live (valid=0).
func (di *DataItem) IsValid() bool {
	return di.page.Data()[di.offset] == itemValid
}

// Data returns the item's payload slice, aliasing the page buffer.
func (di *DataItem) Data() []byte {
	start := di.offset + itemHeaderLen
	return di.page.Data()[start : start+di.size()]
}

// RLock/RUnlock guard concurrent reads of Data() against concurrent writers.
func (di *DataItem) RLock()   { di.lock.RLock() }
func (di *DataItem) RUnlock() { di.lock.RUnlock() }

// Before takes the item's write lock, marks its page dirty, and snapshots
// the current bytes so a later UnBefore can revert them. Callers mutate
// Data() in place between Before and After.
func (di *DataItem) Before() {
	di.lock.Lock()
	di.page.SetDirty(true)
	di.oldRaw = append([]byte(nil), di.raw()...)
}

// UnBefore reverts the bytes snapshotted by Before and releases the write
// lock, without writing a log record. Only valid before After is called.
func (di *DataItem) UnBefore() {
	copy(di.raw(), di.oldRaw)
	di.lock.Unlock()
}

// After appends the UPDATE log record describing the mutation made since
// Before, then releases the write lock (spec.md §4.4's update protocol).
func (di *DataItem) After(xid tm.XID) error {
	newRaw := append([]byte(nil), di.raw()...)
	record := buildUpdateLog(xid, di.UID(), di.oldRaw, newRaw)
	err := di.dm.wal.Log(record)
	di.lock.Unlock()
	return err
}

// Release unpins the underlying page.
func (di *DataItem) Release() {
	di.dm.cache.Release(di.page)
}
