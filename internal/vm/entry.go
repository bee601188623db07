// Package vm is the version manager of spec.md §4.6: MVCC on top of DM,
// giving every row an XMIN/XMAX pair, Read-Committed and Repeatable-Read
// visibility, and a lock table with wait-for-graph deadlock detection.
package vm

import (
	"encoding/binary"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

const entryHeaderLen = 16 // xmin(8) + xmax(8)

// wrapEntryRaw builds the bytes VM hands to DM.Insert: [xmin][xmax][data].
func wrapEntryRaw(xid tm.XID, data []byte) []byte {
	raw := make([]byte, entryHeaderLen+len(data))
	binary.BigEndian.PutUint64(raw[0:8], uint64(xid))
	// xmax starts at 0: binary.BigEndian.PutUint64(raw[8:16], 0) is a no-op.
	copy(raw[entryHeaderLen:], data)
	return raw
}

func entryXmin(raw []byte) tm.XID { return tm.XID(binary.BigEndian.Uint64(raw[0:8])) }
func entryXmax(raw []byte) tm.XID { return tm.XID(binary.BigEndian.Uint64(raw[8:16])) }
func entryData(raw []byte) []byte { return raw[entryHeaderLen:] }

func setEntryXmax(raw []byte, xid tm.XID) {
	binary.BigEndian.PutUint64(raw[8:16], uint64(xid))
}

// readEntry reads the DataItem at uid and returns a copy of its raw
// [xmin][xmax][data] bytes, or nil if the item has been physically
// invalidated (not the same thing as an MVCC-invisible xmax tombstone).
func readEntry(d *dm.DataManager, uid dm.UID) ([]byte, error) {
	item, err := d.Read(uid)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	defer item.Release()

	item.RLock()
	raw := append([]byte(nil), item.Data()...)
	item.RUnlock()
	return raw, nil
}
