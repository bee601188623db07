package dm

import (
	"encoding/binary"

	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

// Log record types (spec.md §4.4).
const (
	logInsert byte = 0
	logUpdate byte = 1
)

const (
	logTypeLen = 1
	logXIDLen  = 8
)

// buildInsertLog encodes [type=0][xid][pgno][offset][raw].
func buildInsertLog(xid tm.XID, pgno uint32, offset uint16, raw []byte) []byte {
	buf := make([]byte, logTypeLen+logXIDLen+4+2+len(raw))
	i := 0
	buf[i] = logInsert
	i += logTypeLen
	binary.BigEndian.PutUint64(buf[i:], uint64(xid))
	i += logXIDLen
	binary.BigEndian.PutUint32(buf[i:], pgno)
	i += 4
	binary.BigEndian.PutUint16(buf[i:], offset)
	i += 2
	copy(buf[i:], raw)
	return buf
}

// parseInsertLog decodes a buildInsertLog record.
func parseInsertLog(buf []byte) (xid tm.XID, pgno uint32, offset uint16, raw []byte, err error) {
	if len(buf) < logTypeLen+logXIDLen+4+2 || buf[0] != logInsert {
		return 0, 0, 0, nil, dberr.New(dberr.InvalidLogOp)
	}
	i := logTypeLen
	xid = tm.XID(binary.BigEndian.Uint64(buf[i:]))
	i += logXIDLen
	pgno = binary.BigEndian.Uint32(buf[i:])
	i += 4
	offset = binary.BigEndian.Uint16(buf[i:])
	i += 2
	raw = buf[i:]
	return xid, pgno, offset, raw, nil
}

// buildUpdateLog encodes [type=1][xid][uid][itemLen][oldRaw][newRaw], where
// oldRaw and newRaw are equal-length full DataItem byte ranges.
func buildUpdateLog(xid tm.XID, uid UID, oldRaw, newRaw []byte) []byte {
	itemLen := len(oldRaw)
	buf := make([]byte, logTypeLen+logXIDLen+8+2+itemLen+len(newRaw))
	i := 0
	buf[i] = logUpdate
	i += logTypeLen
	binary.BigEndian.PutUint64(buf[i:], uint64(xid))
	i += logXIDLen
	binary.BigEndian.PutUint64(buf[i:], uint64(uid))
	i += 8
	binary.BigEndian.PutUint16(buf[i:], uint16(itemLen))
	i += 2
	copy(buf[i:], oldRaw)
	i += itemLen
	copy(buf[i:], newRaw)
	return buf
}

// parseUpdateLog decodes a buildUpdateLog record.
func parseUpdateLog(buf []byte) (xid tm.XID, uid UID, oldRaw, newRaw []byte, err error) {
	if len(buf) < logTypeLen+logXIDLen+8+2 || buf[0] != logUpdate {
		return 0, 0, nil, nil, dberr.New(dberr.InvalidLogOp)
	}
	i := logTypeLen
	xid = tm.XID(binary.BigEndian.Uint64(buf[i:]))
	i += logXIDLen
	uid = UID(binary.BigEndian.Uint64(buf[i:]))
	i += 8
	itemLen := int(binary.BigEndian.Uint16(buf[i:]))
	i += 2
	if len(buf) < i+2*itemLen {
		return 0, 0, nil, nil, dberr.New(dberr.InvalidLogOp)
	}
	oldRaw = buf[i : i+itemLen]
	newRaw = buf[i+itemLen : i+2*itemLen]
	return xid, uid, oldRaw, newRaw, nil
}

// recordXID returns the xid field common to both record types.
func recordXID(payload []byte) (tm.XID, error) {
	if len(payload) < logTypeLen+logXIDLen {
		return 0, dberr.New(dberr.InvalidLogOp)
	}
	return tm.XID(binary.BigEndian.Uint64(payload[logTypeLen:])), nil
}

// recordPgno returns the page a record touches, for recovery's truncation
// pass.
func recordPgno(payload []byte) (uint32, error) {
	if len(payload) == 0 {
		return 0, dberr.New(dberr.InvalidLogOp)
	}
	switch payload[0] {
	case logInsert:
		_, pgno, _, _, err := parseInsertLog(payload)
		return pgno, err
	case logUpdate:
		_, uid, _, _, err := parseUpdateLog(payload)
		if err != nil {
			return 0, err
		}
		return uid.Pgno(), nil
	default:
		return 0, dberr.New(dberr.InvalidLogOp)
	}
}
