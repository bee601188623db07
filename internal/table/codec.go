// Package table implements the schema/catalog layer of spec.md §4.8:
// Field and Table definitions persisted as DataItems on top of VM, a
// singly-linked table catalog anchored by a Booter file, and the
// statement-execution logic (insert/read/update/delete/WHERE evaluation)
// that TableManager exposes to the server.
package table

import "encoding/binary"

// putString writes a length-prefixed UTF-8 string: the raw encoding every
// Field/Table record uses for its name-like fields, grounded on the
// original's fixed "[length][bytes]" string framing.
func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

// getString reads one putString-encoded string starting at raw[0] and
// reports how many bytes it consumed.
func getString(raw []byte) (s string, n int) {
	l := binary.BigEndian.Uint32(raw[0:4])
	return string(raw[4 : 4+l]), int(4 + l)
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func getUint64(raw []byte) uint64 { return binary.BigEndian.Uint64(raw) }
