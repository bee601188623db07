// Package tm is the transaction manager: durable XID allocation and status
// tracking, per spec.md §4.1. It owns a single ".xid" file: an 8-byte
// xidCounter header followed by one status byte per XID.
package tm

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

// XID is a 64-bit transaction identifier. 0 is the super transaction: always
// committed, never active, never aborted, never in any snapshot.
type XID uint64

// SuperXID is the always-committed transaction under which schema objects
// are written.
const SuperXID XID = 0

const (
	statusActive byte = iota
	statusCommitted
	statusAborted
)

const (
	headerLen      = 8
	statusPerXID   = 1
	xidFileSuffix  = ".xid"
)

// TransactionManager assigns XIDs and persists their terminal state.
type TransactionManager struct {
	mu      sync.Mutex
	file    *os.File
	counter uint64
}

// Create initializes a new, empty xid file at path and returns its manager.
func Create(path string) (*TransactionManager, error) {
	full := path + xidFileSuffix
	if _, err := os.Stat(full); err == nil {
		return nil, dberr.New(dberr.FileExists)
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, dberr.Wrapf(dberr.FileNotReadWritable, err, "tm: create %s", full)
	}
	tm := &TransactionManager{file: f, counter: 0}
	if err := tm.writeCounter(); err != nil {
		f.Close()
		return nil, err
	}
	return tm, nil
}

// Open opens an existing xid file, validating that its length matches the
// stored counter exactly (spec.md §4.1: "any mismatch is a fatal
// corruption").
func Open(path string) (*TransactionManager, error) {
	full := path + xidFileSuffix
	f, err := os.OpenFile(full, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.New(dberr.FileMissing)
		}
		return nil, dberr.Wrapf(dberr.FileNotReadWritable, err, "tm: open %s", full)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	if info.Size() < headerLen {
		f.Close()
		return nil, dberr.New(dberr.BadXIDFile)
	}

	header := make([]byte, headerLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.BadXIDFile, err)
	}
	counter := binary.BigEndian.Uint64(header)

	wantLen := headerLen + int64(counter)*statusPerXID
	if info.Size() != wantLen {
		f.Close()
		logger.Errorf("tm: %s length %d != expected %d for counter %d", full, info.Size(), wantLen, counter)
		return nil, dberr.New(dberr.BadXIDFile)
	}

	return &TransactionManager{file: f, counter: counter}, nil
}

func (tm *TransactionManager) writeCounter() error {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint64(buf, tm.counter)
	if _, err := tm.file.WriteAt(buf, 0); err != nil {
		return dberr.Wrap(dberr.BadXIDFile, err)
	}
	return tm.file.Sync()
}

func statusOffset(xid XID) int64 {
	return headerLen + int64(xid-1)*statusPerXID
}

func (tm *TransactionManager) writeStatus(xid XID, status byte) error {
	if _, err := tm.file.WriteAt([]byte{status}, statusOffset(xid)); err != nil {
		return dberr.Wrap(dberr.BadXIDFile, err)
	}
	return tm.file.Sync()
}

func (tm *TransactionManager) readStatus(xid XID) byte {
	if xid == SuperXID {
		return statusCommitted
	}
	buf := make([]byte, 1)
	if _, err := tm.file.ReadAt(buf, statusOffset(xid)); err != nil {
		logger.Errorf("tm: read status of xid %d: %v", xid, err)
		return statusAborted
	}
	return buf[0]
}

// Begin reserves a new XID, marks it ACTIVE, and durably persists the
// updated counter.
func (tm *TransactionManager) Begin() (XID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	xid := XID(tm.counter + 1)
	if err := tm.writeStatus(xid, statusActive); err != nil {
		return 0, err
	}
	tm.counter++
	if err := tm.writeCounter(); err != nil {
		return 0, err
	}
	return xid, nil
}

// Commit marks xid COMMITTED.
func (tm *TransactionManager) Commit(xid XID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.writeStatus(xid, statusCommitted)
}

// Abort marks xid ABORTED.
func (tm *TransactionManager) Abort(xid XID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.writeStatus(xid, statusAborted)
}

func (tm *TransactionManager) IsActive(xid XID) bool {
	if xid == SuperXID {
		return false
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.readStatus(xid) == statusActive
}

func (tm *TransactionManager) IsCommitted(xid XID) bool {
	if xid == SuperXID {
		return true
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.readStatus(xid) == statusCommitted
}

func (tm *TransactionManager) IsAborted(xid XID) bool {
	if xid == SuperXID {
		return false
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.readStatus(xid) == statusAborted
}

// Close releases the underlying file handle.
func (tm *TransactionManager) Close() error {
	return tm.file.Close()
}
