package dm

import (
	"path/filepath"
	"testing"

	"github.com/gaoyinhao/MiniDB/internal/tm"
)

func newTestDM(t *testing.T) (*DataManager, *tm.TransactionManager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	if err != nil {
		t.Fatalf("tm.Create: %v", err)
	}

	d, err := Create(path, tmgr)
	if err != nil {
		t.Fatalf("dm.Create: %v", err)
	}
	if err := d.CloseAfterCreate(); err != nil {
		t.Fatalf("CloseAfterCreate: %v", err)
	}

	d, err = Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("dm.Open: %v", err)
	}
	return d, tmgr, path
}

func TestInsertAndRead(t *testing.T) {
	d, tmgr, _ := newTestDM(t)
	defer d.Close()

	xid, err := tmgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	uid, err := d.Insert(xid, []byte("hello world"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	item, err := d.Read(uid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if item == nil {
		t.Fatalf("expected item, got nil")
	}
	defer item.Release()

	if string(item.Data()) != "hello world" {
		t.Fatalf("got %q", item.Data())
	}
}

func TestUpdateProtocol(t *testing.T) {
	d, tmgr, _ := newTestDM(t)
	defer d.Close()

	xid, _ := tmgr.Begin()
	uid, err := d.Insert(xid, []byte("original"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	item, err := d.Read(uid)
	if err != nil || item == nil {
		t.Fatalf("read: %v", err)
	}

	item.Before()
	copy(item.Data(), []byte("changed!"))
	if err := item.After(xid); err != nil {
		t.Fatalf("after: %v", err)
	}
	item.Release()

	item2, err := d.Read(uid)
	if err != nil || item2 == nil {
		t.Fatalf("read2: %v", err)
	}
	defer item2.Release()
	if string(item2.Data()) != "changed!" {
		t.Fatalf("got %q", item2.Data())
	}
}

func TestUnBeforeReverts(t *testing.T) {
	d, tmgr, _ := newTestDM(t)
	defer d.Close()

	xid, _ := tmgr.Begin()
	uid, err := d.Insert(xid, []byte("keepme!!"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	item, err := d.Read(uid)
	if err != nil || item == nil {
		t.Fatalf("read: %v", err)
	}

	item.Before()
	copy(item.Data(), []byte("clobber!"))
	item.UnBefore()
	item.Release()

	item2, _ := d.Read(uid)
	defer item2.Release()
	if string(item2.Data()) != "keepme!!" {
		t.Fatalf("expected revert, got %q", item2.Data())
	}
}

func TestInsertRejectsOversizedPayload(t *testing.T) {
	d, tmgr, _ := newTestDM(t)
	defer d.Close()

	xid, _ := tmgr.Begin()
	big := make([]byte, 9000)
	if _, err := d.Insert(xid, big); err == nil {
		t.Fatalf("expected DataTooLarge error")
	}
}

func TestCrashRecoveryRedoCommitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	if err != nil {
		t.Fatalf("tm.Create: %v", err)
	}
	d, err := Create(path, tmgr)
	if err != nil {
		t.Fatalf("dm.Create: %v", err)
	}
	d.CloseAfterCreate()

	d, err = Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("dm.Open: %v", err)
	}

	xid, _ := tmgr.Begin()
	uid, err := d.Insert(xid, []byte("durable"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tmgr.Commit(xid); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Simulate a crash: close the underlying files directly, without the
	// graceful token-matching shutdown, so the next Open sees mismatched
	// tokens and runs recovery.
	d.wal.Close()
	d.cache.Close()

	d2, err := Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer d2.Close()

	item, err := d2.Read(uid)
	if err != nil || item == nil {
		t.Fatalf("expected redo to preserve committed insert, err=%v item=%v", err, item)
	}
	defer item.Release()
	if string(item.Data()) != "durable" {
		t.Fatalf("got %q", item.Data())
	}
}

func TestCrashRecoveryUndoesActiveTransaction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	if err != nil {
		t.Fatalf("tm.Create: %v", err)
	}
	d, err := Create(path, tmgr)
	if err != nil {
		t.Fatalf("dm.Create: %v", err)
	}
	d.CloseAfterCreate()

	d, err = Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("dm.Open: %v", err)
	}

	xid, _ := tmgr.Begin() // never committed: simulates a crash mid-transaction
	uid, err := d.Insert(xid, []byte("uncommitted"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	d.wal.Close()
	d.cache.Close()

	d2, err := Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer d2.Close()

	if !tmgr.IsAborted(xid) {
		t.Fatalf("expected active xid to be aborted by recovery")
	}
	item, err := d2.Read(uid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if item != nil {
		item.Release()
		t.Fatalf("expected undo to invalidate the insert, item still valid")
	}
}
