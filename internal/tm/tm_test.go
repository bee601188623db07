package tm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

func truncateFile(path string, size int64) error {
	return os.Truncate(path, size)
}

func TestCreateOpenBeginCommitAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test")

	tm, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tm.Close()

	tm, err = Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tm.Close()

	xid1, err := tm.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !tm.IsActive(xid1) {
		t.Fatalf("xid %d should be active", xid1)
	}

	xid2, err := tm.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := tm.Commit(xid1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !tm.IsCommitted(xid1) {
		t.Fatalf("xid %d should be committed", xid1)
	}
	if tm.IsActive(xid1) {
		t.Fatalf("xid %d should no longer be active", xid1)
	}

	if err := tm.Abort(xid2); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !tm.IsAborted(xid2) {
		t.Fatalf("xid %d should be aborted", xid2)
	}
}

func TestSuperXIDAlwaysCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test")
	tm, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer tm.Close()

	if !tm.IsCommitted(SuperXID) {
		t.Fatalf("super xid should be committed")
	}
	if tm.IsActive(SuperXID) || tm.IsAborted(SuperXID) {
		t.Fatalf("super xid should never be active or aborted")
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test")
	tm, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tm.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	tm.Close()

	// Truncate the file so its length no longer matches the counter.
	if err := truncateFile(path+".xid", headerLen); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	_, err = Open(path)
	if !dberr.Is(err, dberr.BadXIDFile) {
		t.Fatalf("expected BadXIDFile, got %v", err)
	}
}
