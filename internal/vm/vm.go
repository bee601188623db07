package vm

import (
	"sync"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

// VersionManager layers MVCC rows on top of DM: begin/read/insert/delete,
// visibility checking, and row-level locking via LockTable.
type VersionManager struct {
	dm   *dm.DataManager
	tmgr *tm.TransactionManager

	mu     sync.Mutex
	active map[tm.XID]*Transaction

	locks *LockTable
}

// New wires a VersionManager over an already-open DataManager and
// TransactionManager. The super transaction is always considered active.
func New(d *dm.DataManager, tmgr *tm.TransactionManager) *VersionManager {
	vm := &VersionManager{
		dm:     d,
		tmgr:   tmgr,
		active: make(map[tm.XID]*Transaction),
		locks:  NewLockTable(),
	}
	vm.active[tm.SuperXID] = &Transaction{XID: tm.SuperXID}
	return vm
}

func (vm *VersionManager) activeXIDSet() map[tm.XID]struct{} {
	set := make(map[tm.XID]struct{}, len(vm.active))
	for xid := range vm.active {
		set[xid] = struct{}{}
	}
	return set
}

// Begin starts a new transaction at the given isolation level and returns
// its XID. Snapshot capture, XID allocation, and registration in
// vm.active all happen inside one critical section (matching the
// original's VersionManagerImpl.begin()), so no concurrent Begin can slip
// its XID allocation between another transaction's snapshot capture and
// its own registration.
func (vm *VersionManager) Begin(level int) (tm.XID, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	snapSource := vm.activeXIDSet()

	xid, err := vm.tmgr.Begin()
	if err != nil {
		return 0, err
	}

	tx := newTransaction(xid, level, snapSource)
	vm.active[xid] = tx

	return xid, nil
}

func (vm *VersionManager) txFor(xid tm.XID) (*Transaction, error) {
	vm.mu.Lock()
	tx, ok := vm.active[xid]
	vm.mu.Unlock()
	if !ok {
		return nil, dberr.New(dberr.NoTransaction)
	}
	if tx.Err != nil {
		return nil, tx.Err
	}
	return tx, nil
}

// Insert wraps data as a fresh MVCC entry with xmin=xid, xmax=0 and stores
// it via DM. Returns the new row's UID.
func (vm *VersionManager) Insert(xid tm.XID, data []byte) (dm.UID, error) {
	if _, err := vm.txFor(xid); err != nil {
		return 0, err
	}
	raw := wrapEntryRaw(xid, data)
	return vm.dm.Insert(xid, raw)
}

// Read returns a copy of the data portion of uid's entry if it is visible to
// xid under its isolation level, or nil if it is not (or does not exist).
func (vm *VersionManager) Read(xid tm.XID, uid dm.UID) ([]byte, error) {
	tx, err := vm.txFor(xid)
	if err != nil {
		return nil, err
	}

	raw, err := readEntry(vm.dm, uid)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	if !isVisible(vm.tmgr, tx, raw) {
		return nil, nil
	}
	data := entryData(raw)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete tombstones uid by setting its xmax to xid, after acquiring the
// row's lock (which may block or detect a deadlock) and rechecking
// visibility/version-skip under that lock, per spec.md §4.6.
func (vm *VersionManager) Delete(xid tm.XID, uid dm.UID) (bool, error) {
	tx, err := vm.txFor(xid)
	if err != nil {
		return false, err
	}

	raw, err := readEntry(vm.dm, uid)
	if err != nil {
		return false, err
	}
	if raw == nil || !isVisible(vm.tmgr, tx, raw) {
		return false, nil
	}

	waitLock, err := vm.locks.Add(xid, uid)
	if err != nil {
		vm.autoAbort(tx, dberr.Wrap(dberr.ConcurrentUpdate, err))
		return false, tx.Err
	}
	if waitLock != nil {
		waitLock.Lock() // parks until the current owner releases this uid
	}

	raw, err = readEntry(vm.dm, uid)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if entryXmax(raw) == xid {
		return false, nil
	}
	if isVersionSkip(vm.tmgr, tx, raw) {
		vm.autoAbort(tx, dberr.New(dberr.ConcurrentUpdate))
		return false, tx.Err
	}

	item, err := vm.dm.Read(uid)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	item.Before()
	setEntryXmax(item.Data(), xid)
	if err := item.After(xid); err != nil {
		item.Release()
		return false, err
	}
	item.Release()

	return true, nil
}

func (vm *VersionManager) autoAbort(tx *Transaction, err error) {
	tx.Err = err
	tx.AutoAborted = true
	vm.endTransaction(tx.XID)
	vm.tmgr.Abort(tx.XID)
}

// Commit finalizes xid: drops it from the active set, releases its locks,
// and marks it committed in TM.
func (vm *VersionManager) Commit(xid tm.XID) error {
	vm.endTransaction(xid)
	return vm.tmgr.Commit(xid)
}

// Abort finalizes xid the same way as Commit, but marks it aborted instead.
func (vm *VersionManager) Abort(xid tm.XID) error {
	vm.endTransaction(xid)
	return vm.tmgr.Abort(xid)
}

func (vm *VersionManager) endTransaction(xid tm.XID) {
	vm.mu.Lock()
	delete(vm.active, xid)
	vm.mu.Unlock()
	vm.locks.Remove(xid)
}
