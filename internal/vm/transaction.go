package vm

import "github.com/gaoyinhao/MiniDB/internal/tm"

// Isolation levels (spec.md §4.6).
const (
	LevelReadCommitted = 0
	LevelRepeatableRead = 1
)

// Transaction is VM's per-XID bookkeeping: isolation level, the active-set
// snapshot captured at begin time under RR, a sticky fatal error, and
// whether VM auto-aborted it (e.g. after a deadlock or version-skip).
type Transaction struct {
	XID         tm.XID
	Level       int
	Snap        map[tm.XID]struct{}
	Err         error
	AutoAborted bool
}

func newTransaction(xid tm.XID, level int, active map[tm.XID]struct{}) *Transaction {
	tx := &Transaction{XID: xid, Level: level}
	if level >= LevelRepeatableRead {
		tx.Snap = make(map[tm.XID]struct{}, len(active))
		for a := range active {
			tx.Snap[a] = struct{}{}
		}
	}
	return tx
}

func (tx *Transaction) inSnapshot(xid tm.XID) bool {
	if tx.Snap == nil {
		return false
	}
	_, ok := tx.Snap[xid]
	return ok
}
