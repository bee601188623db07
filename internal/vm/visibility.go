package vm

import "github.com/gaoyinhao/MiniDB/internal/tm"

// isVisible implements spec.md §4.6.1's Read Committed and Repeatable Read
// rules against one entry's [xmin, xmax] pair.
func isVisible(tmgr *tm.TransactionManager, tx *Transaction, raw []byte) bool {
	if tx.Level == LevelRepeatableRead {
		return isVisibleRR(tmgr, tx, raw)
	}
	return isVisibleRC(tmgr, tx, raw)
}

func isVisibleRC(tmgr *tm.TransactionManager, tx *Transaction, raw []byte) bool {
	xmin, xmax := entryXmin(raw), entryXmax(raw)
	t := tx.XID

	if xmin == t && xmax == 0 {
		return true
	}
	if tmgr.IsCommitted(xmin) {
		if xmax == 0 {
			return true
		}
		if xmax != t && !tmgr.IsCommitted(xmax) {
			return true
		}
	}
	return false
}

func isVisibleRR(tmgr *tm.TransactionManager, tx *Transaction, raw []byte) bool {
	xmin, xmax := entryXmin(raw), entryXmax(raw)
	t := tx.XID

	if xmin == t && xmax == 0 {
		return true
	}
	if !(tmgr.IsCommitted(xmin) && xmin < t && !tx.inSnapshot(xmin)) {
		return false
	}
	if xmax == 0 {
		return true
	}
	if xmax == t {
		return false
	}
	return !tmgr.IsCommitted(xmax) || xmax > t || tx.inSnapshot(xmax)
}

// isVersionSkip is the RR-only check run on delete: a committed writer whose
// xmax is invisible to t forces t to abort to preserve repeatable-read.
func isVersionSkip(tmgr *tm.TransactionManager, tx *Transaction, raw []byte) bool {
	if tx.Level != LevelRepeatableRead {
		return false
	}
	xmax := entryXmax(raw)
	return tmgr.IsCommitted(xmax) && (xmax > tx.XID || tx.inSnapshot(xmax))
}
