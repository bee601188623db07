package dm

import (
	"github.com/gaoyinhao/MiniDB/internal/pcache"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

// withPage pins pgno, runs fn against it, and releases it (flushing if fn
// left it dirty), per the DataItem/Page release contract used everywhere
// else in DM.
func (dm *DataManager) withPage(pgno uint32, fn func(page *pcache.Page)) error {
	page, err := dm.cache.GetPage(pgno)
	if err != nil {
		return err
	}
	fn(page)
	dm.cache.Release(page)
	return nil
}

// recover implements spec.md §4.4's crash recovery: truncate the data file
// to the highest page any log record references, redo every record whose
// XID is no longer active, then undo (and abort) every XID that was still
// active at crash time.
func (dm *DataManager) recover() error {
	maxPgno, err := dm.scanMaxPgno()
	if err != nil {
		return err
	}
	if maxPgno < bootPgno {
		maxPgno = bootPgno
	}
	if err := dm.cache.TruncateByPgno(maxPgno); err != nil {
		return err
	}

	if err := dm.redoPhase(); err != nil {
		return err
	}
	return dm.undoPhase()
}

func (dm *DataManager) scanMaxPgno() (uint32, error) {
	dm.wal.Rewind()
	max := uint32(0)
	for {
		payload, ok := dm.wal.Next()
		if !ok {
			break
		}
		pgno, err := recordPgno(payload)
		if err != nil {
			logger.Warnf("dm: recover: skipping malformed record: %v", err)
			continue
		}
		if pgno > max {
			max = pgno
		}
	}
	return max, nil
}

func (dm *DataManager) redoPhase() error {
	dm.wal.Rewind()
	for {
		payload, ok := dm.wal.Next()
		if !ok {
			break
		}
		xid, err := recordXID(payload)
		if err != nil {
			continue
		}
		if dm.tmgr.IsActive(xid) {
			continue // still active at crash time: handled in undo phase
		}
		if err := dm.redoRecord(payload); err != nil {
			return err
		}
	}
	return nil
}

func (dm *DataManager) redoRecord(payload []byte) error {
	switch payload[0] {
	case logInsert:
		_, pgno, offset, raw, err := parseInsertLog(payload)
		if err != nil {
			return err
		}
		return dm.withPage(pgno, func(page *pcache.Page) {
			copy(page.Data()[offset:], raw)
			growFSO(page, offset+uint16(len(raw)))
			page.SetDirty(true)
		})
	case logUpdate:
		_, uid, _, newRaw, err := parseUpdateLog(payload)
		if err != nil {
			return err
		}
		return dm.withPage(uid.Pgno(), func(page *pcache.Page) {
			copy(page.Data()[uid.Offset():], newRaw)
			page.SetDirty(true)
		})
	}
	return nil
}

func (dm *DataManager) undoPhase() error {
	byXID := make(map[tm.XID][][]byte)
	order := make([]tm.XID, 0)

	dm.wal.Rewind()
	for {
		payload, ok := dm.wal.Next()
		if !ok {
			break
		}
		xid, err := recordXID(payload)
		if err != nil {
			continue
		}
		if !dm.tmgr.IsActive(xid) {
			continue
		}
		if _, seen := byXID[xid]; !seen {
			order = append(order, xid)
		}
		byXID[xid] = append(byXID[xid], payload)
	}

	for _, xid := range order {
		records := byXID[xid]
		for i := len(records) - 1; i >= 0; i-- {
			if err := dm.undoRecord(records[i]); err != nil {
				return err
			}
		}
		if err := dm.tmgr.Abort(xid); err != nil {
			return err
		}
	}
	return nil
}

func (dm *DataManager) undoRecord(payload []byte) error {
	switch payload[0] {
	case logInsert:
		_, pgno, offset, raw, err := parseInsertLog(payload)
		if err != nil {
			return err
		}
		invalidated := append([]byte(nil), raw...)
		invalidated[0] = itemDeleted
		return dm.withPage(pgno, func(page *pcache.Page) {
			copy(page.Data()[offset:], invalidated)
			page.SetDirty(true)
		})
	case logUpdate:
		_, uid, oldRaw, _, err := parseUpdateLog(payload)
		if err != nil {
			return err
		}
		return dm.withPage(uid.Pgno(), func(page *pcache.Page) {
			copy(page.Data()[uid.Offset():], oldRaw)
			page.SetDirty(true)
		})
	}
	return nil
}
