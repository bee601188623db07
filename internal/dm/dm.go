// Package dm is the data manager of spec.md §4.4: DataItem-level storage on
// top of the page cache, insert placement via the free-space index, and WAL
// write-ahead logging.
package dm

import (
	"bytes"
	"crypto/rand"

	"github.com/gaoyinhao/MiniDB/internal/pcache"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/wal"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

const (
	bootPgno    = 1
	tokenLen    = 8
	tokenOpenAt = 100
	tokenCloseAt = tokenOpenAt + tokenLen
)

// DataManager ties the page cache and the write-ahead log together and
// exposes DataItem-level read/insert plus crash recovery.
type DataManager struct {
	cache     *pcache.Cache
	wal       *wal.WAL
	tmgr      *tm.TransactionManager
	index     *PageIndex
	openToken []byte
}

func randomToken() []byte {
	buf := make([]byte, tokenLen)
	_, _ = rand.Read(buf)
	return buf
}

// Create initializes the paged data file and log file at path, leaving page
// 1's open/close tokens deliberately mismatched (spec.md §4.4): the first
// real Open will see that and run the (harmless, on an empty log) recovery
// pass before establishing its own session token.
func Create(path string, tmgr *tm.TransactionManager) (*DataManager, error) {
	cache, err := pcache.Open(path+".db", 0)
	if err != nil {
		return nil, err
	}
	w, err := wal.Create(path + ".log")
	if err != nil {
		cache.Close()
		return nil, err
	}

	buf := make([]byte, pcache.PageSize)
	copy(buf[tokenOpenAt:tokenCloseAt], randomToken())
	if _, err := cache.NewPage(buf); err != nil {
		cache.Close()
		w.Close()
		return nil, err
	}

	return &DataManager{cache: cache, wal: w, tmgr: tmgr, index: NewPageIndex()}, nil
}

// CloseAfterCreate closes the files created by Create without attempting a
// graceful-shutdown token sync (there is no live session to close).
func (dm *DataManager) CloseAfterCreate() error {
	if err := dm.wal.Close(); err != nil {
		return err
	}
	return dm.cache.Close()
}

// Open opens an existing database, running recovery if the prior session
// did not shut down cleanly, then rebuilds the free-space index by scanning
// every data page.
func Open(path string, tmgr *tm.TransactionManager, maxResidentPages int) (*DataManager, error) {
	cache, err := pcache.Open(path+".db", maxResidentPages)
	if err != nil {
		return nil, err
	}
	w, err := wal.Open(path + ".log")
	if err != nil {
		cache.Close()
		return nil, err
	}

	dm := &DataManager{cache: cache, wal: w, tmgr: tmgr, index: NewPageIndex()}

	page1, err := cache.GetPage(bootPgno)
	if err != nil {
		dm.Close()
		return nil, err
	}
	openTok := append([]byte(nil), page1.Data()[tokenOpenAt:tokenCloseAt]...)
	closeTok := page1.Data()[tokenCloseAt : tokenCloseAt+tokenLen]
	cleanShutdown := bytes.Equal(openTok, closeTok)
	cache.Release(page1)

	if !cleanShutdown {
		logger.Warnf("dm: %s was not closed cleanly, running recovery", path)
		if err := dm.recover(); err != nil {
			dm.Close()
			return nil, err
		}
	}

	n := cache.PageCount()
	for pgno := uint32(bootPgno + 1); pgno <= n; pgno++ {
		p, err := cache.GetPage(pgno)
		if err != nil {
			dm.Close()
			return nil, err
		}
		dm.index.Add(pgno, freeSpace(p))
		cache.Release(p)
	}

	page1, err = cache.GetPage(bootPgno)
	if err != nil {
		dm.Close()
		return nil, err
	}
	dm.openToken = randomToken()
	copy(page1.Data()[tokenOpenAt:tokenCloseAt], dm.openToken)
	page1.SetDirty(true)
	if err := cache.FlushPage(page1); err != nil {
		cache.Release(page1)
		dm.Close()
		return nil, err
	}
	cache.Release(page1)

	return dm, nil
}

// Close performs a graceful shutdown: it copies the session's open token
// into the close-token slot so the next Open sees a clean match, then
// closes the log and data files.
func (dm *DataManager) Close() error {
	if dm.openToken != nil {
		if page1, err := dm.cache.GetPage(bootPgno); err == nil {
			copy(page1.Data()[tokenCloseAt:tokenCloseAt+tokenLen], dm.openToken)
			page1.SetDirty(true)
			dm.cache.FlushPage(page1)
			dm.cache.Release(page1)
		}
	}
	werr := dm.wal.Close()
	cerr := dm.cache.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Insert wraps data as a live DataItem and places it on a page with enough
// free space, logging an INSERT record before mutating the page (spec.md
// §4.4's insert algorithm).
func (dm *DataManager) Insert(xid tm.XID, data []byte) (UID, error) {
	raw := wrapDataItemRaw(data)
	if len(raw) > pcache.PageSize-pageHeaderLen {
		return 0, dberr.New(dberr.DataTooLarge)
	}

	for attempt := 0; attempt < 5; attempt++ {
		pgno, free, ok := dm.index.Select(uint16(len(raw)))
		if !ok {
			newPgno, err := dm.cache.NewPage(initRawPage())
			if err != nil {
				return 0, err
			}
			dm.index.Add(newPgno, pcache.PageSize-pageHeaderLen)
			continue
		}

		page, err := dm.cache.GetPage(pgno)
		if err != nil {
			dm.index.Add(pgno, free)
			continue
		}

		fso := getFSO(page)
		record := buildInsertLog(xid, pgno, fso, raw)
		if err := dm.wal.Log(record); err != nil {
			dm.cache.Release(page)
			dm.index.Add(pgno, free)
			return 0, err
		}

		copy(page.Data()[fso:], raw)
		setFSO(page, fso+uint16(len(raw)))
		page.SetDirty(true)
		newFree := freeSpace(page)
		dm.cache.Release(page)
		dm.index.Add(pgno, newFree)

		return NewUID(pgno, fso), nil
	}
	return 0, dberr.New(dberr.DatabaseBusy)
}

// Read returns a pinned DataItem for uid, or nil if it has been logically
// deleted. Callers must call Release on a non-nil result.
func (dm *DataManager) Read(uid UID) (*DataItem, error) {
	page, err := dm.cache.GetPage(uid.Pgno())
	if err != nil {
		return nil, err
	}
	di := newDataItem(dm, page, uid.Offset())
	if !di.IsValid() {
		dm.cache.Release(page)
		return nil, nil
	}
	return di, nil
}
