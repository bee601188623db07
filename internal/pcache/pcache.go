// Package pcache is the page cache of spec.md §4.2: a fixed-size paged file
// backed by reference-counted pages with dirty writeback.
package pcache

import (
	"os"
	"sync"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

// MinResidentPages is the minimum buffer pool size the cache accepts;
// below it, startup is fatal (spec.md §4.2).
const MinResidentPages = 10

type residentPage struct {
	page     *Page
	refcount int
}

// Cache is a reference-counted cache of fixed-size pages over a single
// random-access file. One mutex guards the resident map, the page counter,
// and (per spec.md §4.2) the I/O that loads a page from disk.
type Cache struct {
	mu          sync.Mutex
	file        *os.File
	resident    map[uint32]*residentPage
	counter     uint32 // highest page number ever allocated
	maxResident int    // 0 means unbounded
}

// Open opens path (creating it if needed) and returns a Cache whose
// resident-page budget is maxResident (0 = unbounded). maxResident, if
// nonzero, must be at least MinResidentPages.
func Open(path string, maxResident int) (*Cache, error) {
	if maxResident != 0 && maxResident < MinResidentPages {
		return nil, dberr.New(dberr.InvalidMem)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Wrapf(dberr.FileNotReadWritable, err, "pcache: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, dberr.New(dberr.InvalidPageData)
	}

	return &Cache{
		file:        f,
		resident:    make(map[uint32]*residentPage),
		counter:     uint32(info.Size() / PageSize),
		maxResident: maxResident,
	}, nil
}

// PageCount returns the number of pages the file currently holds.
func (c *Cache) PageCount() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

func pageOffset(pgno uint32) int64 {
	return int64(pgno-1) * PageSize
}

// NewPage appends a new page initialized with initData (padded/truncated to
// PageSize) and writes it through to disk immediately, so a crash right
// after allocation leaves no gap in the file (spec.md §4.2).
func (c *Cache) NewPage(initData []byte) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pgno := c.counter + 1
	buf := make([]byte, PageSize)
	copy(buf, initData)

	if _, err := c.file.WriteAt(buf, pageOffset(pgno)); err != nil {
		return 0, dberr.Wrapf(dberr.InvalidPageData, err, "pcache: write new page %d", pgno)
	}
	c.counter = pgno
	return pgno, nil
}

// GetPage returns a pinned handle onto pgno, loading it from disk if it is
// not already resident. Callers must Release it when done.
func (c *Cache) GetPage(pgno uint32) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rp, ok := c.resident[pgno]; ok {
		rp.refcount++
		return rp.page, nil
	}

	if c.maxResident > 0 && len(c.resident) >= c.maxResident {
		if !c.evictOneLocked() {
			return nil, dberr.New(dberr.CacheFull)
		}
	}

	buf := make([]byte, PageSize)
	if _, err := c.file.ReadAt(buf, pageOffset(pgno)); err != nil {
		return nil, dberr.Wrapf(dberr.InvalidPageData, err, "pcache: read page %d", pgno)
	}
	page := &Page{pgno: pgno, data: buf, cache: c}
	c.resident[pgno] = &residentPage{page: page, refcount: 1}
	return page, nil
}

// evictOneLocked tries to find an unpinned resident page and evict it
// (flushing first if dirty). Must be called with c.mu held.
func (c *Cache) evictOneLocked() bool {
	for pgno, rp := range c.resident {
		if rp.refcount == 0 {
			if rp.page.dirty {
				if err := c.flushLocked(rp.page); err != nil {
					logger.Errorf("pcache: evict flush page %d: %v", pgno, err)
					continue
				}
			}
			delete(c.resident, pgno)
			return true
		}
	}
	return false
}

// Release unpins page. If its refcount drops to zero, a dirty page is
// flushed and the slot is freed.
func (c *Cache) Release(page *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rp, ok := c.resident[page.pgno]
	if !ok {
		return
	}
	rp.refcount--
	if rp.refcount > 0 {
		return
	}
	if page.dirty {
		if err := c.flushLocked(page); err != nil {
			logger.Errorf("pcache: release flush page %d: %v", page.pgno, err)
		}
	}
	delete(c.resident, page.pgno)
}

// FlushPage writes page's bytes back to disk and clears its dirty flag.
func (c *Cache) FlushPage(page *Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(page)
}

func (c *Cache) flushLocked(page *Page) error {
	if _, err := c.file.WriteAt(page.data, pageOffset(page.pgno)); err != nil {
		return dberr.Wrapf(dberr.InvalidPageData, err, "pcache: flush page %d", page.pgno)
	}
	if err := c.file.Sync(); err != nil {
		return dberr.Wrap(dberr.InvalidPageData, err)
	}
	page.dirty = false
	return nil
}

// TruncateByPgno shrinks (or, in principle, extends) the file to exactly
// max pages, for use by crash recovery (spec.md §4.4).
func (c *Cache) TruncateByPgno(max uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.file.Truncate(int64(max) * PageSize); err != nil {
		return dberr.Wrap(dberr.InvalidPageData, err)
	}
	c.counter = max
	return nil
}

// Close writes every dirty resident page back to disk, including pages that
// are still pinned, and closes the underlying file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pgno, rp := range c.resident {
		if rp.page.dirty {
			if err := c.flushLocked(rp.page); err != nil {
				logger.Errorf("pcache: close flush page %d: %v", pgno, err)
			}
		}
	}
	return c.file.Close()
}
