package pcache

// PageSize is the fixed on-disk page size (spec.md §3).
const PageSize = 8192

// Page is a pinned, in-memory handle onto one page's bytes. Data() aliases
// the cache's own buffer for that page: callers mutate it in place and rely
// on their own locking (DataItem's rwlock, in the DM/VM layers) to
// serialize access, per spec.md §9's "slice into page" design note.
type Page struct {
	pgno  uint32
	data  []byte
	dirty bool
	cache *Cache
}

// Number returns the 1-based page number.
func (p *Page) Number() uint32 { return p.pgno }

// Data returns the page's raw bytes. The slice aliases the cache's buffer;
// writes through it are visible to every other holder of this Page.
func (p *Page) Data() []byte { return p.data }

// SetDirty marks or clears the page's unflushed-writes flag.
func (p *Page) SetDirty(dirty bool) { p.dirty = dirty }

// IsDirty reports whether the page has unflushed writes.
func (p *Page) IsDirty() bool { return p.dirty }
