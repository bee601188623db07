package dm

import (
	"encoding/binary"

	"github.com/gaoyinhao/MiniDB/internal/pcache"
)

// Data pages (page number >= 2) hold a 2-byte free-space offset (FSO)
// header followed by an append-only run of DataItem records (spec.md §3).
const pageHeaderLen = 2

// initRawPage returns the bytes of a freshly allocated, empty data page.
func initRawPage() []byte {
	buf := make([]byte, pcache.PageSize)
	setFSORaw(buf, pageHeaderLen)
	return buf
}

func getFSO(page *pcache.Page) uint16 {
	return binary.BigEndian.Uint16(page.Data()[0:2])
}

func setFSO(page *pcache.Page, fso uint16) {
	setFSORaw(page.Data(), fso)
}

func setFSORaw(buf []byte, fso uint16) {
	binary.BigEndian.PutUint16(buf[0:2], fso)
}

func freeSpace(page *pcache.Page) uint16 {
	return uint16(pcache.PageSize) - getFSO(page)
}

// growFSO advances the page's FSO to at least want, used by redo recovery
// where re-applying an insert must be idempotent.
func growFSO(page *pcache.Page, want uint16) {
	if getFSO(page) < want {
		setFSO(page, want)
	}
}
