package table

import (
	"encoding/binary"
	"os"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

const (
	booterSuffix    = ".bt"
	booterTmpSuffix = ".bt_tmp"
)

// Booter is the bootstrap file holding the catalog head UID: the one piece
// of state that lets the engine find its first table without any other
// anchor. Updates are written to a ".bt_tmp" sibling and atomically
// renamed over the real file, so a crash mid-write never corrupts it.
type Booter struct {
	path string
}

func removeBadTmp(path string) { os.Remove(path + booterTmpSuffix) }

// CreateBooter makes a fresh, empty booter file.
func CreateBooter(path string) (*Booter, error) {
	removeBadTmp(path)
	f, err := os.OpenFile(path+booterSuffix, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.FileExists, err)
	}
	f.Close()
	return &Booter{path: path}, nil
}

// OpenBooter reopens an existing booter file.
func OpenBooter(path string) (*Booter, error) {
	removeBadTmp(path)
	if _, err := os.Stat(path + booterSuffix); err != nil {
		return nil, dberr.Wrap(dberr.FileMissing, err)
	}
	return &Booter{path: path}, nil
}

// Load returns the booter file's raw contents.
func (b *Booter) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path + booterSuffix)
	if err != nil {
		return nil, dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	return data, nil
}

// Update atomically replaces the booter file's contents with data.
func (b *Booter) Update(data []byte) error {
	tmpPath := b.path + booterTmpSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	if err := os.Rename(tmpPath, b.path+booterSuffix); err != nil {
		return dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	return nil
}

// LoadFirstTableUID reads the catalog head, 0 if the catalog is empty.
func (b *Booter) LoadFirstTableUID() (uint64, error) {
	data, err := b.Load()
	if err != nil {
		return 0, err
	}
	if len(data) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(data), nil
}

// UpdateFirstTableUID persists a new catalog head.
func (b *Booter) UpdateFirstTableUID(uid uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uid)
	return b.Update(buf[:])
}
