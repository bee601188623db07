package im

import (
	"encoding/binary"
	"sync"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

// BPlusTree is a non-unique uint64 → uint64 index whose nodes and boot
// pointer are ordinary DataItems, written under the super transaction
// (spec.md §4.7): index maintenance bypasses VM/MVCC entirely.
type BPlusTree struct {
	dm *dm.DataManager

	bootUID  dm.UID
	bootItem *dm.DataItem
	bootMu   sync.Mutex
}

// Create allocates a fresh, empty tree and returns the boot UID callers
// must persist (e.g. in a Field's indexRootUID) to reopen it later.
func Create(d *dm.DataManager) (dm.UID, error) {
	rootUID, err := d.Insert(tm.SuperXID, newNilRootRaw())
	if err != nil {
		return 0, err
	}
	bootRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(bootRaw, uint64(rootUID))
	return d.Insert(tm.SuperXID, bootRaw)
}

// Load reopens a tree from its boot UID.
func Load(bootUID dm.UID, d *dm.DataManager) (*BPlusTree, error) {
	item, err := d.Read(bootUID)
	if err != nil {
		return nil, err
	}
	return &BPlusTree{dm: d, bootUID: bootUID, bootItem: item}, nil
}

// Close releases the pinned boot DataItem.
func (t *BPlusTree) Close() { t.bootItem.Release() }

func (t *BPlusTree) rootUID() uint64 {
	t.bootMu.Lock()
	defer t.bootMu.Unlock()
	t.bootItem.RLock()
	defer t.bootItem.RUnlock()
	return binary.BigEndian.Uint64(t.bootItem.Data())
}

// updateRootUID replaces the tree's root with a fresh one whose two
// children are left and right, split at rightKey. This is the only way the
// boot pointer ever changes.
func (t *BPlusTree) updateRootUID(left, right uint64, rightKey uint64) error {
	t.bootMu.Lock()
	defer t.bootMu.Unlock()

	newRoot := newRootRaw(left, right, rightKey)
	newRootUID, err := t.dm.Insert(tm.SuperXID, newRoot)
	if err != nil {
		return err
	}

	t.bootItem.Before()
	binary.BigEndian.PutUint64(t.bootItem.Data(), uint64(newRootUID))
	return t.bootItem.After(tm.SuperXID)
}

func (t *BPlusTree) searchLeaf(nodeUID, key uint64) (uint64, error) {
	n, err := loadNode(t, nodeUID)
	if err != nil {
		return 0, err
	}
	leaf := n.isLeaf()
	n.release()
	if leaf {
		return nodeUID, nil
	}
	next, err := t.searchNext(nodeUID, key)
	if err != nil {
		return 0, err
	}
	return t.searchLeaf(next, key)
}

func (t *BPlusTree) searchNext(nodeUID, key uint64) (uint64, error) {
	for {
		n, err := loadNode(t, nodeUID)
		if err != nil {
			return 0, err
		}
		res := n.searchNext(key)
		n.release()
		if res.childUID != 0 {
			return res.childUID, nil
		}
		nodeUID = res.siblingUID
	}
}

// Search returns every value stored under key (non-unique: may be more
// than one).
func (t *BPlusTree) Search(key uint64) ([]uint64, error) {
	return t.SearchRange(key, key)
}

// SearchRange returns every value whose key lies in [lo, hi], walking
// leaves left-to-right via their sibling pointers.
func (t *BPlusTree) SearchRange(lo, hi uint64) ([]uint64, error) {
	leafUID, err := t.searchLeaf(t.rootUID(), lo)
	if err != nil {
		return nil, err
	}

	var values []uint64
	for {
		leaf, err := loadNode(t, leafUID)
		if err != nil {
			return nil, err
		}
		vs, siblingUID := leaf.leafSearchRange(lo, hi)
		leaf.release()
		values = append(values, vs...)
		if siblingUID == 0 {
			break
		}
		leafUID = siblingUID
	}
	return values, nil
}

// Insert adds (key, value), descending to the target leaf, splitting nodes
// as necessary, and growing the tree's height by one if the split
// propagates past the root.
func (t *BPlusTree) Insert(key, value uint64) error {
	root := t.rootUID()
	newSon, newKey, err := t.insert(root, value, key)
	if err != nil {
		return err
	}
	if newSon != 0 {
		return t.updateRootUID(root, newSon, newKey)
	}
	return nil
}

func (t *BPlusTree) insert(nodeUID, value, key uint64) (newSon, newKey uint64, err error) {
	n, err := loadNode(t, nodeUID)
	if err != nil {
		return 0, 0, err
	}
	leaf := n.isLeaf()
	n.release()

	if leaf {
		return t.insertAndSplit(nodeUID, value, key)
	}

	next, err := t.searchNext(nodeUID, key)
	if err != nil {
		return 0, 0, err
	}
	childSon, childKey, err := t.insert(next, value, key)
	if err != nil {
		return 0, 0, err
	}
	if childSon != 0 {
		return t.insertAndSplit(nodeUID, childSon, childKey)
	}
	return 0, 0, nil
}

// insertAndSplit retries against successive siblings until the node that
// actually owns this key range accepts the insert.
func (t *BPlusTree) insertAndSplit(nodeUID, value, key uint64) (newSon, newKey uint64, err error) {
	for {
		n, err := loadNode(t, nodeUID)
		if err != nil {
			return 0, 0, err
		}
		res, err := n.insertAndSplit(value, key)
		n.release()
		if err != nil {
			return 0, 0, err
		}
		if res.siblingUID != 0 {
			nodeUID = res.siblingUID
			continue
		}
		return res.newSon, res.newKey, nil
	}
}
