package im

import (
	"path/filepath"
	"testing"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

func newTestTree(t *testing.T) *BPlusTree {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	if err != nil {
		t.Fatalf("tm.Create: %v", err)
	}
	d, err := dm.Create(path, tmgr)
	if err != nil {
		t.Fatalf("dm.Create: %v", err)
	}
	if err := d.CloseAfterCreate(); err != nil {
		t.Fatalf("CloseAfterCreate: %v", err)
	}
	d, err = dm.Open(path, tmgr, 0)
	if err != nil {
		t.Fatalf("dm.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	bootUID, err := Create(d)
	if err != nil {
		t.Fatalf("im.Create: %v", err)
	}
	tree, err := Load(bootUID, d)
	if err != nil {
		t.Fatalf("im.Load: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

func TestInsertThenSearchFindsValue(t *testing.T) {
	tree := newTestTree(t)
	if err := tree.Insert(42, 1001); err != nil {
		t.Fatalf("insert: %v", err)
	}
	values, err := tree.Search(42)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(values) != 1 || values[0] != 1001 {
		t.Fatalf("got %v", values)
	}
}

func TestSearchRangeReturnsAllMatchingValues(t *testing.T) {
	tree := newTestTree(t)
	for i := uint64(0); i < 200; i++ {
		if err := tree.Insert(i, 10000+i); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	values, err := tree.SearchRange(50, 59)
	if err != nil {
		t.Fatalf("searchRange: %v", err)
	}
	if len(values) != 10 {
		t.Fatalf("expected 10 values in [50,59], got %d: %v", len(values), values)
	}
	seen := make(map[uint64]bool)
	for _, v := range values {
		seen[v] = true
	}
	for k := uint64(50); k <= 59; k++ {
		if !seen[10000+k] {
			t.Fatalf("missing value for key %d", k)
		}
	}
}

func TestNonUniqueKeysAllSurvive(t *testing.T) {
	tree := newTestTree(t)
	if err := tree.Insert(7, 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tree.Insert(7, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tree.Insert(7, 3); err != nil {
		t.Fatalf("insert: %v", err)
	}

	values, err := tree.Search(7)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values for duplicate key, got %v", values)
	}
}

func TestInsertManyCausesSplitsAndStaysSearchable(t *testing.T) {
	tree := newTestTree(t)
	const n = 5000
	for i := uint64(0); i < n; i++ {
		if err := tree.Insert(i, i*2); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	for _, k := range []uint64{0, 1, 2*balance - 1, 2 * balance, n / 2, n - 1} {
		values, err := tree.Search(k)
		if err != nil {
			t.Fatalf("search %d: %v", k, err)
		}
		if len(values) != 1 || values[0] != k*2 {
			t.Fatalf("key %d: got %v", k, values)
		}
	}

	all, err := tree.SearchRange(0, n-1)
	if err != nil {
		t.Fatalf("full range: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d values, got %d", n, len(all))
	}
}

func TestStringKeyIsDeterministic(t *testing.T) {
	if StringKey("hello") != StringKey("hello") {
		t.Fatalf("expected StringKey to be deterministic")
	}
	if StringKey("hello") == StringKey("world") {
		t.Fatalf("collision between distinct short strings is suspiciously unlucky")
	}
}
