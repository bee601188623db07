package table

import (
	"strings"
	"sync"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/parser"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/vm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

// TableManager is the schema catalog: it owns the Booter anchor, the
// chain of Table definitions reachable from it, and dispatches every
// parsed statement to the right Table/Field/VersionManager call. Table
// definitions are global and take effect immediately on create — schema
// metadata is not MVCC-versioned, matching how Field/Table records are
// written under the super transaction.
type TableManager struct {
	dataMgr *dm.DataManager
	verMgr  *vm.VersionManager
	booter  *Booter

	mu         sync.Mutex
	tableCache map[string]*Table
	tableOrder []string
}

// Create initializes a brand-new, empty catalog.
func Create(path string, d *dm.DataManager, vmgr *vm.VersionManager) (*TableManager, error) {
	booter, err := CreateBooter(path)
	if err != nil {
		return nil, err
	}
	if err := booter.UpdateFirstTableUID(0); err != nil {
		return nil, err
	}
	return &TableManager{
		dataMgr:    d,
		verMgr:     vmgr,
		booter:     booter,
		tableCache: make(map[string]*Table),
	}, nil
}

// Open reopens an existing catalog, loading every table reachable from
// the booter's head.
func Open(path string, d *dm.DataManager, vmgr *vm.VersionManager) (*TableManager, error) {
	booter, err := OpenBooter(path)
	if err != nil {
		return nil, err
	}
	tmg := &TableManager{
		dataMgr:    d,
		verMgr:     vmgr,
		booter:     booter,
		tableCache: make(map[string]*Table),
	}
	if err := tmg.loadTables(); err != nil {
		return nil, err
	}
	return tmg, nil
}

func (tmg *TableManager) loadTables() error {
	uid, err := tmg.booter.LoadFirstTableUID()
	if err != nil {
		return err
	}
	for uid != 0 {
		t, err := LoadTable(tmg.dataMgr, dm.UID(uid))
		if err != nil {
			return err
		}
		tmg.tableCache[t.Name] = t
		tmg.tableOrder = append(tmg.tableOrder, t.Name)
		uid = t.NextTableUID()
	}
	return nil
}

// Begin starts a new transaction at the given isolation level (0 = read
// committed, 1 = repeatable read, per vm.LevelReadCommitted/LevelRepeatableRead).
func (tmg *TableManager) Begin(level int) (tm.XID, error) { return tmg.verMgr.Begin(level) }

// Commit finalizes xid.
func (tmg *TableManager) Commit(xid tm.XID) error { return tmg.verMgr.Commit(xid) }

// Abort rolls xid back.
func (tmg *TableManager) Abort(xid tm.XID) error { return tmg.verMgr.Abort(xid) }

// Show renders every table's schema, in creation order.
func (tmg *TableManager) Show() string {
	tmg.mu.Lock()
	defer tmg.mu.Unlock()
	if len(tmg.tableOrder) == 0 {
		return "(no tables)\n"
	}
	var sb strings.Builder
	for _, name := range tmg.tableOrder {
		sb.WriteString(tmg.tableCache[name].Describe())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CreateTable registers a new table and chains it in front of the
// existing catalog head.
func (tmg *TableManager) CreateTable(stmt parser.Create) error {
	tmg.mu.Lock()
	defer tmg.mu.Unlock()

	if _, exists := tmg.tableCache[stmt.TableName]; exists {
		return dberr.New(dberr.DuplicatedTable)
	}
	prevHead, err := tmg.booter.LoadFirstTableUID()
	if err != nil {
		return err
	}
	tb, err := CreateTable(tmg.dataMgr, stmt, prevHead)
	if err != nil {
		return err
	}
	if err := tmg.booter.UpdateFirstTableUID(uint64(tb.UID())); err != nil {
		return err
	}
	tmg.tableCache[tb.Name] = tb
	tmg.tableOrder = append(tmg.tableOrder, tb.Name)
	return nil
}

func (tmg *TableManager) lookup(name string) (*Table, error) {
	tmg.mu.Lock()
	defer tmg.mu.Unlock()
	tb, ok := tmg.tableCache[name]
	if !ok {
		return nil, dberr.New(dberr.TableNotFound)
	}
	return tb, nil
}

// Insert dispatches a parsed Insert statement.
func (tmg *TableManager) Insert(xid tm.XID, stmt parser.Insert) error {
	tb, err := tmg.lookup(stmt.TableName)
	if err != nil {
		return err
	}
	return tb.Insert(tmg.verMgr, xid, stmt.Values)
}

// Select dispatches a parsed Select statement, returning its rendered
// result rows.
func (tmg *TableManager) Select(xid tm.XID, stmt parser.Select) (string, error) {
	tb, err := tmg.lookup(stmt.TableName)
	if err != nil {
		return "", err
	}
	rows, err := tb.Select(tmg.verMgr, xid, stmt.Where)
	if err != nil {
		return "", err
	}
	return tb.PrintRows(rows), nil
}

// Delete dispatches a parsed Delete statement, returning the row count
// removed.
func (tmg *TableManager) Delete(xid tm.XID, stmt parser.Delete) (int, error) {
	tb, err := tmg.lookup(stmt.TableName)
	if err != nil {
		return 0, err
	}
	return tb.Delete(tmg.verMgr, xid, stmt.Where)
}

// Update dispatches a parsed Update statement, returning the row count
// changed.
func (tmg *TableManager) Update(xid tm.XID, stmt parser.Update) (int, error) {
	tb, err := tmg.lookup(stmt.TableName)
	if err != nil {
		return 0, err
	}
	return tb.Update(tmg.verMgr, xid, stmt.FieldName, stmt.Value, stmt.Where)
}
