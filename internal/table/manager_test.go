package table

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/parser"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/vm"
)

func newTestManager(t *testing.T) *TableManager {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	require.NoError(t, err)
	d, err := dm.Create(path, tmgr)
	require.NoError(t, err)
	require.NoError(t, d.CloseAfterCreate())
	d, err = dm.Open(path, tmgr, 0)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	vmgr := vm.New(d, tmgr)
	tmg, err := Create(path, d, vmgr)
	require.NoError(t, err)
	return tmg
}

func mustParse(t *testing.T, stat string) interface{} {
	t.Helper()
	stmt, err := parser.Parse([]byte(stat))
	require.NoError(t, err, "parse %q", stat)
	return stmt
}

func TestCreateInsertSelect(t *testing.T) {
	tmg := newTestManager(t)

	require.NoError(t, tmg.CreateTable(mustParse(t, "create table student (id int32, name string, age int32) (id)").(parser.Create)))

	xid, err := tmg.Begin(vm.LevelReadCommitted)
	require.NoError(t, err)
	require.NoError(t, tmg.Insert(xid, mustParse(t, "insert into student values 1 Alice 20").(parser.Insert)))
	require.NoError(t, tmg.Insert(xid, mustParse(t, "insert into student values 2 Bob 22").(parser.Insert)))
	require.NoError(t, tmg.Commit(xid))

	xid2, err := tmg.Begin(vm.LevelReadCommitted)
	require.NoError(t, err)
	out, err := tmg.Select(xid2, mustParse(t, "select * from student where id = 1").(parser.Select))
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.NotContains(t, out, "Bob")
	require.NoError(t, tmg.Commit(xid2))
}

func TestDuplicateTableNameRejected(t *testing.T) {
	tmg := newTestManager(t)
	create := mustParse(t, "create table t (id int32) (id)").(parser.Create)
	require.NoError(t, tmg.CreateTable(create))
	assert.Error(t, tmg.CreateTable(create), "expected duplicate table error")
}

func TestDeleteRemovesRow(t *testing.T) {
	tmg := newTestManager(t)
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t (id int32, v int32) (id)").(parser.Create)))

	xid, _ := tmg.Begin(vm.LevelReadCommitted)
	for _, stat := range []string{"insert into t values 1 10", "insert into t values 2 20"} {
		require.NoError(t, tmg.Insert(xid, mustParse(t, stat).(parser.Insert)))
	}
	n, err := tmg.Delete(xid, mustParse(t, "delete from t where id = 1").(parser.Delete))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := tmg.Select(xid, mustParse(t, "select * from t where id > 0").(parser.Select))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"), "expected exactly 1 row left")
	require.NoError(t, tmg.Commit(xid))
}

func TestUpdateRewritesField(t *testing.T) {
	tmg := newTestManager(t)
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t (id int32, v int32) (id)").(parser.Create)))

	xid, _ := tmg.Begin(vm.LevelReadCommitted)
	require.NoError(t, tmg.Insert(xid, mustParse(t, "insert into t values 1 10").(parser.Insert)))
	n, err := tmg.Update(xid, mustParse(t, "update t set v = 99 where id = 1").(parser.Update))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := tmg.Select(xid, mustParse(t, "select * from t where id = 1").(parser.Select))
	require.NoError(t, err)
	assert.Contains(t, out, "99")
	require.NoError(t, tmg.Commit(xid))
}

func TestSelectWithoutIndexedFieldInWhereFails(t *testing.T) {
	tmg := newTestManager(t)
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t (id int32, v int32) (id)").(parser.Create)))
	xid, _ := tmg.Begin(vm.LevelReadCommitted)
	_, err := tmg.Select(xid, mustParse(t, "select * from t where v = 1").(parser.Select))
	assert.Error(t, err, "expected error selecting on unindexed field")
	tmg.Abort(xid)
}

func TestShowListsCreatedTables(t *testing.T) {
	tmg := newTestManager(t)
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t1 (id int32) (id)").(parser.Create)))
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t2 (id int32) (id)").(parser.Create)))
	out := tmg.Show()
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "t2")
}

func TestReopenCatalogSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	tmgr, err := tm.Create(path)
	require.NoError(t, err)
	d, err := dm.Create(path, tmgr)
	require.NoError(t, err)
	require.NoError(t, d.CloseAfterCreate())
	d, err = dm.Open(path, tmgr, 0)
	require.NoError(t, err)
	vmgr := vm.New(d, tmgr)
	tmg, err := Create(path, d, vmgr)
	require.NoError(t, err)
	require.NoError(t, tmg.CreateTable(mustParse(t, "create table t (id int32) (id)").(parser.Create)))
	d.Close()

	tmgr2, err := tm.Open(path)
	require.NoError(t, err)
	d2, err := dm.Open(path, tmgr2, 0)
	require.NoError(t, err)
	t.Cleanup(func() { d2.Close() })
	vmgr2 := vm.New(d2, tmgr2)
	tmg2, err := Open(path, d2, vmgr2)
	require.NoError(t, err)
	assert.Contains(t, tmg2.Show(), "t(", "expected reopened catalog to contain table t")
}
