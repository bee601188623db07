package vm

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

func newTestVM(t *testing.T) *VersionManager {
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

	return New(d, tmgr)
}

func TestInsertReadOwnWrite(t *testing.T) {
	v := newTestVM(t)
	xid, err := v.Begin(LevelReadCommitted)
	require.NoError(t, err)
	uid, err := v.Insert(xid, []byte("row one"))
	require.NoError(t, err)
	data, err := v.Read(xid, uid)
	require.NoError(t, err)
	assert.Equal(t, "row one", string(data))
	assert.NoError(t, v.Commit(xid))
}

func TestReadCommittedSeesOnlyCommittedRows(t *testing.T) {
	v := newTestVM(t)

	writer, _ := v.Begin(LevelReadCommitted)
	uid, err := v.Insert(writer, []byte("uncommitted"))
	require.NoError(t, err)

	reader, _ := v.Begin(LevelReadCommitted)
	data, err := v.Read(reader, uid)
	require.NoError(t, err)
	assert.Nil(t, data, "uncommitted row must be invisible to a concurrent reader")

	require.NoError(t, v.Commit(writer))

	data, err = v.Read(reader, uid)
	require.NoError(t, err)
	assert.Equal(t, "uncommitted", string(data), "row must become visible once its writer commits")
}

func TestRepeatableReadSnapshotIsolation(t *testing.T) {
	v := newTestVM(t)

	writer, _ := v.Begin(LevelReadCommitted)
	uid, err := v.Insert(writer, []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, v.Commit(writer))

	rr, _ := v.Begin(LevelRepeatableRead)

	other, _ := v.Begin(LevelReadCommitted)
	_, err = v.Delete(other, uid)
	require.NoError(t, err)
	require.NoError(t, v.Commit(other))

	data, err := v.Read(rr, uid)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "RR snapshot must still see the pre-delete version")
}

func TestDeleteIsIdempotentForSameTransaction(t *testing.T) {
	v := newTestVM(t)
	xid, _ := v.Begin(LevelReadCommitted)
	uid, err := v.Insert(xid, []byte("gone"))
	require.NoError(t, err)

	ok, err := v.Delete(xid, uid)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Delete(xid, uid)
	require.NoError(t, err)
	assert.False(t, ok, "second delete by the same xid must report false")
}

func TestLockTableSerializesConcurrentDeletes(t *testing.T) {
	v := newTestVM(t)
	setup, _ := v.Begin(LevelReadCommitted)
	uid, err := v.Insert(setup, []byte("contested"))
	require.NoError(t, err)
	require.NoError(t, v.Commit(setup))

	a, _ := v.Begin(LevelReadCommitted)
	b, _ := v.Begin(LevelReadCommitted)

	okA, err := v.Delete(a, uid)
	require.NoError(t, err)
	require.True(t, okA)

	done := make(chan struct{})
	go func() {
		okB, err := v.Delete(b, uid)
		assert.NoError(t, err)
		assert.True(t, okB, "b must wait for a's row lock, then set its own xmax once granted it")
		close(done)
	}()

	time.Sleep(100 * time.Millisecond) // let b park on a's row lock
	require.NoError(t, v.Commit(a))
	<-done
}

func TestLockTableDetectsDeadlock(t *testing.T) {
	v := newTestVM(t)
	setup, _ := v.Begin(LevelReadCommitted)
	uid1, err := v.Insert(setup, []byte("row1"))
	require.NoError(t, err)
	uid2, err := v.Insert(setup, []byte("row2"))
	require.NoError(t, err)
	require.NoError(t, v.Commit(setup))

	t1, _ := v.Begin(LevelReadCommitted)
	t2, _ := v.Begin(LevelReadCommitted)

	var wg sync.WaitGroup
	wg.Add(2)
	var err1, err2 error

	go func() {
		defer wg.Done()
		if _, e := v.Delete(t1, uid1); e != nil {
			err1 = e
			return
		}
		time.Sleep(100 * time.Millisecond) // let t2 grab uid2 first
		_, err1 = v.Delete(t1, uid2)
	}()
	go func() {
		defer wg.Done()
		if _, e := v.Delete(t2, uid2); e != nil {
			err2 = e
			return
		}
		time.Sleep(100 * time.Millisecond) // let t1 grab uid1 first
		_, err2 = v.Delete(t2, uid1)
	}()
	wg.Wait()

	assert.False(t, err1 == nil && err2 == nil, "expected one side of the cycle to be refused as a deadlock")
	if err1 != nil {
		v.Abort(t1)
	} else {
		v.Commit(t1)
	}
	if err2 != nil {
		v.Abort(t2)
	} else {
		v.Commit(t2)
	}
}
