package table

import (
	"math"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/tm"
)

func newTestDM(t *testing.T) *dm.DataManager {
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
	return d
}

func TestFieldRoundTripsThroughRaw(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "age", TypeInt32, true)
	require.NoError(t, err)
	loaded, err := LoadField(d, f.UID())
	require.NoError(t, err)
	assert.Equal(t, "age", loaded.Name)
	assert.Equal(t, TypeInt32, loaded.FieldType)
	assert.True(t, loaded.IsIndexed())
}

func TestCalExpRangeBoundaries(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "age", TypeInt32, true)
	require.NoError(t, err)

	lt, err := f.CalExpRange("<", "10")
	require.NoError(t, err)
	assert.Equal(t, ExpRange{Lo: 0, Hi: f.KeyOf(int32(10)) - 1}, lt)

	eq, err := f.CalExpRange("=", "10")
	require.NoError(t, err)
	assert.Equal(t, ExpRange{Lo: f.KeyOf(int32(10)), Hi: f.KeyOf(int32(10))}, eq)

	gt, err := f.CalExpRange(">", "10")
	require.NoError(t, err)
	assert.Equal(t, ExpRange{Lo: f.KeyOf(int32(10)) + 1, Hi: maxKey}, gt)
}

// TestCalExpRangeClampsAtKeySpaceMinimum exercises spec.md's "<" rule at the
// point where V-1 would underflow the field's key space: the range must
// clamp to {0, 0} rather than come back empty, matching the original's
// Field.calExp (which only decrements its upper bound when it is already
// greater than zero).
func TestCalExpRangeClampsAtKeySpaceMinimum(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "age", TypeInt32, true)
	require.NoError(t, err)

	lt, err := f.CalExpRange("<", strconv.Itoa(math.MinInt32))
	require.NoError(t, err)
	assert.Equal(t, ExpRange{Lo: 0, Hi: 0}, lt, "range must clamp at the key-space minimum, not go empty")
}

// TestKeyOfPreservesSignedOrderForInt32 and its int64 counterpart guard the
// sign-bit bias in KeyOf: without it, negative values' two's-complement bit
// patterns read as large unsigned numbers and sort after every
// non-negative value, breaking index range scans over negative data.
func TestKeyOfPreservesSignedOrderForInt32(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "v", TypeInt32, true)
	require.NoError(t, err)

	assert.Less(t, f.KeyOf(int32(math.MinInt32)), f.KeyOf(int32(-1)))
	assert.Less(t, f.KeyOf(int32(-1)), f.KeyOf(int32(0)))
	assert.Less(t, f.KeyOf(int32(0)), f.KeyOf(int32(1)))
	assert.Less(t, f.KeyOf(int32(1)), f.KeyOf(int32(math.MaxInt32)))
}

func TestKeyOfPreservesSignedOrderForInt64(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "v", TypeInt64, true)
	require.NoError(t, err)

	assert.Less(t, f.KeyOf(int64(math.MinInt64)), f.KeyOf(int64(-1)))
	assert.Less(t, f.KeyOf(int64(-1)), f.KeyOf(int64(0)))
	assert.Less(t, f.KeyOf(int64(0)), f.KeyOf(int64(1)))
	assert.Less(t, f.KeyOf(int64(1)), f.KeyOf(int64(math.MaxInt64)))
}

func TestValueRawRoundTripString(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "name", TypeString, false)
	require.NoError(t, err)
	raw := f.ValueToRaw("hello world")
	v, n := f.RawToValue(raw)
	assert.Equal(t, "hello world", v.(string))
	assert.Equal(t, len(raw), n)
}

func TestValueRawRoundTripInt64(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "count", TypeInt64, false)
	require.NoError(t, err)
	raw := f.ValueToRaw(int64(123456789))
	v, n := f.RawToValue(raw)
	assert.Equal(t, int64(123456789), v.(int64))
	assert.Equal(t, 8, n)
}

func TestValueRawRoundTripNegativeInt32(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "delta", TypeInt32, false)
	require.NoError(t, err)
	raw := f.ValueToRaw(int32(-42))
	v, n := f.RawToValue(raw)
	assert.Equal(t, int32(-42), v.(int32))
	assert.Equal(t, 4, n)
}

func TestIndexInsertRejectedOnUnindexedField(t *testing.T) {
	d := newTestDM(t)
	f, err := CreateField(d, "v", TypeInt32, false)
	require.NoError(t, err)
	err = f.IndexInsert(1, 1)
	assert.Error(t, err, "expected error indexing into unindexed field")
}
