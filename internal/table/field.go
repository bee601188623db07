package table

import (
	"strconv"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/im"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

// Supported field types (spec.md §4.8's create-table grammar).
const (
	TypeInt32  = "int32"
	TypeInt64  = "int64"
	TypeString = "string"
)

// Field is one column definition: a name, a type, and, for indexed
// columns, the boot UID of its B+ tree. Its raw record never changes
// after creation (spec.md has no ALTER TABLE), so it is written once and
// read thereafter without a Before/After cycle.
type Field struct {
	uid          dm.UID
	Name         string
	FieldType    string
	indexRootUID uint64
	index        *im.BPlusTree
}

// raw format: [name][type][indexRootUID uint64] (0 = not indexed).
func (f *Field) toRaw() []byte {
	raw := putString(nil, f.Name)
	raw = putString(raw, f.FieldType)
	raw = putUint64(raw, f.indexRootUID)
	return raw
}

func parseFieldRaw(raw []byte) (*Field, error) {
	name, n := getString(raw)
	raw = raw[n:]
	typ, n := getString(raw)
	raw = raw[n:]
	indexRootUID := getUint64(raw)
	if !isValidType(typ) {
		return nil, dberr.New(dberr.InvalidField)
	}
	return &Field{Name: name, FieldType: typ, indexRootUID: indexRootUID}, nil
}

func isValidType(t string) bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeString
}

// CreateField persists a brand-new field under the super transaction (schema
// metadata is not MVCC-versioned, matching how the index trees it may own
// are written).
func CreateField(d *dm.DataManager, name, fieldType string, indexed bool) (*Field, error) {
	if !isValidType(fieldType) {
		return nil, dberr.New(dberr.InvalidField)
	}
	f := &Field{Name: name, FieldType: fieldType}
	if indexed {
		bootUID, err := im.Create(d)
		if err != nil {
			return nil, err
		}
		f.indexRootUID = uint64(bootUID)
		tree, err := im.Load(bootUID, d)
		if err != nil {
			return nil, err
		}
		f.index = tree
	}
	uid, err := d.Insert(tm.SuperXID, f.toRaw())
	if err != nil {
		return nil, err
	}
	f.uid = uid
	return f, nil
}

// LoadField reopens a previously created field, including its index tree
// if it has one.
func LoadField(d *dm.DataManager, uid dm.UID) (*Field, error) {
	item, err := d.Read(uid)
	if err != nil {
		return nil, err
	}
	item.RLock()
	raw := append([]byte(nil), item.Data()...)
	item.RUnlock()
	item.Release()

	f, err := parseFieldRaw(raw)
	if err != nil {
		return nil, err
	}
	f.uid = uid
	if f.indexRootUID != 0 {
		tree, err := im.Load(dm.UID(f.indexRootUID), d)
		if err != nil {
			return nil, err
		}
		f.index = tree
	}
	return f, nil
}

// UID returns the field definition's own DataItem identifier.
func (f *Field) UID() dm.UID { return f.uid }

// IsIndexed reports whether this field owns a B+ tree index.
func (f *Field) IsIndexed() bool { return f.index != nil }

// IndexInsert records key -> rowUID in this field's index.
func (f *Field) IndexInsert(key uint64, rowUID uint64) error {
	if !f.IsIndexed() {
		return dberr.New(dberr.FieldNotIndexed)
	}
	return f.index.Insert(key, rowUID)
}

// IndexSearchRange returns every row UID whose key for this field falls in
// [lo, hi].
func (f *Field) IndexSearchRange(lo, hi uint64) ([]uint64, error) {
	if !f.IsIndexed() {
		return nil, dberr.New(dberr.FieldNotIndexed)
	}
	return f.index.SearchRange(lo, hi)
}

// ParseValue converts a token from the parser into this field's typed Go
// value: int32/int64 as the matching integer type, string as-is.
func (f *Field) ParseValue(tok string) (interface{}, error) {
	switch f.FieldType {
	case TypeInt32:
		v, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidValues, err)
		}
		return int32(v), nil
	case TypeInt64:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidValues, err)
		}
		return v, nil
	case TypeString:
		return tok, nil
	default:
		return nil, dberr.New(dberr.InvalidField)
	}
}

// ValueToRaw encodes a typed Go value into its fixed-width on-disk form.
func (f *Field) ValueToRaw(v interface{}) []byte {
	switch f.FieldType {
	case TypeInt32:
		return putUint64(nil, uint64(uint32(v.(int32))))[4:8]
	case TypeInt64:
		return putUint64(nil, uint64(v.(int64)))
	default:
		return putString(nil, v.(string))
	}
}

// RawToValue decodes a ValueToRaw-encoded value, returning how many bytes
// it consumed.
func (f *Field) RawToValue(raw []byte) (v interface{}, n int) {
	switch f.FieldType {
	case TypeInt32:
		return int32(getUint32(raw)), 4
	case TypeInt64:
		return int64(getUint64(raw)), 8
	default:
		s, n := getString(raw)
		return s, n
	}
}

func getUint32(raw []byte) uint32 {
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
}

// PrintValue renders a decoded value the way query results are shown.
func (f *Field) PrintValue(v interface{}) string {
	switch f.FieldType {
	case TypeInt32:
		return strconv.FormatInt(int64(v.(int32)), 10)
	case TypeInt64:
		return strconv.FormatInt(v.(int64), 10)
	default:
		return v.(string)
	}
}

// int32SignBit/int64SignBit bias a two's-complement integer's bit pattern
// so that unsigned comparison of the biased value matches signed order:
// XORing the sign bit maps the most negative value to 0 and the most
// positive to the type's all-ones pattern, with 0 landing at the
// midpoint. Without this bias, negative values' two's-complement patterns
// read as large unsigned numbers and sort after every non-negative value.
const (
	int32SignBit = uint64(1) << 31
	int64SignBit = uint64(1) << 63
)

// KeyOf maps a typed value onto this field's B+ tree key space: signed
// integers via a sign-bit-biased cast so ordering stays monotonic across
// negative and non-negative values, strings via the rolling hash of
// spec.md §4.7.
func (f *Field) KeyOf(v interface{}) uint64 {
	switch f.FieldType {
	case TypeInt32:
		return uint64(uint32(v.(int32))) ^ int32SignBit
	case TypeInt64:
		return uint64(v.(int64)) ^ int64SignBit
	default:
		return im.StringKey(v.(string))
	}
}

// ExpRange is the [lo, hi] key range a SingleExpression narrows this field
// to, per spec.md §4.8.1: "<" -> [0, V-1], "=" -> [V, V], ">" -> [V+1, MAX].
type ExpRange struct {
	Lo, Hi uint64
}

const maxKey = ^uint64(0)

// CalExpRange computes the key range for `field <op> value`, over which the
// table layer walks this field's index.
func (f *Field) CalExpRange(op, valueTok string) (ExpRange, error) {
	val, err := f.ParseValue(valueTok)
	if err != nil {
		return ExpRange{}, err
	}
	key := f.KeyOf(val)

	switch op {
	case "<":
		// spec.md: "<" -> [0, V-1], clamped at 0 rather than made empty
		// when V is already the minimum key (matches the original's
		// Field.calExp, which only decrements res.right when it is > 0).
		if key == 0 {
			return ExpRange{Lo: 0, Hi: 0}, nil
		}
		return ExpRange{Lo: 0, Hi: key - 1}, nil
	case "=":
		return ExpRange{Lo: key, Hi: key}, nil
	case ">":
		if key == maxKey {
			return ExpRange{Lo: maxKey, Hi: maxKey}, nil
		}
		return ExpRange{Lo: key + 1, Hi: maxKey}, nil
	default:
		return ExpRange{}, dberr.New(dberr.InvalidLogOp)
	}
}
