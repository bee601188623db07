package table

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/OneOfOne/xxhash"

	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/parser"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/vm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

// Table is one schema definition: a name, a link to the next table in the
// catalog chain, and its ordered field list. Like Field, its own record is
// written once under the super transaction and never mutated in place.
type Table struct {
	uid          dm.UID
	Name         string
	nextTableUID uint64
	Fields       []*Field
}

// raw format: [name][nextTableUID u64][numFields u16][fieldUID u64]*n[checksum u64].
// The trailing checksum is an xxhash64 of everything before it, guarding
// the catalog chain against a torn or bit-flipped write that the WAL's own
// checksum wouldn't catch (schema records are written once under the super
// transaction and never replayed through undo/redo).
func (tb *Table) toRaw() []byte {
	raw := putString(nil, tb.Name)
	raw = putUint64(raw, tb.nextTableUID)
	var nBuf [2]byte
	binary.BigEndian.PutUint16(nBuf[:], uint16(len(tb.Fields)))
	raw = append(raw, nBuf[:]...)
	for _, f := range tb.Fields {
		raw = putUint64(raw, uint64(f.uid))
	}
	return putUint64(raw, checksum64(raw))
}

// checksum64 hashes a catalog record body, matching the pack's
// New64/Write/Sum64 usage of xxhash rather than the package's one-shot
// helper.
func checksum64(b []byte) uint64 {
	h := xxhash.New64()
	h.Write(b)
	return h.Sum64()
}

func parseTableRaw(d *dm.DataManager, raw []byte) (*Table, error) {
	if len(raw) < 8 {
		return nil, dberr.New(dberr.CatalogCorrupted)
	}
	body, wantSum := raw[:len(raw)-8], getUint64(raw[len(raw)-8:])
	if checksum64(body) != wantSum {
		return nil, dberr.New(dberr.CatalogCorrupted)
	}
	raw = body

	name, n := getString(raw)
	raw = raw[n:]
	nextTableUID := getUint64(raw)
	raw = raw[8:]
	numFields := binary.BigEndian.Uint16(raw[0:2])
	raw = raw[2:]

	tb := &Table{Name: name, nextTableUID: nextTableUID}
	for i := uint16(0); i < numFields; i++ {
		fuid := getUint64(raw[i*8 : i*8+8])
		f, err := LoadField(d, dm.UID(fuid))
		if err != nil {
			return nil, err
		}
		tb.Fields = append(tb.Fields, f)
	}
	return tb, nil
}

// LoadTable reopens a table definition, including every field it owns.
func LoadTable(d *dm.DataManager, uid dm.UID) (*Table, error) {
	item, err := d.Read(uid)
	if err != nil {
		return nil, err
	}
	item.RLock()
	raw := append([]byte(nil), item.Data()...)
	item.RUnlock()
	item.Release()

	tb, err := parseTableRaw(d, raw)
	if err != nil {
		return nil, err
	}
	tb.uid = uid
	return tb, nil
}

// CreateTable builds a brand-new table from a parsed Create statement,
// persists its fields and its own record, and chains it in front of
// nextTableUID (the previous catalog head).
func CreateTable(d *dm.DataManager, stmt parser.Create, nextTableUID uint64) (*Table, error) {
	if len(stmt.FieldName) != len(stmt.FieldType) {
		return nil, dberr.New(dberr.InvalidValues)
	}
	indexed := make(map[string]bool, len(stmt.Index))
	for _, name := range stmt.Index {
		indexed[name] = true
	}

	tb := &Table{Name: stmt.TableName, nextTableUID: nextTableUID}
	for i, name := range stmt.FieldName {
		f, err := CreateField(d, name, stmt.FieldType[i], indexed[name])
		if err != nil {
			return nil, err
		}
		tb.Fields = append(tb.Fields, f)
	}

	uid, err := d.Insert(tm.SuperXID, tb.toRaw())
	if err != nil {
		return nil, err
	}
	tb.uid = uid
	return tb, nil
}

// UID returns this table definition's own DataItem identifier.
func (tb *Table) UID() dm.UID { return tb.uid }

// NextTableUID returns the catalog-chain link to the table defined before
// this one (0 if this is the earliest table).
func (tb *Table) NextTableUID() uint64 { return tb.nextTableUID }

func (tb *Table) field(name string) (*Field, error) {
	for _, f := range tb.Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, dberr.New(dberr.FieldNotFound)
}

func (tb *Table) primaryIndexedField() (*Field, error) {
	for _, f := range tb.Fields {
		if f.IsIndexed() {
			return f, nil
		}
	}
	return nil, dberr.New(dberr.TableNoIndex)
}

// entry2Raw encodes one row's values, in field order, into its MVCC entry
// payload.
func (tb *Table) entry2Raw(values []interface{}) []byte {
	var raw []byte
	for i, f := range tb.Fields {
		raw = append(raw, f.ValueToRaw(values[i])...)
	}
	return raw
}

// parseEntry decodes a row payload back into one typed value per field, in
// field order.
func (tb *Table) parseEntry(raw []byte) []interface{} {
	values := make([]interface{}, len(tb.Fields))
	for i, f := range tb.Fields {
		v, n := f.RawToValue(raw)
		values[i] = v
		raw = raw[n:]
	}
	return values
}

func (tb *Table) printEntry(values []interface{}) string {
	parts := make([]string, len(tb.Fields))
	for i, f := range tb.Fields {
		parts[i] = f.PrintValue(values[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Insert parses the statement's raw value tokens against this table's
// field types, writes the row through vmgr, and maintains every indexed
// field's B+ tree.
func (tb *Table) Insert(vmgr *vm.VersionManager, xid tm.XID, values []string) error {
	if len(values) != len(tb.Fields) {
		return dberr.New(dberr.InvalidValues)
	}
	parsed := make([]interface{}, len(values))
	for i, f := range tb.Fields {
		v, err := f.ParseValue(values[i])
		if err != nil {
			return err
		}
		parsed[i] = v
	}

	uid, err := vmgr.Insert(xid, tb.entry2Raw(parsed))
	if err != nil {
		return err
	}
	for i, f := range tb.Fields {
		if !f.IsIndexed() {
			continue
		}
		if err := f.IndexInsert(f.KeyOf(parsed[i]), uint64(uid)); err != nil {
			return err
		}
	}
	return nil
}

// candidateRows returns the row UIDs where's range narrows the search to,
// per spec.md §4.8.1: a WHERE may reference only one indexed field, with
// "and" intersecting its two expressions' ranges and "or" unioning them. A
// nil where scans the whole table via the primary indexed field's full
// range.
func (tb *Table) candidateRows(where *parser.Where) ([]uint64, error) {
	primary, err := tb.primaryIndexedField()
	if err != nil {
		return nil, err
	}
	if where == nil {
		return primary.IndexSearchRange(0, maxKey)
	}

	f1, err := tb.field(where.Exp1.Field)
	if err != nil {
		return nil, err
	}
	if where.LogicOp == "" {
		if !f1.IsIndexed() {
			return nil, dberr.New(dberr.TableNoIndex)
		}
		r1, err := f1.CalExpRange(where.Exp1.CompareOp, where.Exp1.Value)
		if err != nil {
			return nil, err
		}
		return f1.IndexSearchRange(r1.Lo, r1.Hi)
	}

	f2, err := tb.field(where.Exp2.Field)
	if err != nil {
		return nil, err
	}
	if f1.Name != f2.Name || !f1.IsIndexed() {
		return nil, dberr.New(dberr.TableNoIndex)
	}
	r1, err := f1.CalExpRange(where.Exp1.CompareOp, where.Exp1.Value)
	if err != nil {
		return nil, err
	}
	r2, err := f2.CalExpRange(where.Exp2.CompareOp, where.Exp2.Value)
	if err != nil {
		return nil, err
	}

	switch where.LogicOp {
	case "and":
		lo, hi := r1.Lo, r1.Hi
		if r2.Lo > lo {
			lo = r2.Lo
		}
		if r2.Hi < hi {
			hi = r2.Hi
		}
		if lo > hi {
			return nil, nil
		}
		return f1.IndexSearchRange(lo, hi)
	case "or":
		left, err := f1.IndexSearchRange(r1.Lo, r1.Hi)
		if err != nil {
			return nil, err
		}
		right, err := f1.IndexSearchRange(r2.Lo, r2.Hi)
		if err != nil {
			return nil, err
		}
		seen := make(map[uint64]bool, len(left)+len(right))
		out := make([]uint64, 0, len(left)+len(right))
		for _, u := range append(left, right...) {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
		return out, nil
	default:
		return nil, dberr.New(dberr.InvalidLogOp)
	}
}

// matches re-checks the full WHERE condition against a decoded row: the
// index range narrows candidates but, for string fields, the rolling hash
// of spec.md §4.7 is not collision-free, so every row must be verified.
func (tb *Table) matches(values []interface{}, where *parser.Where) (bool, error) {
	if where == nil {
		return true, nil
	}
	ok1, err := tb.evalSingle(values, where.Exp1)
	if err != nil {
		return false, err
	}
	if where.LogicOp == "" {
		return ok1, nil
	}
	ok2, err := tb.evalSingle(values, where.Exp2)
	if err != nil {
		return false, err
	}
	if where.LogicOp == "and" {
		return ok1 && ok2, nil
	}
	return ok1 || ok2, nil
}

func (tb *Table) evalSingle(values []interface{}, exp parser.SingleExpression) (bool, error) {
	f, err := tb.field(exp.Field)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, ff := range tb.Fields {
		if ff == f {
			idx = i
			break
		}
	}
	want, err := f.ParseValue(exp.Value)
	if err != nil {
		return false, err
	}
	wantKey := f.KeyOf(want)
	gotKey := f.KeyOf(values[idx])

	switch exp.CompareOp {
	case "<":
		return gotKey < wantKey, nil
	case "=":
		return gotKey == wantKey, nil
	case ">":
		return gotKey > wantKey, nil
	default:
		return false, dberr.New(dberr.InvalidLogOp)
	}
}

// Row is one selected/deleted/updated record: its storage UID plus decoded
// values.
type Row struct {
	UID    dm.UID
	Values []interface{}
}

// Select returns every row matching where (nil = every row).
func (tb *Table) Select(vmgr *vm.VersionManager, xid tm.XID, where *parser.Where) ([]Row, error) {
	candidates, err := tb.candidateRows(where)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, u := range candidates {
		raw, err := vmgr.Read(xid, dm.UID(u))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		values := tb.parseEntry(raw)
		ok, err := tb.matches(values, where)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, Row{UID: dm.UID(u), Values: values})
		}
	}
	return rows, nil
}

// PrintRows renders a Select result the way query output is shown to a
// client.
func (tb *Table) PrintRows(rows []Row) string {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(tb.printEntry(r.Values))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Delete removes every row matching where and reports how many rows were
// removed.
func (tb *Table) Delete(vmgr *vm.VersionManager, xid tm.XID, where *parser.Where) (int, error) {
	rows, err := tb.Select(vmgr, xid, where)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		ok, err := vmgr.Delete(xid, r.UID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Update rewrites fieldName to value on every row matching where: a
// delete-then-reinsert, since entries are immutable once written (spec.md
// §4.6's MVCC: updates version the row instead of mutating it in place).
func (tb *Table) Update(vmgr *vm.VersionManager, xid tm.XID, fieldName, value string, where *parser.Where) (int, error) {
	target, err := tb.field(fieldName)
	if err != nil {
		return 0, err
	}
	newVal, err := target.ParseValue(value)
	if err != nil {
		return 0, err
	}

	rows, err := tb.Select(vmgr, xid, where)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		ok, err := vmgr.Delete(xid, r.UID)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		for i, f := range tb.Fields {
			if f.Name == fieldName {
				r.Values[i] = newVal
			}
		}
		newUID, err := vmgr.Insert(xid, tb.entry2Raw(r.Values))
		if err != nil {
			return n, err
		}
		for i, f := range tb.Fields {
			if !f.IsIndexed() {
				continue
			}
			if err := f.IndexInsert(f.KeyOf(r.Values[i]), uint64(newUID)); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

// Describe renders the table's schema, used by `show`.
func (tb *Table) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(", tb.Name)
	for i, f := range tb.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteByte(' ')
		sb.WriteString(f.FieldType)
		if f.IsIndexed() {
			sb.WriteString(" index")
		}
	}
	sb.WriteString(")")
	return sb.String()
}
