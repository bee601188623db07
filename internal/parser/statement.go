// Package parser turns the wire statement bytes of spec.md §4.8 into typed
// statement structs: a hand-rolled tokenizer plus one parse function per
// leading keyword.
package parser

// Begin is `begin [isolation level (read committed | repeatable read)]`.
type Begin struct {
	RepeatableRead bool
}

// Commit is `commit`.
type Commit struct{}

// Abort is `abort`.
type Abort struct{}

// Show is `show`.
type Show struct{}

// Create is `create table T (name type, ...) (indexKey, ...)`.
type Create struct {
	TableName string
	FieldName []string
	FieldType []string
	Index     []string
}

// Drop is `drop table T` (parsed, not currently wired into a TableManager
// operation, matching the original's drop-is-parse-only scope).
type Drop struct {
	TableName string
}

// Insert is `insert into T values v1 v2 ...`.
type Insert struct {
	TableName string
	Values    []string
}

// Select is `select field|* from T [where ...]`.
type Select struct {
	TableName string
	Fields    []string
	Where     *Where
}

// Update is `update T set f = v [where ...]`.
type Update struct {
	TableName string
	FieldName string
	Value     string
	Where     *Where
}

// Delete is `delete from T [where ...]`.
type Delete struct {
	TableName string
	Where     *Where
}

// SingleExpression is `field <op> value`, op one of "<", "=", ">".
type SingleExpression struct {
	Field     string
	CompareOp string
	Value     string
}

// Where is at most two SingleExpressions joined by "and"/"or" (no nesting),
// per spec.md §4.8.
type Where struct {
	Exp1    SingleExpression
	LogicOp string // "", "and", or "or"
	Exp2    SingleExpression
}
