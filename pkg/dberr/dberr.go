// Package dberr implements the error-kind taxonomy of the storage engine:
// every failure path returns an *Error carrying one of the Kind values
// below, so callers can switch on kind rather than on error strings.
package dberr

import (
	"errors"
	"fmt"

	jujuerrors "github.com/juju/errors"
)

// Kind is one of the error classes the engine's components raise.
type Kind int

const (
	// File / open-time corruption, always fatal.
	FileMissing Kind = iota
	FileExists
	FileNotReadWritable
	BadXIDFile
	BadLogFile
	InvalidPageData
	InvalidMem

	// Surfaced to the caller; not fatal.
	CacheFull
	DataTooLarge
	DatabaseBusy

	// Per-transaction; transaction is auto-aborted.
	Deadlock
	ConcurrentUpdate

	// API misuse / dangling references.
	NoTransaction
	NullEntry

	// Query errors.
	InvalidCommand
	InvalidValues
	InvalidLogOp

	// DDL/DML validation.
	DuplicatedTable
	TableNotFound
	FieldNotFound
	FieldNotIndexed
	InvalidField
	TableNoIndex
	CatalogCorrupted
)

var names = map[Kind]string{
	FileMissing:         "file missing",
	FileExists:          "file already exists",
	FileNotReadWritable: "file not readable/writable",
	BadXIDFile:          "corrupt xid file",
	BadLogFile:          "corrupt log file",
	InvalidPageData:     "invalid page data",
	InvalidMem:          "invalid memory budget",
	CacheFull:           "cache full",
	DataTooLarge:        "data too large",
	DatabaseBusy:        "database busy",
	Deadlock:            "deadlock",
	ConcurrentUpdate:    "concurrent update",
	NoTransaction:       "no such transaction",
	NullEntry:           "entry not found",
	InvalidCommand:      "invalid command",
	InvalidValues:       "invalid values",
	InvalidLogOp:        "invalid log record",
	DuplicatedTable:     "duplicated table",
	TableNotFound:       "table not found",
	FieldNotFound:       "field not found",
	FieldNotIndexed:     "field not indexed",
	InvalidField:        "invalid field",
	TableNoIndex:        "table has no index",
	CatalogCorrupted:    "corrupt table catalog record",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the engine-wide error type: a Kind plus the wrapped cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

// Unwrap lets errors.Is/As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error of the given kind with no further detail.
func New(k Kind) error {
	return &Error{Kind: k, cause: jujuerrors.New(k.String())}
}

// Wrap annotates err with a Kind, tracing it with juju/errors the way the
// teacher's engine package traces underlying I/O failures.
func Wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, cause: jujuerrors.Trace(err)}
}

// Wrapf is Wrap with a formatted annotation.
func Wrapf(k Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, cause: jujuerrors.Annotatef(err, format, args...)}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsFatal reports whether k belongs to the set of open-time corruption
// kinds that spec.md §7 says must abort the process.
func IsFatal(k Kind) bool {
	switch k {
	case FileMissing, FileExists, FileNotReadWritable, BadXIDFile, BadLogFile, InvalidPageData, InvalidMem, CatalogCorrupted:
		return true
	default:
		return false
	}
}
