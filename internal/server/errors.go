package server

import (
	"strconv"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

func dberrAlreadyInTransaction() error { return dberr.New(dberr.InvalidCommand) }
func dberrNoTransaction() error        { return dberr.New(dberr.NoTransaction) }
func dberrInvalidCommand() error       { return dberr.New(dberr.InvalidCommand) }

func formatRowCount(n int) string { return strconv.Itoa(n) + " row(s) affected\n" }
