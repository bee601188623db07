// Command coredb is the storage engine's entry point: `-create` bootstraps
// a fresh database file set, `-open` starts the socket server against an
// existing one, per spec.md §6.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gaoyinhao/MiniDB/internal/conf"
	"github.com/gaoyinhao/MiniDB/internal/dm"
	"github.com/gaoyinhao/MiniDB/internal/server"
	"github.com/gaoyinhao/MiniDB/internal/table"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/vm"
	"github.com/gaoyinhao/MiniDB/pkg/dberr"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

const (
	defaultMemBytes = 64 << 20
	kb              = 1 << 10
	mb              = 1 << 20
	gb              = 1 << 30
)

func main() {
	createPath := flag.String("create", "", "create a new database at PATH")
	openPath := flag.String("open", "", "open an existing database at PATH and serve it")
	memFlag := flag.String("mem", "", "buffer pool budget, e.g. 64MB (default 64MB)")
	addr := flag.String("addr", "", "listen address (default 127.0.0.1:7900, or from -config)")
	configPath := flag.String("config", "", "path to a coredb.ini configuration file")
	logLevel := flag.String("loglevel", "info", "log level: debug|info|warn|error")
	flag.Parse()

	if err := logger.Init(*logLevel, ""); err != nil {
		fmt.Fprintf(os.Stderr, "coredb: failed to init logger: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *createPath != "":
		if err := createDB(*createPath); err != nil {
			fail(err)
		}
	case *openPath != "":
		if err := openAndServe(*openPath, *memFlag, *addr, *configPath); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: coredb (-create PATH | -open PATH) [-mem N(KB|MB|GB)] [-addr host:port] [-config coredb.ini] [-loglevel level]")
		os.Exit(1)
	}
}

func fail(err error) {
	var dbErr *dberr.Error
	if asDBErr(err, &dbErr) && dberr.IsFatal(dbErr.Kind) {
		logger.Fatalf("coredb: %v", err)
	}
	logger.Errorf("coredb: %v", err)
	os.Exit(1)
}

func asDBErr(err error, target **dberr.Error) bool {
	e, ok := err.(*dberr.Error)
	if ok {
		*target = e
	}
	return ok
}

func createDB(path string) error {
	tmgr, err := tm.Create(path)
	if err != nil {
		return err
	}
	defer tmgr.Close()

	d, err := dm.Create(path, tmgr)
	if err != nil {
		return err
	}
	if err := d.CloseAfterCreate(); err != nil {
		return err
	}

	d, err = dm.Open(path, tmgr, 0)
	if err != nil {
		return err
	}
	defer d.Close()

	vmgr := vm.New(d, tmgr)
	if _, err := table.Create(path, d, vmgr); err != nil {
		return err
	}
	logger.Infof("coredb: created database at %s", path)
	return nil
}

func openAndServe(path, memFlag, addrFlag, configPath string) error {
	cfg, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	mem, err := parseMem(memFlag)
	if err != nil {
		return err
	}
	if memFlag == "" {
		mem = cfg.MemBudgetBytes
	}
	maxResidentPages := int(mem / pageSizeHint())

	tmgr, err := tm.Open(path)
	if err != nil {
		return err
	}
	defer tmgr.Close()

	d, err := dm.Open(path, tmgr, maxResidentPages)
	if err != nil {
		return err
	}
	defer d.Close()

	vmgr := vm.New(d, tmgr)
	tmg, err := table.Open(path, d, vmgr)
	if err != nil {
		return err
	}

	addr := addrFlag
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	}

	srv := server.New(tmg)
	logger.Infof("coredb: serving %s on %s", path, addr)
	return srv.ListenAndServe(addr)
}

// pageSizeHint mirrors pcache.PageSize. The buffer pool holds -mem divided
// by it, or the config's mem_budget_bytes (64MB by default) divided by it
// when -mem isn't given.
func pageSizeHint() int64 { return 8192 }

func parseMem(s string) (int64, error) {
	if s == "" {
		return defaultMemBytes, nil
	}
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return 0, dberr.New(dberr.InvalidMem)
	}
	unit := strings.ToUpper(s[len(s)-2:])
	n, err := strconv.ParseInt(s[:len(s)-2], 10, 64)
	if err != nil {
		return 0, dberr.Wrap(dberr.InvalidMem, err)
	}
	switch unit {
	case "KB":
		return n * kb, nil
	case "MB":
		return n * mb, nil
	case "GB":
		return n * gb, nil
	default:
		return 0, dberr.New(dberr.InvalidMem)
	}
}
