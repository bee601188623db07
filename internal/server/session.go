package server

import (
	"io"
	"net"

	"github.com/gaoyinhao/MiniDB/internal/parser"
	"github.com/gaoyinhao/MiniDB/internal/table"
	"github.com/gaoyinhao/MiniDB/internal/tm"
	"github.com/gaoyinhao/MiniDB/internal/transport"
	"github.com/gaoyinhao/MiniDB/internal/vm"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
)

// Session owns one connection's request/response loop. It binds at most
// one explicit transaction at a time: a statement outside any `begin` runs
// in its own auto-committed transaction, matching the executor's
// single-statement convenience mode.
type Session struct {
	conn net.Conn
	pkg  *transport.Packager
	tmg  *table.TableManager

	xid      tm.XID
	explicit bool
}

// NewSession wraps conn for use against tmg.
func NewSession(conn net.Conn, tmg *table.TableManager) *Session {
	return &Session{conn: conn, pkg: transport.NewPackager(conn), tmg: tmg}
}

// Run drives the request/response loop until the client disconnects,
// auto-aborting any open explicit transaction on the way out.
func (s *Session) Run() {
	defer s.pkg.Close()
	for {
		payload, _, err := s.pkg.Receive()
		if err != nil {
			if err != io.EOF {
				logger.Warnf("session: receive: %v", err)
			}
			break
		}
		resp, execErr := s.execute(payload)
		if sendErr := s.pkg.Send(resp, execErr); sendErr != nil {
			logger.Warnf("session: send: %v", sendErr)
			break
		}
	}
	if s.explicit {
		if err := s.tmg.Abort(s.xid); err != nil {
			logger.Warnf("session: auto-abort on disconnect: %v", err)
		}
	}
}

func (s *Session) execute(statBytes []byte) ([]byte, error) {
	stmt, err := parser.Parse(statBytes)
	if err != nil {
		return nil, err
	}

	switch st := stmt.(type) {
	case parser.Begin:
		return s.beginExplicit(st)
	case parser.Commit:
		return s.commitExplicit()
	case parser.Abort:
		return s.abortExplicit()
	case parser.Show:
		return []byte(s.tmg.Show()), nil
	case parser.Create:
		if err := s.tmg.CreateTable(st); err != nil {
			return nil, err
		}
		return []byte("table created\n"), nil
	default:
		return s.executeDML(stmt)
	}
}

func (s *Session) beginExplicit(st parser.Begin) ([]byte, error) {
	if s.explicit {
		return nil, dberrAlreadyInTransaction()
	}
	level := vm.LevelReadCommitted
	if st.RepeatableRead {
		level = vm.LevelRepeatableRead
	}
	xid, err := s.tmg.Begin(level)
	if err != nil {
		return nil, err
	}
	s.xid, s.explicit = xid, true
	return []byte("begin\n"), nil
}

func (s *Session) commitExplicit() ([]byte, error) {
	if !s.explicit {
		return nil, dberrNoTransaction()
	}
	err := s.tmg.Commit(s.xid)
	s.explicit = false
	if err != nil {
		return nil, err
	}
	return []byte("commit\n"), nil
}

func (s *Session) abortExplicit() ([]byte, error) {
	if !s.explicit {
		return nil, dberrNoTransaction()
	}
	err := s.tmg.Abort(s.xid)
	s.explicit = false
	if err != nil {
		return nil, err
	}
	return []byte("abort\n"), nil
}

// executeDML runs an Insert/Select/Update/Delete against the session's
// bound transaction, or, if none is open, a fresh one committed
// immediately after (auto-commit).
func (s *Session) executeDML(stmt interface{}) ([]byte, error) {
	xid := s.xid
	autoCommit := !s.explicit
	if autoCommit {
		var err error
		xid, err = s.tmg.Begin(vm.LevelReadCommitted)
		if err != nil {
			return nil, err
		}
	}

	resp, err := s.dispatchDML(xid, stmt)
	if !autoCommit {
		return resp, err
	}
	if err != nil {
		s.tmg.Abort(xid)
		return nil, err
	}
	if commitErr := s.tmg.Commit(xid); commitErr != nil {
		return nil, commitErr
	}
	return resp, nil
}

func (s *Session) dispatchDML(xid tm.XID, stmt interface{}) ([]byte, error) {
	switch st := stmt.(type) {
	case parser.Insert:
		if err := s.tmg.Insert(xid, st); err != nil {
			return nil, err
		}
		return []byte("insert\n"), nil
	case parser.Select:
		out, err := s.tmg.Select(xid, st)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	case parser.Update:
		n, err := s.tmg.Update(xid, st)
		if err != nil {
			return nil, err
		}
		return []byte(formatRowCount(n)), nil
	case parser.Delete:
		n, err := s.tmg.Delete(xid, st)
		if err != nil {
			return nil, err
		}
		return []byte(formatRowCount(n)), nil
	default:
		return nil, dberrInvalidCommand()
	}
}
