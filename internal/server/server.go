// Package server implements the connection-per-goroutine socket front end
// of spec.md §6: one TCP listener, one Session per accepted connection,
// each Session binding its connection to at most one live transaction.
package server

import (
	"net"

	"github.com/gaoyinhao/MiniDB/internal/table"
	"github.com/gaoyinhao/MiniDB/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Server accepts connections on one address and spawns a Session per
// connection, all sharing one TableManager.
type Server struct {
	tmg *table.TableManager
	ln  net.Listener
}

// New builds a Server over tmg. Call ListenAndServe to start accepting.
func New(tmg *table.TableManager) *Server { return &Server{tmg: tmg} }

// ListenAndServe binds addr and serves connections until the listener is
// closed or the process exits; it returns when the listener stops.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Infof("server: listening on %s", addr)
	return s.serveOn(ln)
}

// serveOn runs the accept loop against an already-bound listener, letting
// tests bind an ephemeral port themselves.
func (s *Server) serveOn(ln net.Listener) error {
	s.ln = ln
	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			g.Wait()
			return err
		}
		g.Go(func() error {
			NewSession(conn, s.tmg).Run()
			return nil
		})
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
