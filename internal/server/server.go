// Package server is the connection supervisor: it accepts TCP connections,
// frames and unframes RPC records on each one, and routes decoded calls to
// internal/dispatch.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfsd3/nfsd3/internal/dispatch"
	"github.com/nfsd3/nfsd3/internal/logger"
	"github.com/nfsd3/nfsd3/internal/record"
	"github.com/nfsd3/nfsd3/internal/rpc"
)

// Config bounds the resources a single listener is willing to commit.
type Config struct {
	MaxRecordSize         uint32
	MaxConnections        int
	MaxOutstandingPerConn int
	IdleTimeout           time.Duration
}

const defaultMaxOutstandingPerConn = 64

// Server accepts connections on one TCP address and dispatches the RPC
// calls it reads from them through a Router.
type Server struct {
	addr   string
	router *dispatch.Router
	cfg    Config

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	sem      chan struct{}
	closed   atomic.Bool

	wg sync.WaitGroup
}

func New(addr string, router *dispatch.Router, cfg Config) *Server {
	s := &Server{
		addr:   addr,
		router: router,
		cfg:    cfg,
		conns:  make(map[net.Conn]struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.sem = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Serve accepts connections until ctx is canceled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	logger.Info("server: listening on %s", s.addr)

	go func() {
		<-ctx.Done()
		s.closeListener()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			logger.Warn("server: accept: %v", err)
			continue
		}

		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
			default:
				logger.Warn("server: rejecting %s: max connections reached", conn.RemoteAddr())
				conn.Close()
				continue
			}
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Addr returns the address the listener is bound to, or "" before Serve has
// accepted its first connection attempt.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	if s.sem != nil {
		<-s.sem
	}
}

// serveConn reads record-marked RPC calls from conn until it errors or
// closes, dispatching each to its own goroutine so a slow procedure never
// blocks replies to calls behind it — callers correlate replies by XID, not
// by arrival order, so out-of-order completion is fine. Writes are
// serialized onto writeMu regardless of which goroutine produced the reply.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	logger.Debug("server: connection from %s", conn.RemoteAddr())

	maxRecord := s.cfg.MaxRecordSize
	if maxRecord == 0 {
		maxRecord = record.DefaultMaxRecordSize
	}
	framer := record.NewFramer(conn, conn, maxRecord)

	outstanding := s.cfg.MaxOutstandingPerConn
	if outstanding <= 0 {
		outstanding = defaultMaxOutstandingPerConn
	}
	inflight := make(chan struct{}, outstanding)

	var writeMu sync.Mutex
	var callWG sync.WaitGroup
	defer callWG.Wait()

	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		payload, err := framer.ReadRecord()
		if err != nil {
			if err != record.ErrConnectionClosed {
				logger.Debug("server: %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		call, err := rpc.DecodeCall(payload)
		if err != nil {
			logger.Debug("server: %s: malformed call envelope: %v", conn.RemoteAddr(), err)
			return
		}

		remote := conn.RemoteAddr().String()
		inflight <- struct{}{}
		callWG.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer callWG.Done()
			defer func() { <-inflight }()

			reply := s.router.Dispatch(call, remote)

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := framer.WriteRecord(reply); err != nil {
				logger.Debug("server: %s: write reply: %v", remote, err)
			}
		}()
	}
}

// Shutdown closes the listener and waits for in-flight calls to finish, up
// to ctx's deadline, force-closing any connections still open past it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
