// Package server speaks the PostgreSQL v3 wire protocol in front of the
// engine. Only the simple query flow is implemented.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/panjf2000/ants/v2"

	"pgmem/internal/engine"
	"pgmem/internal/metrics"
	"pgmem/internal/pgerr"
	"pgmem/internal/storage"
	"pgmem/internal/storage/memstore"
)

// Options configures a Server.
type Options struct {
	MaxConnections int
	// SharedCatalog gives every connection the same database; otherwise
	// each one starts empty and its data dies with it.
	SharedCatalog bool
	ServerVersion string
	Logger        *slog.Logger
}

// Server accepts client connections and runs one engine session per
// connection.
type Server struct {
	opts   Options
	log    *slog.Logger
	shared storage.Engine
	pool   *ants.Pool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	nextPID atomic.Uint32

	mu       sync.Mutex
	closing  bool
	sessions map[uint32]*session
}

// New creates a server. It does not listen until Serve is called.
func New(opts Options) (*Server, error) {
	if opts.MaxConnections <= 0 {
		return nil, fmt.Errorf("server: max connections must be positive, got %d", opts.MaxConnections)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[uint32]*session),
	}
	if opts.SharedCatalog {
		s.shared = memstore.New(nil)
	}

	pool, err := ants.NewPool(opts.MaxConnections,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			s.log.Error("connection handler panic", "panic", v)
		}))
	if err != nil {
		return nil, fmt.Errorf("server: create pool: %w", err)
	}
	s.pool = pool
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It closes ln before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.log.Info("server listening", "addr", ln.Addr().String(), "shared_catalog", s.opts.SharedCatalog)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.dispatch(conn)
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Shutdown cancels running statements, closes every connection and waits
// for the handlers to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("server shutdown: %w", ctx.Err())
	}

	timeout := 3 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// dispatch hands conn to the pool, or turns it away when the pool is full.
func (s *Server) dispatch(conn net.Conn) {
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		s.handleConnection(conn)
	})
	if err == nil {
		return
	}
	if errors.Is(err, ants.ErrPoolOverload) {
		metrics.ConnectionRejected()
		s.log.Warn("connection rejected", "remote", conn.RemoteAddr().String(), "max_connections", s.opts.MaxConnections)
	} else {
		s.log.Error("failed to submit connection handler", "error", err)
	}
	go func() {
		defer s.wg.Done()
		s.reject(conn)
	}()
}

// reject reads the client's startup packet and answers with 53300.
func (s *Server) reject(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	be := pgproto3.NewBackend(conn, conn)
	for {
		msg, err := be.ReceiveStartupMessage()
		if err != nil {
			return
		}
		switch msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return
			}
			continue
		case *pgproto3.StartupMessage:
			e := pgerr.New(pgerr.KindInternal, pgerr.CodeTooManyConnections, "sorry, too many clients already")
			e.PG.Severity, e.PG.SeverityUnlocalized = "FATAL", "FATAL"
			be.Send(errorResponse(e.PG))
			_ = be.Flush()
		}
		return
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	defer conn.Close()

	store := s.shared
	if store == nil {
		store = memstore.New(nil)
	}
	sess := newSession(s, conn, store, s.nextPID.Add(1))
	if !s.register(sess) {
		return
	}
	defer s.unregister(sess)

	sess.log.Info("connection opened", "remote", conn.RemoteAddr().String())
	err := sess.run(s.baseCtx)
	if err != nil && !s.isClosing() {
		sess.log.Info("connection closed", "error", err)
		return
	}
	sess.log.Info("connection closed")
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.pid] = sess
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.pid)
	s.mu.Unlock()
}

// cancelRequest cancels the statement running in the session identified by
// pid, if the secret matches.
func (s *Server) cancelRequest(pid, secret uint32) {
	s.mu.Lock()
	sess, ok := s.sessions[pid]
	s.mu.Unlock()
	if !ok || sess.secret != secret {
		s.log.Debug("ignoring cancel request", "pid", pid)
		return
	}
	sess.cancelStatement()
}

func (s *Server) engineOptions(sess *session) []engine.Option {
	opts := []engine.Option{engine.WithLogger(sess.log)}
	if s.opts.ServerVersion != "" {
		opts = append(opts, engine.WithSetting("server_version", s.opts.ServerVersion))
	}
	return opts
}
