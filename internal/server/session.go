package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgproto3"

	"pgmem/internal/engine"
	"pgmem/internal/pgerr"
	"pgmem/internal/storage"
)

// errCancelConn ends a connection that only carried a CancelRequest.
var errCancelConn = errors.New("cancel request")

// session is one client connection.
type session struct {
	srv    *Server
	conn   net.Conn
	be     *pgproto3.Backend
	eng    *engine.DBEngine
	log    *slog.Logger
	id     uuid.UUID
	pid    uint32
	secret uint32

	reported map[string]string // ParameterStatus values last sent

	mu     sync.Mutex
	cancel context.CancelFunc // of the running statement
}

func newSession(srv *Server, conn net.Conn, store storage.Engine, pid uint32) *session {
	id := uuid.New()
	sess := &session{
		srv:    srv,
		conn:   conn,
		be:     pgproto3.NewBackend(conn, conn),
		id:     id,
		pid:    pid,
		secret: binary.BigEndian.Uint32(id[:4]),
		log:    srv.log.With("session", id.String(), "pid", pid),
	}
	sess.eng = engine.New(store, srv.engineOptions(sess)...)
	return sess
}

// run drives the connection from startup to Terminate.
func (s *session) run(ctx context.Context) error {
	defer func() {
		if err := s.eng.Close(); err != nil {
			s.log.Warn("rollback on close failed", "error", err)
		}
	}()

	if err := s.startup(); err != nil {
		if errors.Is(err, errCancelConn) {
			return nil
		}
		return err
	}

	for {
		msg, err := s.be.Receive()
		if err != nil {
			if isDisconnect(err) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			s.simpleQuery(ctx, m.String)
		case *pgproto3.Terminate:
			return nil
		case *pgproto3.Sync:
			s.readyForQuery()
		case *pgproto3.Flush:
		case *pgproto3.Parse, *pgproto3.Bind, *pgproto3.Describe, *pgproto3.Execute, *pgproto3.Close:
			s.sendError(pgerr.FeatureNotSupported("extended query protocol is not supported"))
			if err := s.skipToSync(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			s.readyForQuery()
		default:
			e := pgerr.New(pgerr.KindInternal, pgerr.CodeProtocolViolation, "unsupported frontend message %T", msg)
			e.PG.Severity, e.PG.SeverityUnlocalized = "FATAL", "FATAL"
			s.sendError(e)
			return fmt.Errorf("unsupported message %T", msg)
		}

		if err := s.be.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
}

// startup declines SSL and GSS encryption, accepts any user without a
// password and reports the session parameters.
func (s *session) startup() error {
	for {
		msg, err := s.be.ReceiveStartupMessage()
		if err != nil {
			return fmt.Errorf("receive startup message: %w", err)
		}

		switch m := msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := s.conn.Write([]byte{'N'}); err != nil {
				return fmt.Errorf("decline encryption: %w", err)
			}
		case *pgproto3.CancelRequest:
			s.srv.cancelRequest(m.ProcessID, m.SecretKey)
			return errCancelConn
		case *pgproto3.StartupMessage:
			return s.accept(m)
		default:
			return fmt.Errorf("unknown startup message %T", msg)
		}
	}
}

func (s *session) accept(m *pgproto3.StartupMessage) error {
	for name, value := range m.Parameters {
		switch name {
		case "user", "database", "replication", "options":
			continue
		}
		if err := s.eng.SetParameter(name, value); err != nil {
			s.log.Debug("ignoring startup parameter", "name", name, "error", err)
		}
	}
	s.log = s.log.With("user", m.Parameters["user"], "database", m.Parameters["database"])

	s.be.Send(&pgproto3.AuthenticationOk{})
	s.reported = s.eng.ParameterStatus()
	for name, value := range s.reported {
		s.be.Send(&pgproto3.ParameterStatus{Name: name, Value: value})
	}
	s.be.Send(&pgproto3.BackendKeyData{ProcessID: s.pid, SecretKey: s.secret})
	s.readyForQuery()
	if err := s.be.Flush(); err != nil {
		return fmt.Errorf("send startup response: %w", err)
	}
	return nil
}

// simpleQuery runs every statement of query and streams their results.
func (s *session) simpleQuery(ctx context.Context, query string) {
	defer s.readyForQuery()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while executing query", "panic", r, "stack", string(debug.Stack()))
			s.sendError(pgerr.Internal("internal error: %v", r))
		}
	}()

	ctx, cancel := s.statementContext(ctx)
	defer cancel()

	results, err := s.eng.ExecuteSQL(ctx, query)
	if err == nil && len(results) == 0 {
		s.be.Send(&pgproto3.EmptyQueryResponse{})
		return
	}
	for _, res := range results {
		s.sendResult(res)
	}
	if err != nil {
		s.sendError(err)
	}
	s.sendParameterChanges()
}

// statementContext derives the context of one query: cancellable by a
// CancelRequest and bounded by statement_timeout.
func (s *session) statementContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if d := parseTimeout(s.eng.Setting("statement_timeout")); d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		inner := cancel
		cancel = func() { stop(); inner() }
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}
}

func (s *session) cancelStatement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Info("statement canceled by request")
		s.cancel()
	}
}

// parseTimeout reads statement_timeout: a bare number is milliseconds.
func parseTimeout(v string) time.Duration {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func (s *session) sendResult(res *engine.Result) {
	for _, n := range res.Notices {
		s.be.Send(noticeResponse(n))
	}
	if res.ReturnsRows() {
		s.be.Send(rowDescription(res.Columns))
		for _, row := range res.Rows {
			s.be.Send(dataRow(row))
		}
	}
	s.be.Send(&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)})
}

func (s *session) sendError(err error) {
	s.be.Send(errorResponse(pgerr.ToPgError(err)))
}

// sendParameterChanges reports reported parameters changed by SET.
func (s *session) sendParameterChanges() {
	current := s.eng.ParameterStatus()
	if maps.Equal(current, s.reported) {
		return
	}
	for name, value := range current {
		if old, ok := s.reported[name]; !ok || old != value {
			s.be.Send(&pgproto3.ParameterStatus{Name: name, Value: value})
		}
	}
	s.reported = current
}

func (s *session) readyForQuery() {
	s.be.Send(&pgproto3.ReadyForQuery{TxStatus: s.eng.TxStatus()})
}

// skipToSync discards extended-protocol messages up to the next Sync.
func (s *session) skipToSync() error {
	for {
		msg, err := s.be.Receive()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		switch msg.(type) {
		case *pgproto3.Sync:
			return nil
		case *pgproto3.Terminate:
			return io.EOF
		}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
