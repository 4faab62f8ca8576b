// Package engine is the statement dispatcher: it runs parsed statements for
// one session, routing queries and writes through the planner and executor
// and applying DDL to the catalog directly.
package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pgmem/internal/storage"
	"pgmem/internal/types"
)

// Column describes one column of a result set.
type Column struct {
	Name string
	Type types.DataType
}

// Result is the outcome of one statement.
type Result struct {
	// Columns is non-nil for statements that return rows, even when there
	// are none.
	Columns      []Column
	Rows         []types.Row
	Tag          string
	RowsAffected int64
	// Notices are the NOTICE and WARNING messages the statement raised.
	Notices []*pgconn.Notice
}

// ReturnsRows reports whether the statement produced a result set.
func (r *Result) ReturnsRows() bool {
	return r.Columns != nil
}

// Transaction status as reported in ReadyForQuery.
const (
	TxIdle   byte = 'I'
	TxActive byte = 'T'
	TxFailed byte = 'E'
)

// DBEngine is one database session. It is not safe for concurrent use;
// sessions sharing a storage engine are serialised by it.
type DBEngine struct {
	store    storage.Engine
	log      *slog.Logger
	clock    func() time.Time
	settings *settings

	// open transaction block, nil outside one
	tx     storage.Tx
	failed bool
	saved  *settings // parameters at BEGIN

	// timestamps reported by now() and friends
	txStart   time.Time
	stmtStart time.Time
}

// Option configures a DBEngine.
type Option func(*DBEngine)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *DBEngine) { e.log = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *DBEngine) { e.clock = now }
}

// WithSetting overrides the default of a run-time parameter, e.g.
// server_version.
func WithSetting(name, value string) Option {
	return func(e *DBEngine) { e.settings.setDefault(name, value) }
}

// New creates a session over store.
func New(store storage.Engine, opts ...Option) *DBEngine {
	e := &DBEngine{
		store:    store,
		log:      slog.Default(),
		clock:    time.Now,
		settings: newSettings(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now implements functions.Context: the start of the current transaction
// block, or of the current statement outside one.
func (e *DBEngine) Now() time.Time {
	if e.tx != nil {
		return e.txStart
	}
	return e.stmtStart
}

// Setting implements functions.Context. search_path comes back resolved,
// comma separated.
func (e *DBEngine) Setting(name string) string {
	if strings.EqualFold(name, "search_path") {
		return strings.Join(e.searchPath(), ",")
	}
	v, _ := e.settings.get(name)
	return v
}

// ParameterStatus lists the parameters a server reports at startup.
func (e *DBEngine) ParameterStatus() map[string]string {
	return e.settings.reported()
}

// TxStatus returns TxIdle, TxActive or TxFailed.
func (e *DBEngine) TxStatus() byte {
	switch {
	case e.tx == nil:
		return TxIdle
	case e.failed:
		return TxFailed
	default:
		return TxActive
	}
}

// Close rolls back an open transaction block.
func (e *DBEngine) Close() error {
	if e.tx == nil {
		return nil
	}
	_, err := e.rollbackTx()
	return err
}

func (e *DBEngine) searchPath() []string {
	return e.settings.searchPath()
}
