package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"pgmem/internal/catalog"
	"pgmem/internal/metrics"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
)

// ExecuteSQL parses query and runs its statements in order. It stops at the
// first failing statement and returns the results of those before it.
func (e *DBEngine) ExecuteSQL(ctx context.Context, query string) ([]*Result, error) {
	stmts, err := sql.ParseAll(query)
	if err != nil {
		if e.tx != nil {
			e.failed = true
		}
		metrics.ObserveStatement("PARSE", time.Now(), err)
		return nil, err
	}
	results := make([]*Result, 0, len(stmts))
	for _, stmt := range stmts {
		res, err := e.Execute(ctx, stmt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Execute takes a parsed SQL Statement and executes it using the engine.
// Outside a transaction block its effect is visible as soon as it returns;
// a failed statement changes nothing.
func (e *DBEngine) Execute(ctx context.Context, stmt sql.Statement) (*Result, error) {
	start := time.Now()
	cmd := commandTag(stmt)

	res, err := e.safeExecute(ctx, stmt)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = pgerr.Canceled(err)
	}

	metrics.ObserveStatement(cmd, start, err)
	if err != nil {
		e.log.Debug("statement failed", "command", cmd, "code", pgerr.CodeOf(err), "error", err)
		return nil, err
	}
	e.log.Debug("statement done", "command", cmd, "tag", res.Tag, "duration", time.Since(start))
	return res, nil
}

// safeExecute turns a panic while executing into an internal error. A panic
// inside a transaction block aborts the block.
func (e *DBEngine) safeExecute(ctx context.Context, stmt sql.Statement) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while executing statement", "panic", r, "stack", string(debug.Stack()))
			if e.tx != nil {
				e.failed = true
			}
			res, err = nil, pgerr.Internal("internal error: %v", r)
		}
	}()
	return e.execute(ctx, stmt)
}

func (e *DBEngine) execute(ctx context.Context, stmt sql.Statement) (*Result, error) {
	switch stmt.(type) {
	case *sql.BeginTxStmt:
		return e.beginTx(ctx)
	case *sql.CommitTxStmt:
		return e.commitTx()
	case *sql.RollbackTxStmt:
		return e.rollbackTx()
	}
	if e.failed {
		return nil, pgerr.New(pgerr.KindEval, pgerr.CodeInFailedTransaction,
			"current transaction is aborted, commands ignored until end of transaction block")
	}

	e.stmtStart = e.clock().UTC()
	if e.tx != nil {
		res, err := e.dispatch(ctx, e.tx.Catalog(), stmt)
		if err != nil {
			e.failed = true
		}
		return res, err
	}

	tx, err := e.store.Begin(ctx, false)
	if err != nil {
		return nil, pgerr.Canceled(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = e.store.Rollback(tx)
		}
	}()
	res, err := e.dispatch(ctx, tx.Catalog(), stmt)
	if err != nil {
		return nil, err
	}
	committed = true
	if err := e.store.Commit(tx); err != nil {
		return nil, pgerr.Internal("commit: %v", err)
	}
	return res, nil
}

func (e *DBEngine) dispatch(ctx context.Context, cat *catalog.Catalog, stmt sql.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return e.executeSelect(ctx, cat, s)
	case *sql.InsertStmt:
		return e.executeInsert(ctx, cat, s)
	case *sql.UpdateStmt:
		return e.executeUpdate(ctx, cat, s)
	case *sql.DeleteStmt:
		return e.executeDelete(ctx, cat, s)

	case *sql.CreateTableStmt:
		return e.executeCreateTable(cat, s)
	case *sql.DropTableStmt:
		return e.executeDropTable(cat, s)
	case *sql.TruncateStmt:
		return e.executeTruncate(cat, s)
	case *sql.CreateSchemaStmt:
		return e.executeCreateSchema(cat, s)
	case *sql.DropSchemaStmt:
		return e.executeDropSchema(cat, s)
	case *sql.AlterTableStmt:
		return e.executeAlterTable(ctx, cat, s)
	case *sql.CreateIndexStmt:
		return e.executeCreateIndex(ctx, cat, s)
	case *sql.DropIndexStmt:
		return e.executeDropIndex(cat, s)

	case *sql.SetStmt:
		return e.executeSet(s)
	case *sql.ShowStmt:
		return e.executeShow(s)
	}
	return nil, pgerr.FeatureNotSupported("unsupported statement type %T", stmt)
}

// commandTag names a statement the way PostgreSQL's command tags do.
func commandTag(stmt sql.Statement) string {
	switch stmt.(type) {
	case *sql.SelectStmt:
		return "SELECT"
	case *sql.InsertStmt:
		return "INSERT"
	case *sql.UpdateStmt:
		return "UPDATE"
	case *sql.DeleteStmt:
		return "DELETE"
	case *sql.CreateTableStmt:
		return "CREATE TABLE"
	case *sql.DropTableStmt:
		return "DROP TABLE"
	case *sql.TruncateStmt:
		return "TRUNCATE TABLE"
	case *sql.CreateSchemaStmt:
		return "CREATE SCHEMA"
	case *sql.DropSchemaStmt:
		return "DROP SCHEMA"
	case *sql.AlterTableStmt:
		return "ALTER TABLE"
	case *sql.CreateIndexStmt:
		return "CREATE INDEX"
	case *sql.DropIndexStmt:
		return "DROP INDEX"
	case *sql.BeginTxStmt:
		return "BEGIN"
	case *sql.CommitTxStmt:
		return "COMMIT"
	case *sql.RollbackTxStmt:
		return "ROLLBACK"
	case *sql.SetStmt:
		return "SET"
	case *sql.ShowStmt:
		return "SHOW"
	}
	return "UNKNOWN"
}

// atomically runs a multi-step catalog change; when fn fails the catalog is
// put back as it was.
func atomically(cat *catalog.Catalog, fn func() error) error {
	snap := cat.Clone()
	if err := fn(); err != nil {
		cat.Restore(snap)
		return err
	}
	return nil
}
