package engine

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"pgmem/internal/metrics"
	"pgmem/internal/pgerr"
)

func (e *DBEngine) beginTx(ctx context.Context) (*Result, error) {
	res := &Result{Tag: "BEGIN"}
	if e.tx != nil {
		e.log.Warn("BEGIN inside a transaction block")
		res.Notices = append(res.Notices, pgerr.Notice("WARNING", pgerr.CodeActiveTransaction,
			"there is already a transaction in progress"))
		return res, nil
	}

	tx, err := e.store.Begin(ctx, true)
	if err != nil {
		return nil, pgerr.Canceled(err)
	}

	e.tx = tx
	e.failed = false
	e.txStart = e.clock().UTC()
	e.saved = e.settings.clone()
	return res, nil
}

// commitTx ends the block. A block that failed is rolled back instead and
// reports ROLLBACK, as PostgreSQL does.
func (e *DBEngine) commitTx() (*Result, error) {
	if e.tx == nil {
		e.log.Warn("COMMIT outside a transaction block")
		return &Result{Tag: "COMMIT", Notices: []*pgconn.Notice{noTransaction()}}, nil
	}
	if e.failed {
		return e.rollbackTx()
	}

	if err := e.store.Commit(e.tx); err != nil {
		return nil, pgerr.Internal("commit tx: %v", err)
	}
	metrics.ObserveTransaction("commit")
	e.endTx()
	return &Result{Tag: "COMMIT"}, nil
}

func (e *DBEngine) rollbackTx() (*Result, error) {
	if e.tx == nil {
		e.log.Warn("ROLLBACK outside a transaction block")
		return &Result{Tag: "ROLLBACK", Notices: []*pgconn.Notice{noTransaction()}}, nil
	}

	if err := e.store.Rollback(e.tx); err != nil {
		return nil, pgerr.Internal("rollback tx: %v", err)
	}
	metrics.ObserveTransaction("rollback")
	e.settings = e.saved
	e.endTx()
	return &Result{Tag: "ROLLBACK"}, nil
}

func (e *DBEngine) endTx() {
	e.tx = nil
	e.failed = false
	e.saved = nil
}

func noTransaction() *pgconn.Notice {
	return pgerr.Notice("WARNING", pgerr.CodeNoActiveTransaction, "there is no transaction in progress")
}
