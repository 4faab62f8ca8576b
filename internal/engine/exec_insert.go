package engine

import (
	"context"
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
)

// executeInsert handles INSERT ... VALUES and INSERT ... SELECT.
func (e *DBEngine) executeInsert(ctx context.Context, cat *catalog.Catalog, s *sql.InsertStmt) (*Result, error) {
	p, err := plan.New(cat, e.searchPath()).Insert(s)
	if err != nil {
		return nil, err
	}
	w, err := exec.New(ctx, cat, e).Insert(p)
	if err != nil {
		return nil, err
	}
	return writeResult(fmt.Sprintf("INSERT 0 %d", w.Count), w, p.Returning), nil
}

// writeResult builds the Result of INSERT, UPDATE or DELETE. With RETURNING
// the statement also produces rows.
func writeResult(tag string, w exec.WriteResult, ret *plan.Returning) *Result {
	res := &Result{Tag: tag, RowsAffected: w.Count}
	if ret != nil {
		res.Columns = columnsOf(ret.Cols)
		res.Rows = w.Returning
	}
	return res
}
