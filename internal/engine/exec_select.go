package engine

import (
	"context"
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
)

// executeSelect plans and runs a query.
func (e *DBEngine) executeSelect(ctx context.Context, cat *catalog.Catalog, s *sql.SelectStmt) (*Result, error) {
	node, err := plan.New(cat, e.searchPath()).Select(s)
	if err != nil {
		return nil, err
	}
	rows, err := exec.New(ctx, cat, e).Query(node)
	if err != nil {
		return nil, err
	}
	return &Result{
		Columns:      columnsOf(node.Columns()),
		Rows:         rows,
		Tag:          fmt.Sprintf("SELECT %d", len(rows)),
		RowsAffected: int64(len(rows)),
	}, nil
}

func columnsOf(cols []plan.Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{Name: c.Name, Type: c.Type}
	}
	return out
}
