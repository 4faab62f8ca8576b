package engine

import (
	"context"
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
)

// executeDelete handles DELETE FROM ... [WHERE ...] [RETURNING ...].
func (e *DBEngine) executeDelete(ctx context.Context, cat *catalog.Catalog, s *sql.DeleteStmt) (*Result, error) {
	p, err := plan.New(cat, e.searchPath()).Delete(s)
	if err != nil {
		return nil, err
	}
	w, err := exec.New(ctx, cat, e).Delete(p)
	if err != nil {
		return nil, err
	}
	return writeResult(fmt.Sprintf("DELETE %d", w.Count), w, p.Returning), nil
}
