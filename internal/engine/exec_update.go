package engine

import (
	"context"
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
)

// executeUpdate handles UPDATE ... SET ... [WHERE ...] [RETURNING ...].
func (e *DBEngine) executeUpdate(ctx context.Context, cat *catalog.Catalog, s *sql.UpdateStmt) (*Result, error) {
	p, err := plan.New(cat, e.searchPath()).Update(s)
	if err != nil {
		return nil, err
	}
	w, err := exec.New(ctx, cat, e).Update(p)
	if err != nil {
		return nil, err
	}
	return writeResult(fmt.Sprintf("UPDATE %d", w.Count), w, p.Returning), nil
}
