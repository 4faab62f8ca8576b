package engine

import (
	"slices"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
)

// executeDropTable drops every named table. Missing tables fail the whole
// statement unless IF EXISTS is given.
func (e *DBEngine) executeDropTable(cat *catalog.Catalog, s *sql.DropTableStmt) (*Result, error) {
	res := &Result{Tag: "DROP TABLE"}
	var ts []*catalog.Table
	for _, name := range s.Tables {
		t, err := cat.LookupTable(name, e.searchPath())
		if err != nil {
			if s.IfExists && isMissing(err) {
				res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
					"table %q does not exist, skipping", name.Name))
				continue
			}
			return nil, err
		}
		if !slices.Contains(ts, t) {
			ts = append(ts, t)
		}
	}

	if s.Cascade {
		for _, t := range ts {
			for _, ref := range cat.ReferencesTo(t) {
				if !slices.Contains(ts, ref.Table) {
					res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
						"drop cascades to constraint %s on table %s", ref.Constraint.Name, ref.Table.Name))
				}
			}
		}
	}
	if err := cat.DropTables(ts, s.Cascade); err != nil {
		return nil, err
	}
	for _, t := range ts {
		e.log.Info("table dropped", "table", t.QualifiedName())
	}
	return res, nil
}

// executeTruncate empties the named tables. Tables referencing them by
// foreign key must be truncated too: listed, or pulled in by CASCADE.
func (e *DBEngine) executeTruncate(cat *catalog.Catalog, s *sql.TruncateStmt) (*Result, error) {
	res := &Result{Tag: "TRUNCATE TABLE"}
	var ts []*catalog.Table
	for _, name := range s.Tables {
		t, err := cat.LookupTable(name, e.searchPath())
		if err != nil {
			return nil, err
		}
		if !slices.Contains(ts, t) {
			ts = append(ts, t)
		}
	}

	for i := 0; i < len(ts); i++ {
		for _, ref := range cat.ReferencesTo(ts[i]) {
			if slices.Contains(ts, ref.Table) {
				continue
			}
			if !s.Cascade {
				return nil, pgerr.FeatureNotSupported("cannot truncate a table referenced in a foreign key constraint").
					WithDetail("Table %q references %q.", ref.Table.Name, ts[i].Name).
					WithHint("Truncate table \"" + ref.Table.Name + "\" at the same time, or use TRUNCATE ... CASCADE.")
			}
			res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
				"truncate cascades to table %q", ref.Table.Name))
			ts = append(ts, ref.Table)
		}
	}

	for _, t := range ts {
		t.Truncate(s.RestartIdentity)
	}
	return res, nil
}

func isMissing(err error) bool {
	return pgerr.HasCode(err, pgerr.CodeUndefinedTable) || pgerr.HasCode(err, pgerr.CodeInvalidSchemaName)
}
