package engine

import (
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// executeCreateTable creates a table with its constraints. The table only
// becomes visible once every column and constraint is valid.
func (e *DBEngine) executeCreateTable(cat *catalog.Catalog, s *sql.CreateTableStmt) (*Result, error) {
	schema, err := cat.ResolveSchema(s.Table.Schema, e.searchPath())
	if err != nil {
		return nil, err
	}
	res := &Result{Tag: "CREATE TABLE"}
	if _, exists := schema.Tables[s.Table.Name]; exists {
		if s.IfNotExists {
			res.Notices = append(res.Notices, pgerr.Notice("NOTICE", pgerr.CodeDuplicateTable,
				"relation %q already exists, skipping", s.Table.Name))
			return res, nil
		}
		return nil, pgerr.DuplicateTable(s.Table.Name)
	}

	t := catalog.NewTable(schema.Name, s.Table.Name, nil)
	for _, def := range s.Columns {
		if t.ColumnIndex(def.Name) >= 0 {
			return nil, pgerr.New(pgerr.KindSchema, pgerr.CodeDuplicateColumn,
				"column %q specified more than once", def.Name)
		}
		col, err := columnFromDef(t, def)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, col)
	}

	p := plan.New(cat, e.searchPath())
	for i, def := range s.Columns {
		if def.Default != nil {
			if _, err := p.Default(t.Columns[i], def.Default); err != nil {
				return nil, err
			}
		}
	}

	// Keys first, so foreign keys (self-references included) can find the
	// unique constraint they point at.
	clauses := append(columnConstraints(s.Columns), s.Constraints...)
	for _, pass := range [][]sql.ConstraintKind{
		{sql.ConstraintPrimaryKey, sql.ConstraintUnique},
		{sql.ConstraintForeignKey, sql.ConstraintCheck},
	} {
		for _, tc := range clauses {
			if tc.Kind != pass[0] && tc.Kind != pass[1] {
				continue
			}
			con, _, err := e.buildConstraint(cat, t, tc)
			if err != nil {
				return nil, err
			}
			if err := t.AddConstraint(con); err != nil {
				return nil, err
			}
		}
	}

	if err := cat.AddTable(t); err != nil {
		return nil, err
	}
	e.log.Info("table created", "table", t.QualifiedName(), "columns", len(t.Columns))
	return res, nil
}

// columnFromDef builds a column from its definition. Serial types become
// NOT NULL integer columns backed by a sequence.
func columnFromDef(t *catalog.Table, def sql.ColumnDef) (*catalog.Column, error) {
	col := &catalog.Column{
		Name:    def.Name,
		NotNull: def.NotNull || def.PrimaryKey,
		Default: def.Default,
	}
	if types.IsSerial(def.Type.Name) {
		if def.Default != nil {
			return nil, pgerr.Syntax("multiple default values specified for column %q of table %q", def.Name, t.Name)
		}
		col.Type, _ = types.LookupType(def.Type.Name)
		col.NotNull = true
		col.Sequence = &catalog.Sequence{Name: fmt.Sprintf("%s_%s_seq", t.Name, def.Name)}
		return col, nil
	}
	var err error
	if col.Type, col.MaxLen, err = plan.ResolveType(def.Type); err != nil {
		return nil, err
	}
	return col, nil
}

// columnConstraints turns the inline constraints of column definitions into
// table constraint clauses.
func columnConstraints(defs []sql.ColumnDef) []sql.TableConstraint {
	var out []sql.TableConstraint
	for _, def := range defs {
		cols := []string{def.Name}
		if def.PrimaryKey {
			out = append(out, sql.TableConstraint{Kind: sql.ConstraintPrimaryKey, Columns: cols})
		}
		if def.Unique {
			out = append(out, sql.TableConstraint{Kind: sql.ConstraintUnique, Columns: cols})
		}
		if def.References != nil {
			out = append(out, sql.TableConstraint{Kind: sql.ConstraintForeignKey, Columns: cols, References: def.References})
		}
		if def.Check != nil {
			out = append(out, sql.TableConstraint{Name: def.CheckName, Kind: sql.ConstraintCheck, Columns: cols, Check: def.Check})
		}
	}
	return out
}
