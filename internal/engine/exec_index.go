package engine

import (
	"context"
	"fmt"
	"strings"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
)

// executeCreateIndex records an index. Indexes give no access path; a
// unique index is enforced through a Unique constraint of the same name.
func (e *DBEngine) executeCreateIndex(ctx context.Context, cat *catalog.Catalog, s *sql.CreateIndexStmt) (*Result, error) {
	res := &Result{Tag: "CREATE INDEX"}
	t, err := cat.LookupTable(s.Table, e.searchPath())
	if err != nil {
		return nil, err
	}
	schema, err := cat.Schema(t.Schema)
	if err != nil {
		return nil, err
	}
	for _, c := range s.Columns {
		if t.ColumnIndex(c) < 0 {
			return nil, pgerr.UndefinedColumn(c)
		}
	}

	name := s.Name
	if name == "" {
		base := t.Name + "_" + strings.Join(s.Columns, "_") + "_idx"
		name = base
		for i := 1; relationExists(schema, name); i++ {
			name = fmt.Sprintf("%s%d", base, i)
		}
	} else if relationExists(schema, name) {
		if s.IfNotExists {
			res.Notices = append(res.Notices, pgerr.Notice("NOTICE", pgerr.CodeDuplicateTable,
				"relation %q already exists, skipping", name))
			return res, nil
		}
		return nil, pgerr.DuplicateTable(name)
	}

	if s.Unique {
		con := &catalog.Constraint{Name: name, Kind: catalog.Unique, Columns: s.Columns, Index: name}
		if err := exec.New(ctx, cat, e).ValidateConstraint(t, con, nil); err != nil {
			return nil, err
		}
		if err := t.AddConstraint(con); err != nil {
			return nil, err
		}
	}
	schema.Indexes[name] = &catalog.Index{Name: name, Table: t.Name, Columns: s.Columns, Unique: s.Unique}
	e.log.Info("index created", "index", name, "table", t.QualifiedName(), "unique", s.Unique)
	return res, nil
}

// relationExists reports whether name is taken in schema by a table, an
// index or the implicit index of a key constraint.
func relationExists(schema *catalog.Schema, name string) bool {
	if _, ok := schema.Tables[name]; ok {
		return true
	}
	if _, ok := schema.Indexes[name]; ok {
		return true
	}
	for _, t := range schema.Tables {
		if con := t.Constraint(name); con != nil && (con.Kind == catalog.PrimaryKey || con.Kind == catalog.Unique) {
			return true
		}
	}
	return false
}

func (e *DBEngine) executeDropIndex(cat *catalog.Catalog, s *sql.DropIndexStmt) (*Result, error) {
	res := &Result{Tag: "DROP INDEX"}
	type target struct {
		schema *catalog.Schema
		index  *catalog.Index
	}
	var targets []target
	for _, n := range s.Names {
		schema, idx, err := e.findIndex(cat, n)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			if s.IfExists {
				res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
					"index %q does not exist, skipping", n.Name))
				continue
			}
			return nil, pgerr.New(pgerr.KindSchema, pgerr.CodeUndefinedObject, "index %q does not exist", n.Name)
		}
		targets = append(targets, target{schema, idx})
	}

	for _, tg := range targets {
		if t, ok := tg.schema.Tables[tg.index.Table]; ok && tg.index.Unique {
			t.DropConstraint(tg.index.Name)
		}
		delete(tg.schema.Indexes, tg.index.Name)
		e.log.Info("index dropped", "index", tg.index.Name)
	}
	return res, nil
}

// findIndex resolves an index name through the search path. The index of a
// key constraint cannot be dropped on its own.
func (e *DBEngine) findIndex(cat *catalog.Catalog, n sql.TableName) (*catalog.Schema, *catalog.Index, error) {
	path := e.searchPath()
	if n.Schema != "" {
		path = []string{n.Schema}
	}
	for _, sn := range path {
		schema, err := cat.Schema(sn)
		if err != nil {
			if n.Schema != "" {
				return nil, nil, err
			}
			continue
		}
		if idx, ok := schema.Indexes[n.Name]; ok {
			return schema, idx, nil
		}
		for _, t := range schema.Tables {
			if con := t.Constraint(n.Name); con != nil && (con.Kind == catalog.PrimaryKey || con.Kind == catalog.Unique) {
				return nil, nil, pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
					"cannot drop index %s because constraint %s on table %s requires it", n.Name, con.Name, t.Name).
					WithHint(fmt.Sprintf("You can drop constraint %s on table %s instead.", con.Name, t.Name))
			}
		}
	}
	return nil, nil, nil
}
