package engine

import (
	"slices"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// buildConstraint checks a constraint clause against the definition of t
// and turns it into a catalog constraint. Primary key columns are marked
// NOT NULL. For CHECK constraints the bound predicate is returned too.
func (e *DBEngine) buildConstraint(cat *catalog.Catalog, t *catalog.Table, tc sql.TableConstraint) (*catalog.Constraint, plan.Expr, error) {
	con := &catalog.Constraint{Name: tc.Name, Columns: slices.Clone(tc.Columns)}

	switch tc.Kind {
	case sql.ConstraintPrimaryKey, sql.ConstraintUnique:
		con.Kind = catalog.Unique
		if tc.Kind == sql.ConstraintPrimaryKey {
			con.Kind = catalog.PrimaryKey
		}
		for _, name := range con.Columns {
			col, _, err := t.Column(name)
			if err != nil {
				return nil, nil, pgerr.New(pgerr.KindUndefinedColumn, pgerr.CodeUndefinedColumn,
					"column %q named in key does not exist", name)
			}
			if con.Kind == catalog.PrimaryKey {
				col.NotNull = true
			}
		}
		return con, nil, nil

	case sql.ConstraintForeignKey:
		con.Kind = catalog.ForeignKey
		if err := e.resolveForeignKey(cat, t, con, tc.References); err != nil {
			return nil, nil, err
		}
		return con, nil, nil
	}

	con.Kind = catalog.Check
	con.Check = tc.Check
	if len(con.Columns) == 0 {
		con.Columns = plan.ReferencedColumns(tc.Check)
	}
	bound, err := plan.New(cat, e.searchPath()).CheckExpr(t, tc.Check)
	if err != nil {
		return nil, nil, err
	}
	return con, bound, nil
}

// resolveForeignKey fills in the referenced side of con. A reference to the
// table being defined resolves to t itself.
func (e *DBEngine) resolveForeignKey(cat *catalog.Catalog, t *catalog.Table, con *catalog.Constraint, ref *sql.ForeignKeyRef) error {
	var parent *catalog.Table
	if ref.Table.Name == t.Name && (ref.Table.Schema == "" || ref.Table.Schema == t.Schema) {
		parent = t
	} else {
		var err error
		if parent, err = cat.LookupTable(ref.Table, e.searchPath()); err != nil {
			return err
		}
	}

	for _, name := range con.Columns {
		if t.ColumnIndex(name) < 0 {
			return pgerr.New(pgerr.KindUndefinedColumn, pgerr.CodeUndefinedColumn,
				"column %q referenced in foreign key constraint does not exist", name)
		}
	}
	refCols := slices.Clone(ref.Columns)
	if len(refCols) == 0 {
		pk := parent.PrimaryKey()
		if pk == nil {
			return pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidForeignKey,
				"there is no primary key for referenced table %q", parent.Name)
		}
		refCols = slices.Clone(pk.Columns)
	}
	if len(refCols) != len(con.Columns) {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidForeignKey,
			"number of referencing and referenced columns for foreign key disagree")
	}
	for i, name := range refCols {
		pcol, _, err := parent.Column(name)
		if err != nil {
			return pgerr.New(pgerr.KindUndefinedColumn, pgerr.CodeUndefinedColumn,
				"column %q referenced in foreign key constraint does not exist", name)
		}
		ccol, _, _ := t.Column(con.Columns[i])
		if _, ok := types.CommonType(ccol.Type, pcol.Type); !ok {
			name := con.Name
			if name == "" {
				name = t.Name + "_" + ccol.Name + "_fkey"
			}
			return pgerr.New(pgerr.KindType, pgerr.CodeDatatypeMismatch,
				"foreign key constraint %q cannot be implemented", name).
				WithDetail("Key columns %q and %q are of incompatible types: %s and %s.",
					ccol.Name, pcol.Name, ccol.TypeName(), pcol.TypeName())
		}
	}
	if !parent.HasUniqueKey(refCols) {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidForeignKey,
			"there is no unique constraint matching given keys for referenced table %q", parent.Name)
	}

	con.RefSchema = parent.Schema
	con.RefTable = parent.Name
	con.RefColumns = refCols
	con.OnDelete = ref.OnDelete
	return nil
}
