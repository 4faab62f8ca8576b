package exec

import (
	"strings"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/types"
)

// ValidateConstraint checks the stored rows of t against con before ALTER
// TABLE attaches it. check is the bound predicate of a CHECK constraint.
func (ex *Executor) ValidateConstraint(t *catalog.Table, con *catalog.Constraint, check plan.Expr) error {
	rows := t.Rows()
	switch con.Kind {
	case catalog.PrimaryKey, catalog.Unique:
		pos, err := t.Positions(con.Columns)
		if err != nil {
			return err
		}
		if con.Kind == catalog.PrimaryKey {
			for _, name := range con.Columns {
				if err := ex.ValidateNotNull(t, name); err != nil {
					return err
				}
			}
		}
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			vals, ok := project(row, pos)
			if !ok {
				continue
			}
			k := types.RowKey(vals)
			if _, dup := seen[k]; dup {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeUniqueViolation,
					"could not create unique index %q", con.Name).
					WithDetail("Key (%s)=(%s) is duplicated.", strings.Join(con.Columns, ", "), formatKey(vals)).
					WithTable(t.Schema, t.Name, con.Name)
			}
			seen[k] = struct{}{}
		}

	case catalog.ForeignKey:
		parent, ok := ex.cat.Table(con.RefSchema, con.RefTable)
		if !ok {
			return pgerr.UndefinedTable(con.RefTable)
		}
		w := ex.newWriteSet()
		vals, missing, err := w.orphan(t, con, parent)
		if err != nil {
			return err
		}
		if missing {
			return pgerr.New(pgerr.KindConstraint, pgerr.CodeForeignKeyViolation,
				"insert or update on table %q violates foreign key constraint %q", t.Name, con.Name).
				WithDetail("Key (%s)=(%s) is not present in table %q.",
					strings.Join(con.Columns, ", "), formatKey(vals), parent.Name).
				WithTable(t.Schema, t.Name, con.Name)
		}

	case catalog.Check:
		for _, row := range rows {
			v, err := ex.Eval(check, &Env{Row: row})
			if err != nil {
				return err
			}
			if types.Truth(v) == types.False {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeCheckViolation,
					"check constraint %q of relation %q is violated by some row", con.Name, t.Name).
					WithTable(t.Schema, t.Name, con.Name)
			}
		}
	}
	return nil
}

// ValidateNotNull fails when a stored row of t has NULL in the column.
func (ex *Executor) ValidateNotNull(t *catalog.Table, column string) error {
	_, idx, err := t.Column(column)
	if err != nil {
		return err
	}
	for _, row := range t.Rows() {
		if row[idx].IsNull() {
			return pgerr.New(pgerr.KindConstraint, pgerr.CodeNotNullViolation,
				"column %q of relation %q contains null values", column, t.Name).
				WithTable(t.Schema, t.Name, "")
		}
	}
	return nil
}
