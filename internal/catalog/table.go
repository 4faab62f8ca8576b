package catalog

import (
	"fmt"
	"slices"
	"strings"

	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Column is a column definition.
type Column struct {
	Name    string
	Type    types.DataType
	MaxLen  int // varchar(n) / char(n) limit, 0 when unlimited
	NotNull bool
	// Default is the unbound DEFAULT expression, nil when there is none.
	Default sql.Expr
	// Sequence backs serial columns; their Default is nil.
	Sequence *Sequence
}

// TypeName renders the column type the way PostgreSQL reports it.
func (c *Column) TypeName() string {
	if c.MaxLen > 0 {
		return fmt.Sprintf("character varying(%d)", c.MaxLen)
	}
	return c.Type.Name()
}

// Sequence is the counter behind a serial column.
type Sequence struct {
	Name string
	Last int64 // last value handed out, 0 before the first call
}

// Next advances the sequence.
func (s *Sequence) Next() int64 {
	s.Last++
	return s.Last
}

// ConstraintKind distinguishes table constraints.
type ConstraintKind int

const (
	PrimaryKey ConstraintKind = iota
	Unique
	ForeignKey
	Check
)

func (k ConstraintKind) String() string {
	switch k {
	case PrimaryKey:
		return "PRIMARY KEY"
	case Unique:
		return "UNIQUE"
	case ForeignKey:
		return "FOREIGN KEY"
	default:
		return "CHECK"
	}
}

// Constraint is a named table constraint. Columns are held by name and kept
// in step with renames.
type Constraint struct {
	Name    string
	Kind    ConstraintKind
	Columns []string

	// Foreign keys only.
	RefSchema  string
	RefTable   string
	RefColumns []string
	OnDelete   sql.RefAction

	// Check constraints only: the unbound predicate.
	Check sql.Expr

	// Index is set when a unique constraint was created by CREATE UNIQUE
	// INDEX; dropping the index drops the constraint.
	Index string
}

// Index is a named index. It gives no access path; a unique index is backed
// by a Unique constraint of the same name.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// Table is a relation: its definition and its rows. Rows are replaced
// wholesale by writers and never modified in place, so a slice obtained from
// Rows stays a consistent snapshot.
type Table struct {
	Schema      string
	Name        string
	Columns     []*Column
	Constraints []*Constraint
	rows        []types.Row
}

// NewTable creates an empty table.
func NewTable(schema, name string, cols []*Column) *Table {
	return &Table{Schema: schema, Name: name, Columns: cols, rows: make([]types.Row, 0)}
}

// QualifiedName returns schema.name.
func (t *Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column or a 42703 error.
func (t *Table) Column(name string) (*Column, int, error) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, -1, pgerr.UndefinedColumnOf(name, t.Name)
	}
	return t.Columns[i], i, nil
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Positions maps column names to their indexes.
func (t *Table) Positions(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx := t.ColumnIndex(n)
		if idx < 0 {
			return nil, pgerr.UndefinedColumn(n)
		}
		out[i] = idx
	}
	return out, nil
}

// Rows returns the current rows. Callers must not modify them.
func (t *Table) Rows() []types.Row {
	return t.rows
}

// RowCount returns the number of stored rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}

// ReplaceAll installs rows as the table contents after checking their shape.
// Constraint checks are the caller's job; this only guards against rows that
// do not fit the column definitions.
func (t *Table) ReplaceAll(rows []types.Row) error {
	for _, r := range rows {
		if len(r) != len(t.Columns) {
			return pgerr.Internal("column count mismatch in ReplaceAll for %s: expected %d, got %d",
				t.Name, len(t.Columns), len(r))
		}
		for i, col := range t.Columns {
			if !r[i].IsNull() && r[i].Type != col.Type {
				return pgerr.Internal("type mismatch in ReplaceAll for column %q: expected %v, got %v",
					col.Name, col.Type, r[i].Type)
			}
		}
	}
	t.rows = rows
	return nil
}

// Truncate removes all rows and, with restart, resets owned sequences.
func (t *Table) Truncate(restart bool) {
	t.rows = make([]types.Row, 0)
	if restart {
		for _, c := range t.Columns {
			if c.Sequence != nil {
				c.Sequence.Last = 0
			}
		}
	}
}

// PrimaryKey returns the primary key constraint, if any.
func (t *Table) PrimaryKey() *Constraint {
	for _, c := range t.Constraints {
		if c.Kind == PrimaryKey {
			return c
		}
	}
	return nil
}

// Constraint returns the named constraint, if any.
func (t *Table) Constraint(name string) *Constraint {
	for _, c := range t.Constraints {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HasUniqueKey reports whether cols (in any order) are exactly the columns
// of a primary key or unique constraint, as a foreign key target requires.
func (t *Table) HasUniqueKey(cols []string) bool {
	for _, c := range t.Constraints {
		if (c.Kind == PrimaryKey || c.Kind == Unique) && len(c.Columns) == len(cols) {
			match := true
			for _, col := range cols {
				if !slices.Contains(c.Columns, col) {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
	}
	return false
}

// AddConstraint attaches con, generating a PostgreSQL style name when it has
// none. Names must be unique within the table.
func (t *Table) AddConstraint(con *Constraint) error {
	if con.Kind == PrimaryKey && t.PrimaryKey() != nil {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidTableDefinition,
			"multiple primary keys for table %q are not allowed", t.Name)
	}
	if con.Name == "" {
		con.Name = t.constraintName(con)
	} else if t.Constraint(con.Name) != nil {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeDuplicateObject,
			"constraint %q for relation %q already exists", con.Name, t.Name)
	}
	t.Constraints = append(t.Constraints, con)
	return nil
}

// DropConstraint removes the named constraint.
func (t *Table) DropConstraint(name string) bool {
	n := len(t.Constraints)
	t.Constraints = slices.DeleteFunc(t.Constraints, func(c *Constraint) bool { return c.Name == name })
	return len(t.Constraints) != n
}

func (t *Table) constraintName(con *Constraint) string {
	var base string
	switch con.Kind {
	case PrimaryKey:
		base = t.Name + "_pkey"
	case Unique:
		base = t.Name + "_" + strings.Join(con.Columns, "_") + "_key"
	case ForeignKey:
		base = t.Name + "_" + strings.Join(con.Columns, "_") + "_fkey"
	default:
		if len(con.Columns) == 1 {
			base = t.Name + "_" + con.Columns[0] + "_check"
		} else {
			base = t.Name + "_check"
		}
	}
	name := base
	for i := 1; t.Constraint(name) != nil; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

// RenameColumn renames a column and every constraint reference to it,
// including those inside CHECK predicates.
func (t *Table) RenameColumn(old, name string) error {
	col, _, err := t.Column(old)
	if err != nil {
		return err
	}
	if t.ColumnIndex(name) >= 0 {
		return pgerr.DuplicateColumn(name, t.Name)
	}
	col.Name = name
	for _, c := range t.Constraints {
		renameIn(c.Columns, old, name)
		if c.Check != nil {
			c.Check = sql.RenameColumnRefs(c.Check, old, name)
		}
	}
	return nil
}

// RenameReferencedColumn updates foreign keys in t that point at a renamed
// column of schema.table.
func (t *Table) RenameReferencedColumn(schema, table, old, name string) {
	for _, c := range t.Constraints {
		if c.Kind == ForeignKey && c.RefSchema == schema && c.RefTable == table {
			renameIn(c.RefColumns, old, name)
		}
	}
}

func renameIn(names []string, old, name string) {
	for i, n := range names {
		if n == old {
			names[i] = name
		}
	}
}

// AddColumn appends a column, filling existing rows with fill.
func (t *Table) AddColumn(col *Column, fill []types.Value) error {
	if t.ColumnIndex(col.Name) >= 0 {
		return pgerr.DuplicateColumn(col.Name, t.Name)
	}
	if len(fill) != len(t.rows) {
		return pgerr.Internal("AddColumn: %d fill values for %d rows", len(fill), len(t.rows))
	}
	t.Columns = append(t.Columns, col)
	rows := make([]types.Row, len(t.rows))
	for i, r := range t.rows {
		nr := make(types.Row, len(r)+1)
		copy(nr, r)
		nr[len(r)] = fill[i]
		rows[i] = nr
	}
	t.rows = rows
	return nil
}

// DropColumn removes a column with its data and every constraint that
// mentions it.
func (t *Table) DropColumn(name string) error {
	_, idx, err := t.Column(name)
	if err != nil {
		return err
	}
	t.Columns = slices.Delete(t.Columns, idx, idx+1)
	t.Constraints = slices.DeleteFunc(t.Constraints, func(c *Constraint) bool {
		return slices.Contains(c.Columns, name) || (c.Check != nil && sql.ReferencesColumn(c.Check, name))
	})
	rows := make([]types.Row, len(t.rows))
	for i, r := range t.rows {
		nr := make(types.Row, 0, len(r)-1)
		nr = append(nr, r[:idx]...)
		nr = append(nr, r[idx+1:]...)
		rows[i] = nr
	}
	t.rows = rows
	return nil
}

// Clone returns a deep copy of the table definition. The rows slice is
// copied; rows themselves are immutable and shared.
func (t *Table) Clone() *Table {
	out := &Table{Schema: t.Schema, Name: t.Name}
	out.Columns = make([]*Column, len(t.Columns))
	for i, c := range t.Columns {
		cp := *c
		if c.Sequence != nil {
			seq := *c.Sequence
			cp.Sequence = &seq
		}
		out.Columns[i] = &cp
	}
	out.Constraints = make([]*Constraint, len(t.Constraints))
	for i, c := range t.Constraints {
		cp := *c
		cp.Columns = slices.Clone(c.Columns)
		cp.RefColumns = slices.Clone(c.RefColumns)
		out.Constraints[i] = &cp
	}
	out.rows = slices.Clone(t.rows)
	return out
}
