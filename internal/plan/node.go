package plan

import (
	"pgmem/internal/catalog"
	"pgmem/internal/functions"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Column describes one column of a node's output rows.
type Column struct {
	Name string
	Type types.DataType
}

// Node is a relational operator. Plans are immutable once built.
type Node interface {
	Columns() []Column
}

// Scan reads every row of a table.
type Scan struct {
	Table *catalog.Table
	Cols  []Column
}

// Values produces literal rows. A SELECT without FROM is a Values node with
// one empty row.
type Values struct {
	Rows [][]Expr
	Cols []Column
}

// Join is a nested-loop join; its rows are the left columns followed by the
// right columns. On is nil for cross joins.
type Join struct {
	Kind  sql.JoinType
	Left  Node
	Right Node
	On    Expr
	Cols  []Column
}

// Filter passes rows for which Pred is true.
type Filter struct {
	Input Node
	Pred  Expr
}

// AggCall is one aggregate computed by an Aggregate node. Args is empty for
// count(*).
type AggCall struct {
	Agg      *functions.Aggregate
	Args     []Expr
	Distinct bool
}

// Aggregate groups its input by Groups and emits one row per group holding
// the group values followed by the aggregate results. Without groups it
// emits exactly one row, even for empty input.
type Aggregate struct {
	Input  Node
	Groups []Expr
	Aggs   []AggCall
	Cols   []Column
}

// Project computes the select list. Entries past the visible width are
// hidden sort keys that a Trim above removes.
type Project struct {
	Input Node
	Exprs []Expr
	Cols  []Column
}

// Distinct removes duplicate rows, NULLs comparing equal.
type Distinct struct {
	Input Node
}

// SortKey orders by one column of the input.
type SortKey struct {
	Index      int
	Desc       bool
	NullsFirst bool
}

// Sort orders its input; the sort is stable.
type Sort struct {
	Input Node
	Keys  []SortKey
}

// Limit applies OFFSET then LIMIT. Both expressions are row independent;
// nil means absent and a NULL value means no limit.
type Limit struct {
	Input  Node
	Count  Expr
	Offset Expr
}

// Trim drops the hidden columns past Width.
type Trim struct {
	Input Node
	Width int
}

func (n *Scan) Columns() []Column      { return n.Cols }
func (n *Values) Columns() []Column    { return n.Cols }
func (n *Join) Columns() []Column      { return n.Cols }
func (n *Filter) Columns() []Column    { return n.Input.Columns() }
func (n *Aggregate) Columns() []Column { return n.Cols }
func (n *Project) Columns() []Column   { return n.Cols }
func (n *Distinct) Columns() []Column  { return n.Input.Columns() }
func (n *Sort) Columns() []Column      { return n.Input.Columns() }
func (n *Limit) Columns() []Column     { return n.Input.Columns() }
func (n *Trim) Columns() []Column      { return n.Input.Columns()[:n.Width] }

// Check is a bound CHECK constraint of a write target.
type Check struct {
	Constraint *catalog.Constraint
	Expr       Expr
}

// Returning is a bound RETURNING list evaluated over the written rows.
type Returning struct {
	Exprs []Expr
	Cols  []Column
}

// Insert adds rows to Table. Exactly one of Rows and Query is set. Rows
// entries are already coerced to their column types; a nil entry is
// DEFAULT. Query results are cast to the column types by the executor.
type Insert struct {
	Table     *catalog.Table
	Targets   []int // table positions the source columns fill
	Rows      [][]Expr
	Query     Node
	Defaults  []Expr // per table column; nil means NULL or the serial sequence
	Checks    []Check
	Returning *Returning
}

// SetItem is one assignment of an UPDATE; a nil Value is DEFAULT.
type SetItem struct {
	Column int
	Value  Expr
}

// Update rewrites the rows of Table matching Where. Where and the values
// are evaluated over the old row.
type Update struct {
	Table     *catalog.Table
	Where     Expr
	Set       []SetItem
	Defaults  []Expr
	Checks    []Check
	Returning *Returning
}

// Delete removes the rows of Table matching Where.
type Delete struct {
	Table     *catalog.Table
	Where     Expr
	Returning *Returning
}
