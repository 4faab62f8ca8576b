package sql

import (
	"pgmem/internal/types"
)

// Statement is the common interface for all SQL statements. The set of
// implementations is closed: only this package defines them.
type Statement interface {
	stmtNode()
}

// Expr is a scalar expression node.
type Expr interface {
	exprNode()
}

// TableExpr is an entry of a FROM clause.
type TableExpr interface {
	tableNode()
}

// TableName is a possibly schema-qualified relation name.
type TableName struct {
	Schema string
	Name   string
}

func (n TableName) String() string {
	if n.Schema == "" {
		return n.Name
	}
	return n.Schema + "." + n.Name
}

// TypeName is a type as written in DDL or a cast, e.g. varchar(20).
type TypeName struct {
	Name string // lower-cased, multi-word names joined by one space
	Args []int  // type modifiers, e.g. [20] for varchar(20)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// SelectStmt represents a parsed SELECT query.
type SelectStmt struct {
	Distinct bool
	Targets  []SelectTarget
	From     []TableExpr
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    Expr
	Offset   Expr
}

// SelectTarget is one entry of the select list or a RETURNING list.
type SelectTarget struct {
	Expr  Expr
	Alias string
}

// NullsOrder is an explicit NULLS FIRST / NULLS LAST.
type NullsOrder int

const (
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr  Expr
	Desc  bool
	Nulls NullsOrder
}

// InsertStmt represents INSERT INTO ... VALUES / SELECT.
type InsertStmt struct {
	Table     TableName
	Columns   []string
	Rows      [][]Expr    // VALUES lists; nil when Select is set
	Select    *SelectStmt // INSERT ... SELECT
	Returning []SelectTarget
}

// Assignment is one "col = expr" entry of UPDATE ... SET.
type Assignment struct {
	Column string
	Value  Expr
}

// UpdateStmt represents UPDATE ... SET ... WHERE ...
type UpdateStmt struct {
	Table       TableName
	Alias       string
	Assignments []Assignment
	Where       Expr
	Returning   []SelectTarget
}

// DeleteStmt represents DELETE FROM ... WHERE ...
type DeleteStmt struct {
	Table     TableName
	Alias     string
	Where     Expr
	Returning []SelectTarget
}

// RefAction is the ON DELETE behaviour of a foreign key.
type RefAction int

const (
	RefNoAction RefAction = iota
	RefRestrict
	RefCascade
	RefSetNull
)

// ForeignKeyRef is the REFERENCES part of a foreign key.
type ForeignKeyRef struct {
	Table    TableName
	Columns  []string
	OnDelete RefAction
}

// ColumnDef is a column definition in CREATE TABLE or ALTER TABLE ADD.
type ColumnDef struct {
	Name       string
	Type       TypeName
	NotNull    bool
	PrimaryKey bool
	Unique     bool
	Default    Expr
	References *ForeignKeyRef
	Check      Expr
	CheckName  string // from CONSTRAINT name CHECK (...)
}

// ConstraintKind is the kind of a table-level constraint.
type ConstraintKind int

const (
	ConstraintPrimaryKey ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintCheck
)

// TableConstraint is a table-level constraint clause.
type TableConstraint struct {
	Name       string
	Kind       ConstraintKind
	Columns    []string
	References *ForeignKeyRef
	Check      Expr
}

// CreateTableStmt represents a parsed CREATE TABLE statement.
type CreateTableStmt struct {
	Table       TableName
	IfNotExists bool
	Columns     []ColumnDef
	Constraints []TableConstraint
}

// DropTableStmt represents DROP TABLE [IF EXISTS] a, b [CASCADE].
type DropTableStmt struct {
	Tables   []TableName
	IfExists bool
	Cascade  bool
}

// CreateSchemaStmt represents CREATE SCHEMA.
type CreateSchemaStmt struct {
	Name        string
	IfNotExists bool
}

// DropSchemaStmt represents DROP SCHEMA.
type DropSchemaStmt struct {
	Names    []string
	IfExists bool
	Cascade  bool
}

// AlterAction is one ALTER TABLE sub-command.
type AlterAction interface {
	alterNode()
}

type AddColumn struct {
	Column      ColumnDef
	IfNotExists bool
}

type DropColumn struct {
	Name     string
	IfExists bool
}

type RenameColumn struct {
	Old string
	New string
}

type RenameTable struct {
	New string
}

// SetNotNull is ALTER COLUMN c SET NOT NULL (NotNull true) or DROP NOT NULL.
type SetNotNull struct {
	Column  string
	NotNull bool
}

// SetDefault is ALTER COLUMN c SET DEFAULT e, or DROP DEFAULT when Default
// is nil.
type SetDefault struct {
	Column  string
	Default Expr
}

// AlterTableStmt represents ALTER TABLE with one or more comma separated
// actions, applied in order.
type AlterTableStmt struct {
	Table    TableName
	IfExists bool
	Actions  []AlterAction
}

// AddConstraint is ALTER TABLE ... ADD [CONSTRAINT name] ...
type AddConstraint struct {
	Constraint TableConstraint
}

// DropConstraint is ALTER TABLE ... DROP CONSTRAINT name.
type DropConstraint struct {
	Name     string
	IfExists bool
}

// TruncateStmt represents TRUNCATE [TABLE] a, b.
type TruncateStmt struct {
	Tables          []TableName
	RestartIdentity bool
	Cascade         bool
}

// CreateIndexStmt represents CREATE [UNIQUE] INDEX. Indexes carry no access
// path; a unique index enforces uniqueness like a UNIQUE constraint.
type CreateIndexStmt struct {
	Name        string
	Table       TableName
	Columns     []string
	Unique      bool
	IfNotExists bool
}

// DropIndexStmt represents DROP INDEX.
type DropIndexStmt struct {
	Names    []TableName
	IfExists bool
}

// SetStmt represents SET name = value. Value is the literal text, or ""
// for SET name TO DEFAULT.
type SetStmt struct {
	Name  string
	Value string
}

// ShowStmt represents SHOW name.
type ShowStmt struct {
	Name string
}

// BeginTxStmt represents BEGIN / START TRANSACTION.
type BeginTxStmt struct{}

// CommitTxStmt represents COMMIT / END.
type CommitTxStmt struct{}

// RollbackTxStmt represents ROLLBACK / ABORT.
type RollbackTxStmt struct{}

func (*SelectStmt) stmtNode()       {}
func (*InsertStmt) stmtNode()       {}
func (*UpdateStmt) stmtNode()       {}
func (*DeleteStmt) stmtNode()       {}
func (*CreateTableStmt) stmtNode()  {}
func (*DropTableStmt) stmtNode()    {}
func (*CreateSchemaStmt) stmtNode() {}
func (*DropSchemaStmt) stmtNode()   {}
func (*AlterTableStmt) stmtNode()   {}
func (*TruncateStmt) stmtNode()     {}
func (*CreateIndexStmt) stmtNode()  {}
func (*DropIndexStmt) stmtNode()    {}
func (*SetStmt) stmtNode()          {}
func (*ShowStmt) stmtNode()         {}
func (*BeginTxStmt) stmtNode()      {}
func (*CommitTxStmt) stmtNode()     {}
func (*RollbackTxStmt) stmtNode()   {}

func (*AddColumn) alterNode()      {}
func (*DropColumn) alterNode()     {}
func (*RenameColumn) alterNode()   {}
func (*RenameTable) alterNode()    {}
func (*SetNotNull) alterNode()     {}
func (*SetDefault) alterNode()     {}
func (*AddConstraint) alterNode()  {}
func (*DropConstraint) alterNode() {}

// ---------------------------------------------------------------------------
// FROM entries
// ---------------------------------------------------------------------------

// TableRef is a named relation in FROM, optionally aliased.
type TableRef struct {
	Name  TableName
	Alias string
}

// JoinType is the kind of an explicit join.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	case JoinCross:
		return "CROSS"
	default:
		return "INNER"
	}
}

// JoinExpr is "left [type] JOIN right ON cond".
type JoinExpr struct {
	Type  JoinType
	Left  TableExpr
	Right TableExpr
	On    Expr
}

// SubqueryTable is a parenthesised SELECT in FROM.
type SubqueryTable struct {
	Select        *SelectStmt
	Alias         string
	ColumnAliases []string
}

// ValuesTable is a VALUES list in FROM.
type ValuesTable struct {
	Rows          [][]Expr
	Alias         string
	ColumnAliases []string
}

func (*TableRef) tableNode()      {}
func (*JoinExpr) tableNode()      {}
func (*SubqueryTable) tableNode() {}
func (*ValuesTable) tableNode()   {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Literal is a constant. String literals carry types.TypeString values and
// are treated as untyped until context resolves them.
type Literal struct {
	Value types.Value
}

// ColumnRef is a possibly qualified column name.
type ColumnRef struct {
	Schema string
	Table  string
	Column string
}

// Star is * or t.* in a select list, or the argument of count(*).
type Star struct {
	Schema string
	Table  string
}

// UnaryExpr is a prefix operator: -, +, NOT.
type UnaryExpr struct {
	Op      types.Op
	Operand Expr
}

// BinaryExpr is an infix operator.
type BinaryExpr struct {
	Op    types.Op
	Left  Expr
	Right Expr
}

// IsTest is the predicate of an IS expression.
type IsTest int

const (
	IsNull IsTest = iota
	IsTrue
	IsFalse
	IsUnknown
)

// IsExpr is "expr IS [NOT] NULL|TRUE|FALSE|UNKNOWN".
type IsExpr struct {
	Expr Expr
	Test IsTest
	Not  bool
}

// BetweenExpr is "expr [NOT] BETWEEN low AND high".
type BetweenExpr struct {
	Expr Expr
	Low  Expr
	High Expr
	Not  bool
}

// InExpr is "expr [NOT] IN (list)" or "expr [NOT] IN (subquery)".
type InExpr struct {
	Expr     Expr
	List     []Expr
	Subquery *SelectStmt
	Not      bool
}

// ExistsExpr is EXISTS (subquery).
type ExistsExpr struct {
	Subquery *SelectStmt
}

// SubqueryExpr is a scalar subquery.
type SubqueryExpr struct {
	Select *SelectStmt
}

// CastExpr is CAST(expr AS type) or expr::type.
type CastExpr struct {
	Expr Expr
	Type TypeName
}

// FuncCall is a function or aggregate invocation.
type FuncCall struct {
	Schema   string
	Name     string
	Args     []Expr
	Star     bool // count(*)
	Distinct bool
}

// WhenClause is one WHEN ... THEN ... of a CASE.
type WhenClause struct {
	Cond   Expr
	Result Expr
}

// CaseExpr is a searched CASE, or a simple CASE when Operand is set.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

// DefaultExpr is the DEFAULT keyword inside an INSERT VALUES list.
type DefaultExpr struct{}

func (*Literal) exprNode()      {}
func (*ColumnRef) exprNode()    {}
func (*Star) exprNode()         {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
func (*IsExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*InExpr) exprNode()       {}
func (*ExistsExpr) exprNode()   {}
func (*SubqueryExpr) exprNode() {}
func (*CastExpr) exprNode()     {}
func (*FuncCall) exprNode()     {}
func (*CaseExpr) exprNode()     {}
func (*DefaultExpr) exprNode()  {}
