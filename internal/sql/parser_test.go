package sql

import (
	"testing"

	"pgmem/internal/pgerr"
	"pgmem/internal/types"
)

func mustParse(t *testing.T, query string) Statement {
	t.Helper()
	stmt, err := Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", query, err)
	}
	return stmt
}

func mustSelect(t *testing.T, query string) *SelectStmt {
	t.Helper()
	sel, ok := mustParse(t, query).(*SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt for %q", query)
	}
	return sel
}

func TestParseCreateTable_Basic(t *testing.T) {
	stmt := mustParse(t, "CREATE TABLE users (id INT, name TEXT, active BOOL);")

	ct, ok := stmt.(*CreateTableStmt)
	if !ok {
		t.Fatalf("expected *CreateTableStmt, got %T", stmt)
	}
	if ct.Table.Name != "users" || ct.Table.Schema != "" {
		t.Fatalf("expected table name %q, got %q", "users", ct.Table)
	}
	if len(ct.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(ct.Columns))
	}

	assertCol := func(idx int, name, typeName string) {
		if ct.Columns[idx].Name != name {
			t.Fatalf("column %d: expected name %q, got %q", idx, name, ct.Columns[idx].Name)
		}
		if ct.Columns[idx].Type.Name != typeName {
			t.Fatalf("column %d: expected type %q, got %q", idx, typeName, ct.Columns[idx].Type.Name)
		}
	}
	assertCol(0, "id", "int")
	assertCol(1, "name", "text")
	assertCol(2, "active", "bool")
}

func TestParseCreateTable_CaseAndQuoting(t *testing.T) {
	stmt := mustParse(t, `  create   table  IF NOT EXISTS  Foo."Accounts"  (  balance double precision ,  "Owner"  varchar(20) NOT NULL );  `)
	ct := stmt.(*CreateTableStmt)

	if !ct.IfNotExists {
		t.Fatalf("expected IfNotExists")
	}
	if ct.Table.Schema != "foo" || ct.Table.Name != "Accounts" {
		t.Fatalf("expected foo.Accounts, got %s", ct.Table)
	}
	if ct.Columns[0].Type.Name != "double precision" {
		t.Fatalf("expected double precision, got %q", ct.Columns[0].Type.Name)
	}
	owner := ct.Columns[1]
	if owner.Name != "Owner" || owner.Type.Name != "varchar" || len(owner.Type.Args) != 1 || owner.Type.Args[0] != 20 {
		t.Fatalf("unexpected second column: %+v", owner)
	}
	if !owner.NotNull {
		t.Fatalf("expected NOT NULL on Owner")
	}
}

func TestParseCreateTable_Constraints(t *testing.T) {
	stmt := mustParse(t, `CREATE TABLE orders (
		id serial PRIMARY KEY,
		user_id int REFERENCES users (id) ON DELETE CASCADE,
		qty int DEFAULT 1 CHECK (qty > 0),
		code text UNIQUE,
		CONSTRAINT orders_code_qty UNIQUE (code, qty),
		FOREIGN KEY (qty) REFERENCES quantities
	)`)
	ct := stmt.(*CreateTableStmt)

	if len(ct.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(ct.Columns))
	}
	if !ct.Columns[0].PrimaryKey || ct.Columns[0].Type.Name != "serial" {
		t.Fatalf("expected serial primary key, got %+v", ct.Columns[0])
	}
	ref := ct.Columns[1].References
	if ref == nil || ref.Table.Name != "users" || ref.OnDelete != RefCascade {
		t.Fatalf("unexpected reference: %+v", ref)
	}
	if ct.Columns[2].Default == nil || ct.Columns[2].Check == nil {
		t.Fatalf("expected default and check on qty")
	}
	if !ct.Columns[3].Unique {
		t.Fatalf("expected UNIQUE on code")
	}
	if len(ct.Constraints) != 2 {
		t.Fatalf("expected 2 table constraints, got %d", len(ct.Constraints))
	}
	if c := ct.Constraints[0]; c.Name != "orders_code_qty" || c.Kind != ConstraintUnique || len(c.Columns) != 2 {
		t.Fatalf("unexpected constraint: %+v", c)
	}
	if c := ct.Constraints[1]; c.Kind != ConstraintForeignKey || c.References.Columns != nil {
		t.Fatalf("unexpected constraint: %+v", c)
	}
}

func TestParseInsert_Basic(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO users VALUES (1, 'Alice', true), (2, 'Bob', DEFAULT);")

	ins, ok := stmt.(*InsertStmt)
	if !ok {
		t.Fatalf("expected *InsertStmt, got %T", stmt)
	}
	if ins.Table.Name != "users" {
		t.Fatalf("expected table users, got %s", ins.Table)
	}
	if len(ins.Rows) != 2 || len(ins.Rows[0]) != 3 {
		t.Fatalf("expected 2 rows of 3 values, got %d", len(ins.Rows))
	}
	lit, ok := ins.Rows[0][1].(*Literal)
	if !ok || lit.Value.Type != types.TypeString || lit.Value.S != "Alice" {
		t.Fatalf("expected 'Alice' literal, got %#v", ins.Rows[0][1])
	}
	if _, ok := ins.Rows[1][2].(*DefaultExpr); !ok {
		t.Fatalf("expected DEFAULT, got %#v", ins.Rows[1][2])
	}
}

func TestParseInsert_ColumnsSelectReturning(t *testing.T) {
	ins := mustParse(t, "insert into t (a, b) select x, y from u returning a, b as bee").(*InsertStmt)

	if len(ins.Columns) != 2 || ins.Columns[1] != "b" {
		t.Fatalf("unexpected columns: %v", ins.Columns)
	}
	if ins.Select == nil || ins.Rows != nil {
		t.Fatalf("expected INSERT ... SELECT")
	}
	if len(ins.Returning) != 2 || ins.Returning[1].Alias != "bee" {
		t.Fatalf("unexpected RETURNING: %+v", ins.Returning)
	}
}

func TestParseInsert_ValuesWidthMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO t VALUES (1, 2), (3)")
	if pgerr.CodeOf(err) != pgerr.CodeSyntaxError {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestParseSelect_Clauses(t *testing.T) {
	sel := mustSelect(t, `SELECT DISTINCT a, count(*) AS n FROM t WHERE a > 1
		GROUP BY a HAVING count(*) > 2 ORDER BY 2 DESC NULLS LAST, a LIMIT 10 OFFSET 5`)

	if !sel.Distinct {
		t.Fatalf("expected DISTINCT")
	}
	if len(sel.Targets) != 2 || sel.Targets[1].Alias != "n" {
		t.Fatalf("unexpected targets: %+v", sel.Targets)
	}
	fc, ok := sel.Targets[1].Expr.(*FuncCall)
	if !ok || fc.Name != "count" || !fc.Star {
		t.Fatalf("expected count(*), got %#v", sel.Targets[1].Expr)
	}
	if sel.Where == nil || sel.Having == nil || len(sel.GroupBy) != 1 {
		t.Fatalf("expected WHERE, GROUP BY and HAVING")
	}
	if len(sel.OrderBy) != 2 || !sel.OrderBy[0].Desc || sel.OrderBy[0].Nulls != NullsLast {
		t.Fatalf("unexpected ORDER BY: %+v", sel.OrderBy)
	}
	if sel.Limit == nil || sel.Offset == nil {
		t.Fatalf("expected LIMIT and OFFSET")
	}
}

func TestParseSelect_NoFromAndEmptyTargets(t *testing.T) {
	sel := mustSelect(t, "SELECT 1 + 2 * 3")
	if len(sel.From) != 0 || len(sel.Targets) != 1 {
		t.Fatalf("unexpected statement: %+v", sel)
	}
	add, ok := sel.Targets[0].Expr.(*BinaryExpr)
	if !ok || add.Op != types.OpAdd {
		t.Fatalf("expected + at the root, got %#v", sel.Targets[0].Expr)
	}
	if mul, ok := add.Right.(*BinaryExpr); !ok || mul.Op != types.OpMul {
		t.Fatalf("expected * on the right, got %#v", add.Right)
	}

	sel = mustSelect(t, "SELECT FROM t")
	if len(sel.Targets) != 0 || len(sel.From) != 1 {
		t.Fatalf("expected empty target list over t, got %+v", sel)
	}
}

func TestParseSelect_Joins(t *testing.T) {
	sel := mustSelect(t, `SELECT * FROM a JOIN b ON a.id = b.id LEFT OUTER JOIN c x ON x.id = a.id
		CROSS JOIN d, (SELECT 1) AS s, (VALUES (1, 2)) v (p, q)`)

	if len(sel.From) != 3 {
		t.Fatalf("expected 3 FROM items, got %d", len(sel.From))
	}
	outer, ok := sel.From[0].(*JoinExpr)
	if !ok || outer.Type != JoinCross {
		t.Fatalf("expected CROSS JOIN at the root, got %#v", sel.From[0])
	}
	left, ok := outer.Left.(*JoinExpr)
	if !ok || left.Type != JoinLeft {
		t.Fatalf("expected LEFT JOIN, got %#v", outer.Left)
	}
	if ref := left.Right.(*TableRef); ref.Alias != "x" {
		t.Fatalf("expected alias x, got %q", ref.Alias)
	}
	if sub := sel.From[1].(*SubqueryTable); sub.Alias != "s" {
		t.Fatalf("expected subquery alias s, got %q", sub.Alias)
	}
	vals := sel.From[2].(*ValuesTable)
	if vals.Alias != "v" || len(vals.ColumnAliases) != 2 {
		t.Fatalf("unexpected VALUES table: %+v", vals)
	}
}

func TestParseSelect_SubqueryInFromNeedsAlias(t *testing.T) {
	if _, err := Parse("SELECT * FROM (SELECT 1)"); err == nil {
		t.Fatalf("expected error for unaliased subquery")
	}
}

func TestParseSelect_UnsupportedFromItems(t *testing.T) {
	cases := []struct {
		query string
		msg   string
	}{
		{"SELECT * FROM x, LATERAL (SELECT x.i) s", "LATERAL is not supported"},
		{"SELECT * FROM generate_series(1, 3)", "set-returning functions in FROM are not supported"},
	}
	for _, c := range cases {
		_, err := Parse(c.query)
		e, ok := pgerr.As(err)
		if !ok {
			t.Fatalf("%q: expected *pgerr.Error, got %v", c.query, err)
		}
		if e.Code() != pgerr.CodeFeatureNotSupported {
			t.Fatalf("%q: expected code %s, got %s", c.query, pgerr.CodeFeatureNotSupported, e.Code())
		}
		if e.Message() != c.msg {
			t.Fatalf("%q: expected message %q, got %q", c.query, c.msg, e.Message())
		}
	}
}

func TestRenameColumnRefs(t *testing.T) {
	// 1. Rename inside a CHECK-like expression
	stmt, err := Parse("SELECT a > 0 AND lower(b) = 'x' FROM t")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	e := stmt.(*SelectStmt).Targets[0].Expr
	renamed := RenameColumnRefs(e, "a", "z")

	// 2. The copy mentions the new name, the original is untouched
	if !ReferencesColumn(renamed, "z") || ReferencesColumn(renamed, "a") {
		t.Fatalf("expected renamed expression to reference z only")
	}
	if !ReferencesColumn(e, "a") || ReferencesColumn(e, "z") {
		t.Fatalf("expected original expression to keep a")
	}
	if !ReferencesColumn(renamed, "b") {
		t.Fatalf("expected b to survive the rename")
	}
}

func TestParseExpr_Precedence(t *testing.T) {
	sel := mustSelect(t, "SELECT a OR b AND NOT c = 1")
	or, ok := sel.Targets[0].Expr.(*BinaryExpr)
	if !ok || or.Op != types.OpOr {
		t.Fatalf("expected OR at the root, got %#v", sel.Targets[0].Expr)
	}
	and, ok := or.Right.(*BinaryExpr)
	if !ok || and.Op != types.OpAnd {
		t.Fatalf("expected AND under OR, got %#v", or.Right)
	}
	not, ok := and.Right.(*UnaryExpr)
	if !ok || not.Op != types.OpNot {
		t.Fatalf("expected NOT under AND, got %#v", and.Right)
	}
	if eq, ok := not.Operand.(*BinaryExpr); !ok || eq.Op != types.OpEq {
		t.Fatalf("expected = under NOT, got %#v", not.Operand)
	}
}

func TestParseExpr_NegativeLiteralAndCast(t *testing.T) {
	sel := mustSelect(t, "SELECT -2147483648, -5::bool, '1'::int, CAST(x AS varchar(3))")

	lit, ok := sel.Targets[0].Expr.(*Literal)
	if !ok || lit.Value.Type != types.TypeInt || lit.Value.I64 != -2147483648 {
		t.Fatalf("expected integer literal -2147483648, got %#v", sel.Targets[0].Expr)
	}
	neg, ok := sel.Targets[1].Expr.(*UnaryExpr)
	if !ok || neg.Op != types.OpNeg {
		t.Fatalf("expected unary minus over a cast, got %#v", sel.Targets[1].Expr)
	}
	if _, ok := neg.Operand.(*CastExpr); !ok {
		t.Fatalf("expected cast to bind tighter than minus, got %#v", neg.Operand)
	}
	if c, ok := sel.Targets[3].Expr.(*CastExpr); !ok || c.Type.Name != "varchar" {
		t.Fatalf("expected CAST to varchar, got %#v", sel.Targets[3].Expr)
	}
}

func TestParseExpr_Predicates(t *testing.T) {
	sel := mustSelect(t, `SELECT x NOT BETWEEN 1 AND 3, y NOT IN (1, 2), z IN (SELECT a FROM t),
		w ILIKE 'a%', v IS NOT NULL, EXISTS (SELECT 1), CASE WHEN a THEN 1 ELSE 2 END`)

	if b := sel.Targets[0].Expr.(*BetweenExpr); !b.Not {
		t.Fatalf("expected NOT BETWEEN")
	}
	if in := sel.Targets[1].Expr.(*InExpr); !in.Not || len(in.List) != 2 {
		t.Fatalf("unexpected IN: %+v", in)
	}
	if in := sel.Targets[2].Expr.(*InExpr); in.Subquery == nil {
		t.Fatalf("expected IN (subquery)")
	}
	if like := sel.Targets[3].Expr.(*BinaryExpr); like.Op != types.OpILike {
		t.Fatalf("expected ILIKE, got %v", like.Op)
	}
	if is := sel.Targets[4].Expr.(*IsExpr); is.Test != IsNull || !is.Not {
		t.Fatalf("expected IS NOT NULL, got %+v", is)
	}
	if _, ok := sel.Targets[5].Expr.(*ExistsExpr); !ok {
		t.Fatalf("expected EXISTS")
	}
	if c := sel.Targets[6].Expr.(*CaseExpr); len(c.Whens) != 1 || c.Else == nil {
		t.Fatalf("unexpected CASE: %+v", c)
	}
}

func TestParseExpr_QualifiedNames(t *testing.T) {
	sel := mustSelect(t, "SELECT s.t.c, t.c, t.*, pg_catalog.length('x') FROM s.t")

	if c := sel.Targets[0].Expr.(*ColumnRef); c.Schema != "s" || c.Table != "t" || c.Column != "c" {
		t.Fatalf("unexpected column ref: %+v", c)
	}
	if s := sel.Targets[2].Expr.(*Star); s.Table != "t" {
		t.Fatalf("unexpected star: %+v", s)
	}
	if f := sel.Targets[3].Expr.(*FuncCall); f.Schema != "pg_catalog" || f.Name != "length" {
		t.Fatalf("unexpected function call: %+v", f)
	}
}

func TestParseUpdate_Basic(t *testing.T) {
	upd := mustParse(t, "UPDATE users u SET name = 'Bob', age = age + 1 WHERE u.id = 1 RETURNING *").(*UpdateStmt)

	if upd.Table.Name != "users" || upd.Alias != "u" {
		t.Fatalf("unexpected target: %s %s", upd.Table, upd.Alias)
	}
	if len(upd.Assignments) != 2 || upd.Assignments[1].Column != "age" {
		t.Fatalf("unexpected assignments: %+v", upd.Assignments)
	}
	if upd.Where == nil || len(upd.Returning) != 1 {
		t.Fatalf("expected WHERE and RETURNING")
	}
}

func TestParseDelete_Basic(t *testing.T) {
	del := mustParse(t, "delete from public.users where id = 1").(*DeleteStmt)
	if del.Table.Schema != "public" || del.Table.Name != "users" || del.Where == nil {
		t.Fatalf("unexpected delete: %+v", del)
	}
}

func TestParseAlterTable(t *testing.T) {
	alt := mustParse(t, "ALTER TABLE t ADD COLUMN c int DEFAULT 0, ALTER COLUMN d SET NOT NULL, DROP COLUMN IF EXISTS e").(*AlterTableStmt)
	if len(alt.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(alt.Actions))
	}
	if a := alt.Actions[0].(*AddColumn); a.Column.Name != "c" || a.Column.Default == nil {
		t.Fatalf("unexpected ADD COLUMN: %+v", a)
	}
	if a := alt.Actions[1].(*SetNotNull); a.Column != "d" || !a.NotNull {
		t.Fatalf("unexpected SET NOT NULL: %+v", a)
	}
	if a := alt.Actions[2].(*DropColumn); !a.IfExists {
		t.Fatalf("expected IF EXISTS")
	}

	ren := mustParse(t, "alter table t rename column a to b").(*AlterTableStmt)
	if r := ren.Actions[0].(*RenameColumn); r.Old != "a" || r.New != "b" {
		t.Fatalf("unexpected rename: %+v", r)
	}
}

func TestParseTransactionsAndMisc(t *testing.T) {
	cases := map[string]Statement{
		"BEGIN":                              &BeginTxStmt{},
		"start transaction":                  &BeginTxStmt{},
		"BEGIN ISOLATION LEVEL SERIALIZABLE": &BeginTxStmt{},
		"COMMIT WORK":                        &CommitTxStmt{},
		"end":                                &CommitTxStmt{},
		"ROLLBACK":                           &RollbackTxStmt{},
		"abort transaction":                  &RollbackTxStmt{},
	}
	for query, want := range cases {
		got := mustParse(t, query)
		if _, ok := got.(*BeginTxStmt); ok != isBegin(want) {
			t.Fatalf("%q: expected %T, got %T", query, want, got)
		}
	}

	set := mustParse(t, "SET search_path TO foo, public").(*SetStmt)
	if set.Name != "search_path" || set.Value != "foo, public" {
		t.Fatalf("unexpected SET: %+v", set)
	}
	idx := mustParse(t, "CREATE UNIQUE INDEX t_a_idx ON t (a, b DESC)").(*CreateIndexStmt)
	if !idx.Unique || idx.Name != "t_a_idx" || len(idx.Columns) != 2 {
		t.Fatalf("unexpected CREATE INDEX: %+v", idx)
	}
	tr := mustParse(t, "TRUNCATE TABLE a, b RESTART IDENTITY CASCADE").(*TruncateStmt)
	if len(tr.Tables) != 2 || !tr.RestartIdentity || !tr.Cascade {
		t.Fatalf("unexpected TRUNCATE: %+v", tr)
	}
}

func isBegin(s Statement) bool {
	_, ok := s.(*BeginTxStmt)
	return ok
}

func TestParseAll_Script(t *testing.T) {
	stmts, err := ParseAll(`
		-- create and fill
		CREATE TABLE t (a int);
		INSERT INTO t VALUES (1); /* block
		comment */ ;;
		SELECT * FROM t;
	`)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}

	stmts, err = ParseAll("   ")
	if err != nil || len(stmts) != 0 {
		t.Fatalf("expected no statements for blank input, got %d (%v)", len(stmts), err)
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	cases := []struct {
		query string
		msg   string
	}{
		{"SELEC 1", `syntax error at or near "selec"`},
		{"SELECT 1 +", "syntax error at end of input"},
		{"SELECT * FROM t WHERE", "syntax error at end of input"},
		{"SELECT 'abc", `unterminated quoted string at or near "'abc"`},
		{"SELECT 1 1", `syntax error at or near "1"`},
	}
	for _, c := range cases {
		_, err := Parse(c.query)
		e, ok := pgerr.As(err)
		if !ok {
			t.Fatalf("%q: expected *pgerr.Error, got %v", c.query, err)
		}
		if e.Code() != pgerr.CodeSyntaxError {
			t.Fatalf("%q: expected code %s, got %s", c.query, pgerr.CodeSyntaxError, e.Code())
		}
		if e.Message() != c.msg {
			t.Fatalf("%q: expected message %q, got %q", c.query, c.msg, e.Message())
		}
	}
}

func TestParse_MultipleStatementsRejected(t *testing.T) {
	if _, err := Parse("SELECT 1; SELECT 2"); err == nil {
		t.Fatalf("expected error for two statements")
	}
}

func TestLex_EscapesAndIdentifiers(t *testing.T) {
	toks, err := lex(`SELECT E'a\nb', 'it''s', "Mixed""Case", x != y`)
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	want := []struct {
		kind tokenKind
		text string
	}{
		{tkIdent, "select"}, {tkString, "a\nb"}, {tkOp, ","}, {tkString, "it's"}, {tkOp, ","},
		{tkIdent, `Mixed"Case`}, {tkOp, ","}, {tkIdent, "x"}, {tkOp, "<>"}, {tkIdent, "y"}, {tkEOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(toks))
	}
	for i, w := range want {
		if toks[i].kind != w.kind || toks[i].text != w.text {
			t.Fatalf("token %d: expected (%d, %q), got (%d, %q)", i, w.kind, w.text, toks[i].kind, toks[i].text)
		}
	}
}
