package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"pgmem/internal/engine"
	"pgmem/internal/pgerr"
	"pgmem/internal/storage/memstore"
	"pgmem/internal/types"
)

func TestRenderResultTable(t *testing.T) {
	res := &engine.Result{
		Columns: []engine.Column{{Name: "id", Type: types.TypeInt}, {Name: "name", Type: types.TypeString}},
		Rows:    []types.Row{{types.Int(1), types.Text("Alice")}, {types.Int(2), types.Null()}},
		Tag:     "SELECT 2",
	}
	out := renderResult(res)
	for _, want := range []string{"id", "name", "Alice", nullDisplay, "(2 rows)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderResultTagAndNotices(t *testing.T) {
	res := &engine.Result{
		Tag:     "DROP TABLE",
		Notices: []*pgconn.Notice{pgerr.Notice("NOTICE", "00000", "table %q does not exist, skipping", "x")},
	}
	out := renderResult(res)
	if !strings.Contains(out, "DROP TABLE") || !strings.Contains(out, `NOTICE: table "x" does not exist, skipping`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRenderError(t *testing.T) {
	err := pgerr.UndefinedTable("nope").WithHint("check the name")
	out := renderError(err)
	for _, want := range []string{`relation "nope" does not exist`, "HINT:  check the name", "SQLSTATE 42P01"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRunQuery(t *testing.T) {
	eng := engine.New(memstore.New(nil))
	var buf bytes.Buffer

	// 1. Successful statements print their results.
	if !runQuery(context.Background(), eng, &buf, `CREATE TABLE t (a int); INSERT INTO t VALUES (1); SELECT a FROM t;`) {
		t.Fatalf("expected success, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "INSERT 0 1") || !strings.Contains(buf.String(), "(1 row)") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}

	// 2. A failure prints the error after earlier results.
	buf.Reset()
	if runQuery(context.Background(), eng, &buf, `SELECT 1; SELECT * FROM missing;`) {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(buf.String(), "(1 row)") || !strings.Contains(buf.String(), "42P01") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestPromptFor(t *testing.T) {
	eng := engine.New(memstore.New(nil))
	if got := promptFor(eng, false); got != "pgmem=> " {
		t.Fatalf("expected idle prompt, got %q", got)
	}
	if _, err := eng.ExecuteSQL(context.Background(), "BEGIN"); err != nil {
		t.Fatalf("BEGIN failed: %v", err)
	}
	if got := promptFor(eng, true); got != "pgmem*-> " {
		t.Fatalf("expected continuation prompt in a block, got %q", got)
	}
}
