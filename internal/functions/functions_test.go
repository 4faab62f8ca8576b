package functions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
	"pgmem/internal/types"
)

type fixedContext struct{}

func (fixedContext) Now() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

func (fixedContext) Setting(name string) string {
	switch name {
	case "search_path":
		return "app, public"
	case "server_version":
		return "16.0"
	}
	return ""
}

func call(t *testing.T, name string, args ...types.Value) types.Value {
	t.Helper()
	ts := make([]types.DataType, len(args))
	for i, a := range args {
		ts[i] = a.Type
	}
	b, ok := LookupScalar(name, ts)
	if !ok {
		t.Fatalf("expected %s to resolve", Signature("", name, ts))
	}
	for i := range args {
		v, err := types.Cast(args[i], b.Param(i))
		if err != nil {
			t.Fatalf("cast argument %d of %s: %v", i, name, err)
		}
		args[i] = v
	}
	out, err := b.Impl(fixedContext{}, args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return out
}

func TestScalarResolution(t *testing.T) {
	cases := []struct {
		name   string
		args   []types.DataType
		result types.DataType
	}{
		{"abs", []types.DataType{types.TypeInt}, types.TypeInt},
		{"abs", []types.DataType{types.TypeNumeric}, types.TypeNumeric},
		{"round", []types.DataType{types.TypeInt}, types.TypeFloat},
		{"round", []types.DataType{types.TypeNumeric, types.TypeInt}, types.TypeNumeric},
		{"mod", []types.DataType{types.TypeInt, types.TypeBigInt}, types.TypeBigInt},
		{"length", []types.DataType{types.TypeUnknown}, types.TypeInt},
		{"greatest", []types.DataType{types.TypeInt, types.TypeNumeric}, types.TypeNumeric},
		{"concat", []types.DataType{types.TypeInt, types.TypeBool}, types.TypeString},
	}
	for _, tc := range cases {
		b, ok := LookupScalar(tc.name, tc.args)
		if !ok {
			t.Fatalf("expected %s to resolve", Signature("", tc.name, tc.args))
		}
		if b.Result != tc.result {
			t.Fatalf("%s: expected result %s, got %s", Signature("", tc.name, tc.args), tc.result, b.Result)
		}
	}

	if _, ok := LookupScalar("length", []types.DataType{types.TypeInt}); ok {
		t.Fatalf("expected length(integer) not to resolve")
	}
	if _, ok := LookupScalar("nope_fn", nil); ok {
		t.Fatalf("expected unknown function not to resolve")
	}
	if got := Signature("public", "nope_fn", []types.DataType{types.TypeInt, types.TypeUnknown}); got != "public.nope_fn(integer, unknown)" {
		t.Fatalf("unexpected signature %q", got)
	}
}

func TestStringFunctions(t *testing.T) {
	cases := []struct {
		name string
		args []types.Value
		want string
	}{
		{"length", []types.Value{types.Text("héllo")}, "5"},
		{"upper", []types.Value{types.Text("abc")}, "ABC"},
		{"substr", []types.Value{types.Text("hello"), types.Int(2), types.Int(3)}, "ell"},
		{"substr", []types.Value{types.Text("hello"), types.Int(-1), types.Int(3)}, "h"},
		{"substr", []types.Value{types.Text("hello"), types.Int(4)}, "lo"},
		{"left", []types.Value{types.Text("hello"), types.Int(-2)}, "hel"},
		{"right", []types.Value{types.Text("hello"), types.Int(2)}, "lo"},
		{"btrim", []types.Value{types.Text("xxhixx"), types.Text("x")}, "hi"},
		{"replace", []types.Value{types.Text("a-b-c"), types.Text("-"), types.Text("+")}, "a+b+c"},
		{"strpos", []types.Value{types.Text("héllo"), types.Text("llo")}, "3"},
		{"concat", []types.Value{types.Text("a"), types.Null(), types.Int(1), types.Bool(true)}, "a1t"},
		{"repeat", []types.Value{types.Text("ab"), types.Int(3)}, "ababab"},
		{"reverse", []types.Value{types.Text("abc")}, "cba"},
		{"current_schema", nil, "app"},
		{"version", nil, "PostgreSQL 16.0 (pgmem)"},
	}
	for _, tc := range cases {
		got := call(t, tc.name, tc.args...)
		if types.Format(got) != tc.want {
			t.Fatalf("%s%v: expected %q, got %q", tc.name, tc.args, tc.want, types.Format(got))
		}
	}
}

func TestMathFunctions(t *testing.T) {
	if got := call(t, "abs", types.Int(-4)); got.I64 != 4 || got.Type != types.TypeInt {
		t.Fatalf("abs(-4): got %v", got)
	}
	if got := call(t, "round", types.Numeric(decimal.RequireFromString("2.5"))); types.Format(got) != "3" {
		t.Fatalf("round(2.5): got %v", got)
	}
	if got := call(t, "round", types.Float(2.5)); got.F64 != 2 {
		t.Fatalf("round(2.5::float8): got %v", got)
	}
	if got := call(t, "greatest", types.Int(3), types.Null(), types.Int(7)); got.I64 != 7 {
		t.Fatalf("greatest: got %v", got)
	}

	dec := func(s string) types.Value { return types.Numeric(decimal.RequireFromString(s)) }
	truncs := []struct {
		in     string
		places int64
		want   string
	}{
		{"1234.567", 2, "1234.56"},
		{"-1.59", 1, "-1.5"},
		{"1.5", 2, "1.50"},
		{"1.500", 1, "1.5"},
		{"1234.5", -2, "1200"},
	}
	for _, tc := range truncs {
		if got := call(t, "trunc", dec(tc.in), types.Int(tc.places)); types.Format(got) != tc.want {
			t.Fatalf("trunc(%s, %d): expected %s, got %v", tc.in, tc.places, tc.want, got)
		}
	}
	if got := call(t, "sign", dec("-3.2")); got.Type != types.TypeNumeric || types.Format(got) != "-1" {
		t.Fatalf("sign(-3.2): expected numeric -1, got %s %v", got.Type, got)
	}

	b, _ := LookupScalar("abs", []types.DataType{types.TypeInt})
	if _, err := b.Impl(fixedContext{}, []types.Value{types.Int(-2147483648)}); !pgerr.HasCode(err, pgerr.CodeNumericValueOutOfRange) {
		t.Fatalf("expected 22003 for abs(int min), got %v", err)
	}
	b, _ = LookupScalar("mod", []types.DataType{types.TypeInt, types.TypeInt})
	if _, err := b.Impl(fixedContext{}, []types.Value{types.Int(1), types.Int(0)}); !pgerr.HasCode(err, pgerr.CodeDivisionByZero) {
		t.Fatalf("expected 22012 for mod by zero, got %v", err)
	}
}

func fold(t *testing.T, name string, args []types.DataType, rows ...[]types.Value) types.Value {
	t.Helper()
	agg, ok := LookupAggregate(name, args)
	if !ok {
		t.Fatalf("expected aggregate %s to resolve", name)
	}
	acc := agg.New()
	for _, r := range rows {
		if len(r) > 0 && r[0].IsNull() {
			continue
		}
		if err := acc.Add(r); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	return acc.Result()
}

func TestAggregates(t *testing.T) {
	ints := [][]types.Value{{types.Int(1)}, {types.Null()}, {types.Int(2)}}

	// 1) count(*) counts every row, count(x) skips NULLs.
	if got := fold(t, "count", nil, []types.Value{}, []types.Value{}, []types.Value{}); got.I64 != 3 {
		t.Fatalf("count(*): expected 3, got %v", got)
	}
	if got := fold(t, "count", []types.DataType{types.TypeInt}, ints...); got.I64 != 2 {
		t.Fatalf("count(x): expected 2, got %v", got)
	}

	// 2) sum(int) is bigint, avg(int) is numeric.
	sum := fold(t, "sum", []types.DataType{types.TypeInt}, ints...)
	if sum.Type != types.TypeBigInt || sum.I64 != 3 {
		t.Fatalf("sum: expected bigint 3, got %v (%s)", sum, sum.Type)
	}
	if got := fold(t, "avg", []types.DataType{types.TypeInt}, ints...); types.Format(got) != "1.5000000000000000" {
		t.Fatalf("avg: expected 1.5000000000000000, got %v", got)
	}

	// 3) min/max and empty input.
	if got := fold(t, "max", []types.DataType{types.TypeInt}, ints...); got.I64 != 2 {
		t.Fatalf("max: expected 2, got %v", got)
	}
	if got := fold(t, "sum", []types.DataType{types.TypeInt}); !got.IsNull() {
		t.Fatalf("sum of no rows: expected NULL, got %v", got)
	}

	// 4) string_agg joins with the delimiter.
	got := fold(t, "string_agg", []types.DataType{types.TypeString, types.TypeUnknown},
		[]types.Value{types.Text("a"), types.Text(",")},
		[]types.Value{types.Text("b"), types.Text(",")})
	if got.S != "a,b" {
		t.Fatalf("string_agg: expected a,b, got %v", got)
	}

	if _, ok := LookupAggregate("sum", []types.DataType{types.TypeString}); ok {
		t.Fatalf("expected sum(text) not to resolve")
	}
}
