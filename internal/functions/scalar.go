package functions

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
	"pgmem/internal/types"
)

const (
	tText  = types.TypeString
	tInt   = types.TypeInt
	tBig   = types.TypeBigInt
	tNum   = types.TypeNumeric
	tFloat = types.TypeFloat
)

type implFunc = func(ctx Context, args []types.Value) (types.Value, error)

func strict(name string, result types.DataType, impl implFunc, params ...types.DataType) {
	register(&Builtin{Name: name, Params: params, Result: result, Strict: true, Impl: impl})
}

func init() {
	// String functions.
	for _, name := range []string{"length", "char_length", "character_length"} {
		strict(name, tInt, func(_ Context, a []types.Value) (types.Value, error) {
			return types.Int(int64(utf8.RuneCountInString(a[0].S))), nil
		}, tText)
	}
	strict("octet_length", tInt, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Int(int64(len(a[0].S))), nil
	}, tText)
	strict("lower", tText, textFunc(strings.ToLower), tText)
	strict("upper", tText, textFunc(strings.ToUpper), tText)
	strict("reverse", tText, textFunc(reverse), tText)
	strict("md5", tText, textFunc(func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	}), tText)
	for _, name := range []string{"substr", "substring"} {
		strict(name, tText, substr, tText, tInt)
		strict(name, tText, substr, tText, tInt, tInt)
	}
	strict("trim", tText, trimFunc(strings.Trim), tText)
	strict("btrim", tText, trimFunc(strings.Trim), tText)
	strict("btrim", tText, trimFunc(strings.Trim), tText, tText)
	strict("ltrim", tText, trimFunc(strings.TrimLeft), tText)
	strict("ltrim", tText, trimFunc(strings.TrimLeft), tText, tText)
	strict("rtrim", tText, trimFunc(strings.TrimRight), tText)
	strict("rtrim", tText, trimFunc(strings.TrimRight), tText, tText)
	strict("replace", tText, func(_ Context, a []types.Value) (types.Value, error) {
		if a[1].S == "" {
			return a[0], nil
		}
		return types.Text(strings.ReplaceAll(a[0].S, a[1].S, a[2].S)), nil
	}, tText, tText, tText)
	strict("left", tText, left, tText, tInt)
	strict("right", tText, right, tText, tInt)
	strict("repeat", tText, func(_ Context, a []types.Value) (types.Value, error) {
		if a[1].I64 <= 0 {
			return types.Text(""), nil
		}
		return types.Text(strings.Repeat(a[0].S, int(a[1].I64))), nil
	}, tText, tInt)
	strict("strpos", tInt, func(_ Context, a []types.Value) (types.Value, error) {
		i := strings.Index(a[0].S, a[1].S)
		if i < 0 {
			return types.Int(0), nil
		}
		return types.Int(int64(utf8.RuneCountInString(a[0].S[:i]) + 1)), nil
	}, tText, tText)
	polymorphic["concat"] = func(args []types.DataType) (*Builtin, bool) {
		params := make([]types.DataType, len(args))
		for i, t := range args {
			params[i] = t
			if t.IsUntyped() {
				params[i] = tText
			}
		}
		return &Builtin{Name: "concat", Params: params, Result: tText, Impl: concat}, true
	}

	// Math.
	strict("abs", tInt, absInt(math.MinInt32, "integer", types.Int), tInt)
	strict("abs", tBig, absInt(math.MinInt64, "bigint", types.BigInt), tBig)
	strict("abs", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(a[0].D.Abs()), nil
	}, tNum)
	strict("abs", tFloat, floatFunc(math.Abs), tFloat)
	strict("round", tFloat, floatFunc(math.RoundToEven), tFloat)
	strict("round", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(a[0].D.Round(0)), nil
	}, tNum)
	strict("round", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(a[0].D.Round(int32(a[1].I64))), nil
	}, tNum, tInt)
	strict("trunc", tFloat, floatFunc(math.Trunc), tFloat)
	strict("trunc", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(a[0].D.Truncate(0)), nil
	}, tNum)
	strict("trunc", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		places := int32(a[1].I64)
		if places < 0 {
			return types.Numeric(a[0].D.RoundDown(places)), nil
		}
		d := a[0].D.Truncate(places)
		if types.Scale(d) < int(places) {
			d = d.Round(places)
		}
		return types.Numeric(d), nil
	}, tNum, tInt)
	strict("floor", tFloat, floatFunc(math.Floor), tFloat)
	strict("floor", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(a[0].D.Floor()), nil
	}, tNum)
	for _, name := range []string{"ceil", "ceiling"} {
		strict(name, tFloat, floatFunc(math.Ceil), tFloat)
		strict(name, tNum, func(_ Context, a []types.Value) (types.Value, error) {
			return types.Numeric(a[0].D.Ceil()), nil
		}, tNum)
	}
	strict("sign", tFloat, floatFunc(func(f float64) float64 {
		switch {
		case f > 0:
			return 1
		case f < 0:
			return -1
		}
		return 0
	}), tFloat)
	strict("sign", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		return types.Numeric(decimal.NewFromInt(int64(a[0].D.Sign()))), nil
	}, tNum)
	strict("sqrt", tFloat, func(_ Context, a []types.Value) (types.Value, error) {
		if a[0].F64 < 0 {
			return types.Null(), pgerr.New(pgerr.KindEval, "2201F", "cannot take square root of a negative number")
		}
		return types.Float(math.Sqrt(a[0].F64)), nil
	}, tFloat)
	for _, name := range []string{"power", "pow"} {
		strict(name, tFloat, binaryArith(types.OpPow, tFloat), tFloat, tFloat)
		strict(name, tNum, binaryArith(types.OpPow, tNum), tNum, tNum)
	}
	strict("mod", tInt, binaryArith(types.OpMod, tInt), tInt, tInt)
	strict("mod", tBig, binaryArith(types.OpMod, tBig), tBig, tBig)
	strict("mod", tNum, binaryArith(types.OpMod, tNum), tNum, tNum)
	strict("div", tNum, func(_ Context, a []types.Value) (types.Value, error) {
		if a[1].D.IsZero() {
			return types.Null(), pgerr.DivisionByZero()
		}
		return types.Numeric(a[0].D.Div(a[1].D).Truncate(0)), nil
	}, tNum, tNum)
	strict("pi", tFloat, func(Context, []types.Value) (types.Value, error) {
		return types.Float(math.Pi), nil
	})

	// Comparison helpers with a common argument type.
	polymorphic["greatest"] = commonResolver("greatest", extreme(1))
	polymorphic["least"] = commonResolver("least", extreme(-1))

	// Session information.
	strict("now", types.TypeTimestamp, func(ctx Context, _ []types.Value) (types.Value, error) {
		return types.Timestamp(ctx.Now()), nil
	})
	for _, name := range []string{"statement_timestamp", "transaction_timestamp"} {
		strict(name, types.TypeTimestamp, func(ctx Context, _ []types.Value) (types.Value, error) {
			return types.Timestamp(ctx.Now()), nil
		})
	}
	strict("version", tText, func(ctx Context, _ []types.Value) (types.Value, error) {
		return types.Text("PostgreSQL " + ctx.Setting("server_version") + " (pgmem)"), nil
	})
	strict("current_schema", tText, func(ctx Context, _ []types.Value) (types.Value, error) {
		path := strings.Split(ctx.Setting("search_path"), ",")
		return types.Text(strings.TrimSpace(path[0])), nil
	})
	strict("current_database", tText, func(Context, []types.Value) (types.Value, error) {
		return types.Text("postgres"), nil
	})
	strict("gen_random_uuid", tText, func(Context, []types.Value) (types.Value, error) {
		return types.Text(uuid.NewString()), nil
	})
}

func textFunc(f func(string) string) implFunc {
	return func(_ Context, a []types.Value) (types.Value, error) {
		return types.Text(f(a[0].S)), nil
	}
}

func floatFunc(f func(float64) float64) implFunc {
	return func(_ Context, a []types.Value) (types.Value, error) {
		return types.Float(f(a[0].F64)), nil
	}
}

func binaryArith(op types.Op, t types.DataType) implFunc {
	o := types.Operator{Op: op, Left: t, Right: t, Result: t}
	return func(_ Context, a []types.Value) (types.Value, error) {
		return types.EvalBinary(o, a[0], a[1])
	}
}

func absInt(lowest int64, name string, mk func(int64) types.Value) implFunc {
	return func(_ Context, a []types.Value) (types.Value, error) {
		v := a[0].I64
		if v == lowest {
			return types.Null(), pgerr.OutOfRange(name)
		}
		if v < 0 {
			v = -v
		}
		return mk(v), nil
	}
}

func trimFunc(f func(string, string) string) implFunc {
	return func(_ Context, a []types.Value) (types.Value, error) {
		cut := " "
		if len(a) > 1 {
			cut = a[1].S
		}
		return types.Text(f(a[0].S, cut)), nil
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// substr counts characters from 1; a start before 1 still consumes length.
func substr(_ Context, a []types.Value) (types.Value, error) {
	r := []rune(a[0].S)
	start := a[1].I64
	end := int64(len(r)) + 1
	if len(a) > 2 {
		if a[2].I64 < 0 {
			return types.Null(), pgerr.New(pgerr.KindEval, "22011", "negative substring length not allowed")
		}
		end = min(end, start+a[2].I64)
	}
	start = max(start, 1)
	if start >= end {
		return types.Text(""), nil
	}
	return types.Text(string(r[start-1 : end-1])), nil
}

func left(_ Context, a []types.Value) (types.Value, error) {
	r := []rune(a[0].S)
	n := a[1].I64
	if n < 0 {
		n = max(int64(len(r))+n, 0)
	}
	return types.Text(string(r[:min(n, int64(len(r)))])), nil
}

func right(_ Context, a []types.Value) (types.Value, error) {
	r := []rune(a[0].S)
	n := a[1].I64
	if n < 0 {
		n = max(int64(len(r))+n, 0)
	}
	n = min(n, int64(len(r)))
	return types.Text(string(r[int64(len(r))-n:])), nil
}

// concat skips NULL arguments.
func concat(_ Context, a []types.Value) (types.Value, error) {
	var sb strings.Builder
	for _, v := range a {
		if !v.IsNull() {
			sb.WriteString(types.Format(v))
		}
	}
	return types.Text(sb.String()), nil
}

// extreme returns the greatest (dir 1) or least (dir -1) non-NULL argument.
func extreme(dir int) implFunc {
	return func(_ Context, a []types.Value) (types.Value, error) {
		out := types.Null()
		for _, v := range a {
			if v.IsNull() {
				continue
			}
			if out.IsNull() {
				out = v
				continue
			}
			c, err := types.Compare(v, out)
			if err != nil {
				return types.Null(), err
			}
			if c*dir > 0 {
				out = v
			}
		}
		return out, nil
	}
}
