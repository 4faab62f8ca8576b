package functions

import (
	"strings"

	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
	"pgmem/internal/types"
)

// Accumulator folds the rows of one group. Add is only called for rows
// whose first argument is not NULL; count(*) is called with no arguments.
type Accumulator interface {
	Add(args []types.Value) error
	Result() types.Value
}

// Aggregate is a resolved aggregate function.
type Aggregate struct {
	Name   string
	Params []types.DataType
	Result types.DataType
	New    func() Accumulator
}

var aggregates = map[string]func(args []types.DataType) (*Aggregate, bool){
	"count":      countAgg,
	"sum":        sumAgg,
	"avg":        avgAgg,
	"min":        extremeAgg("min", -1),
	"max":        extremeAgg("max", 1),
	"bool_and":   boolAgg("bool_and", true),
	"bool_or":    boolAgg("bool_or", false),
	"every":      boolAgg("every", true),
	"string_agg": stringAgg,
}

// IsAggregate reports whether name is an aggregate function.
func IsAggregate(name string) bool {
	_, ok := aggregates[name]
	return ok
}

// LookupAggregate resolves an aggregate call. A nil args slice means
// count(*).
func LookupAggregate(name string, args []types.DataType) (*Aggregate, bool) {
	r, ok := aggregates[name]
	if !ok {
		return nil, false
	}
	return r(args)
}

func countAgg(args []types.DataType) (*Aggregate, bool) {
	if len(args) > 1 {
		return nil, false
	}
	params := make([]types.DataType, len(args))
	for i, t := range args {
		params[i] = settle(t)
	}
	return &Aggregate{Name: "count", Params: params, Result: types.TypeBigInt, New: func() Accumulator {
		return &countAcc{}
	}}, true
}

type countAcc struct{ n int64 }

func (a *countAcc) Add([]types.Value) error { a.n++; return nil }
func (a *countAcc) Result() types.Value     { return types.BigInt(a.n) }

func sumAgg(args []types.DataType) (*Aggregate, bool) {
	t, ok := numericArg(args)
	if !ok {
		return nil, false
	}
	result := t
	switch t {
	case types.TypeInt:
		result = types.TypeBigInt
	case types.TypeBigInt:
		result = types.TypeNumeric
	}
	return &Aggregate{Name: "sum", Params: []types.DataType{t}, Result: result, New: func() Accumulator {
		return &sumAcc{result: result}
	}}, true
}

type sumAcc struct {
	result types.DataType
	seen   bool
	i      int64
	d      decimal.Decimal
	f      float64
}

func (a *sumAcc) Add(args []types.Value) error {
	v := args[0]
	a.seen = true
	switch a.result {
	case types.TypeBigInt:
		r := a.i + v.I64
		if (r > a.i) != (v.I64 > 0) {
			return pgerr.OutOfRange("bigint")
		}
		a.i = r
	case types.TypeNumeric:
		if v.Type == types.TypeNumeric {
			a.d = a.d.Add(v.D)
		} else {
			a.d = a.d.Add(decimal.NewFromInt(v.I64))
		}
	case types.TypeFloat:
		a.f += v.F64
	}
	return nil
}

func (a *sumAcc) Result() types.Value {
	if !a.seen {
		return types.Null()
	}
	switch a.result {
	case types.TypeBigInt:
		return types.BigInt(a.i)
	case types.TypeNumeric:
		return types.Numeric(a.d)
	default:
		return types.Float(a.f)
	}
}

func avgAgg(args []types.DataType) (*Aggregate, bool) {
	t, ok := numericArg(args)
	if !ok {
		return nil, false
	}
	result := types.TypeNumeric
	if t == types.TypeFloat {
		result = types.TypeFloat
	}
	return &Aggregate{Name: "avg", Params: []types.DataType{t}, Result: result, New: func() Accumulator {
		return &avgAcc{float: result == types.TypeFloat}
	}}, true
}

type avgAcc struct {
	float bool
	n     int64
	d     decimal.Decimal
	f     float64
}

func (a *avgAcc) Add(args []types.Value) error {
	v := args[0]
	a.n++
	switch v.Type {
	case types.TypeFloat:
		a.f += v.F64
	case types.TypeNumeric:
		a.d = a.d.Add(v.D)
	default:
		a.d = a.d.Add(decimal.NewFromInt(v.I64))
	}
	return nil
}

func (a *avgAcc) Result() types.Value {
	if a.n == 0 {
		return types.Null()
	}
	if a.float {
		return types.Float(a.f / float64(a.n))
	}
	return types.Numeric(types.NumericDiv(a.d, decimal.NewFromInt(a.n)))
}

func extremeAgg(name string, dir int) func([]types.DataType) (*Aggregate, bool) {
	return func(args []types.DataType) (*Aggregate, bool) {
		if len(args) != 1 {
			return nil, false
		}
		t := settle(args[0])
		return &Aggregate{Name: name, Params: []types.DataType{t}, Result: t, New: func() Accumulator {
			return &extremeAcc{dir: dir, best: types.Null()}
		}}, true
	}
}

type extremeAcc struct {
	dir  int
	best types.Value
}

func (a *extremeAcc) Add(args []types.Value) error {
	v := args[0]
	if a.best.IsNull() {
		a.best = v
		return nil
	}
	c, err := types.Compare(v, a.best)
	if err != nil {
		return err
	}
	if c*a.dir > 0 {
		a.best = v
	}
	return nil
}

func (a *extremeAcc) Result() types.Value { return a.best }

func boolAgg(name string, and bool) func([]types.DataType) (*Aggregate, bool) {
	return func(args []types.DataType) (*Aggregate, bool) {
		if len(args) != 1 || !(args[0] == types.TypeBool || args[0].IsUntyped()) {
			return nil, false
		}
		return &Aggregate{Name: name, Params: []types.DataType{types.TypeBool}, Result: types.TypeBool, New: func() Accumulator {
			return &boolAcc{and: and}
		}}, true
	}
}

type boolAcc struct {
	and  bool
	seen bool
	acc  bool
}

func (a *boolAcc) Add(args []types.Value) error {
	if !a.seen {
		a.seen, a.acc = true, args[0].B
		return nil
	}
	if a.and {
		a.acc = a.acc && args[0].B
	} else {
		a.acc = a.acc || args[0].B
	}
	return nil
}

func (a *boolAcc) Result() types.Value {
	if !a.seen {
		return types.Null()
	}
	return types.Bool(a.acc)
}

func stringAgg(args []types.DataType) (*Aggregate, bool) {
	if len(args) != 2 {
		return nil, false
	}
	for _, t := range args {
		if !types.CanCoerce(t, types.TypeString, types.CoerceImplicit) {
			return nil, false
		}
	}
	return &Aggregate{
		Name:   "string_agg",
		Params: []types.DataType{types.TypeString, types.TypeString},
		Result: types.TypeString,
		New:    func() Accumulator { return &stringAcc{} },
	}, true
}

type stringAcc struct {
	seen bool
	sb   strings.Builder
}

func (a *stringAcc) Add(args []types.Value) error {
	if a.seen && !args[1].IsNull() {
		a.sb.WriteString(args[1].S)
	}
	a.seen = true
	a.sb.WriteString(args[0].S)
	return nil
}

func (a *stringAcc) Result() types.Value {
	if !a.seen {
		return types.Null()
	}
	return types.Text(a.sb.String())
}

// numericArg accepts one numeric argument. A bare NULL counts as integer;
// an untyped string is refused, as sum('1') is ambiguous in PostgreSQL.
func numericArg(args []types.DataType) (types.DataType, bool) {
	if len(args) != 1 {
		return types.TypeNull, false
	}
	switch t := args[0]; {
	case t.IsNumeric():
		return t, true
	case t == types.TypeNull:
		return types.TypeInt, true
	}
	return types.TypeNull, false
}

// settle gives untyped arguments a concrete type.
func settle(t types.DataType) types.DataType {
	if t.IsUntyped() {
		return types.TypeString
	}
	return t
}
