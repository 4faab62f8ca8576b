// Package functions is the fixed registry of built-in scalar functions and
// aggregates. The planner resolves a call by name and argument types; the
// evaluator runs the resolved implementation.
package functions

import (
	"strings"
	"time"

	"pgmem/internal/types"
)

// Context supplies the session state a few functions read.
type Context interface {
	// Now is the statement timestamp, fixed for the whole statement.
	Now() time.Time
	// Setting returns a run-time parameter such as search_path.
	Setting(name string) string
}

// Builtin is one resolved scalar function overload.
type Builtin struct {
	Name     string
	Params   []types.DataType
	Variadic bool // the last parameter repeats
	Result   types.DataType
	// Strict functions return NULL when any argument is NULL without
	// calling Impl.
	Strict bool
	Impl   func(ctx Context, args []types.Value) (types.Value, error)
}

// Param returns the type argument i must be coerced to.
func (b *Builtin) Param(i int) types.DataType {
	if i >= len(b.Params) {
		return b.Params[len(b.Params)-1]
	}
	return b.Params[i]
}

func (b *Builtin) accepts(n int) bool {
	if b.Variadic {
		return n >= len(b.Params)-1
	}
	return n == len(b.Params)
}

// polymorphic resolvers build a Builtin for the argument types at hand.
type resolver func(args []types.DataType) (*Builtin, bool)

var (
	scalars     = map[string][]*Builtin{}
	polymorphic = map[string]resolver{}
)

func register(b *Builtin) {
	scalars[b.Name] = append(scalars[b.Name], b)
}

// Exists reports whether name is a known scalar function or aggregate.
func Exists(name string) bool {
	_, ok := scalars[name]
	if !ok {
		_, ok = polymorphic[name]
	}
	return ok || IsAggregate(name)
}

// LookupScalar resolves a scalar function call. Candidates whose parameters
// every argument converts to implicitly qualify; among them the one with the
// most exact type matches wins, earlier registrations breaking ties.
func LookupScalar(name string, args []types.DataType) (*Builtin, bool) {
	if r, ok := polymorphic[name]; ok {
		return r(args)
	}
	var best *Builtin
	bestScore := -1
	for _, b := range scalars[name] {
		if !b.accepts(len(args)) {
			continue
		}
		score, ok := 0, true
		for i, t := range args {
			p := b.Param(i)
			switch {
			case t == p:
				score++
			case !types.CanCoerce(t, p, types.CoerceImplicit):
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok && score > bestScore {
			best, bestScore = b, score
		}
	}
	return best, best != nil
}

// Signature renders name(type, ...) for error messages.
func Signature(schema, name string, args []types.DataType) string {
	var sb strings.Builder
	if schema != "" {
		sb.WriteString(schema)
		sb.WriteByte('.')
	}
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, t := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.Name())
	}
	sb.WriteByte(')')
	return sb.String()
}

// commonResolver builds resolvers for functions whose arguments all share
// one type that is also the result type, such as greatest.
func commonResolver(name string, impl func(ctx Context, args []types.Value) (types.Value, error)) resolver {
	return func(args []types.DataType) (*Builtin, bool) {
		if len(args) == 0 {
			return nil, false
		}
		t, ok := types.ResolveCommon(args)
		if !ok {
			return nil, false
		}
		if t == types.TypeNull {
			t = types.TypeString
		}
		return &Builtin{Name: name, Params: []types.DataType{t}, Variadic: true, Result: t, Impl: impl}, true
	}
}
