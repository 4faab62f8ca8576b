package exec

import (
	"pgmem/internal/functions"
	"pgmem/internal/plan"
	"pgmem/internal/types"
)

// group is the running state of one group: its key values and one
// accumulator per aggregate call.
type group struct {
	values types.Row
	accs   []functions.Accumulator
	seen   []map[string]struct{} // per DISTINCT call
}

func newGroup(n *plan.Aggregate, values types.Row) *group {
	g := &group{values: values, accs: make([]functions.Accumulator, len(n.Aggs)), seen: make([]map[string]struct{}, len(n.Aggs))}
	for i, call := range n.Aggs {
		g.accs[i] = call.Agg.New()
		if call.Distinct {
			g.seen[i] = make(map[string]struct{})
		}
	}
	return g
}

func (g *group) row() types.Row {
	out := make(types.Row, 0, len(g.values)+len(g.accs))
	out = append(out, g.values...)
	for _, a := range g.accs {
		out = append(out, a.Result())
	}
	return out
}

// openAggregate consumes its whole input, then replays one row per group in
// order of first appearance. NULL group keys form a single group.
func (ex *Executor) openAggregate(n *plan.Aggregate, outer *Env) (Iterator, error) {
	in, err := ex.Open(n.Input, outer)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	index := make(map[string]*group)
	var order []*group
	for {
		row, ok, err := in.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		env := &Env{Row: row, Outer: outer}
		keys := make(types.Row, len(n.Groups))
		for i, e := range n.Groups {
			if keys[i], err = ex.Eval(e, env); err != nil {
				return nil, err
			}
		}
		k := types.RowKey(keys)
		g, found := index[k]
		if !found {
			g = newGroup(n, keys)
			index[k] = g
			order = append(order, g)
		}
		if err := ex.accumulate(n, g, env); err != nil {
			return nil, err
		}
	}

	if len(order) == 0 && len(n.Groups) == 0 {
		order = append(order, newGroup(n, nil))
	}
	rows := make([]types.Row, len(order))
	for i, g := range order {
		rows[i] = g.row()
	}
	return &sliceIter{rows: rows}, nil
}

func (ex *Executor) accumulate(n *plan.Aggregate, g *group, env *Env) error {
	for i, call := range n.Aggs {
		args := make([]types.Value, len(call.Args))
		for j, a := range call.Args {
			v, err := ex.Eval(a, env)
			if err != nil {
				return err
			}
			args[j] = v
		}
		if len(args) > 0 && args[0].IsNull() {
			continue
		}
		if call.Distinct {
			k := types.RowKey(args)
			if _, dup := g.seen[i][k]; dup {
				continue
			}
			g.seen[i][k] = struct{}{}
		}
		if err := g.accs[i].Add(args); err != nil {
			return err
		}
	}
	return nil
}
