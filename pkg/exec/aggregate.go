// pkg/exec/aggregate.go
package exec

import (
	"fmt"
	"strings"

	"grizzly/internal/encoding"
	"grizzly/pkg/plan"
	"grizzly/pkg/schema"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

// runAggregate implements a hash group-by over the materialized child.
// Groups emit in first-seen row order so results are deterministic. With no
// GROUP BY the whole input is one group; an empty input then yields a single
// row of COUNT 0 and typed nulls.
func (e *Executor) runAggregate(node *plan.Aggregate) (*Result, error) {
	in, err := e.run(node.Child)
	if err != nil {
		return nil, err
	}

	groupIdx := make([]int, len(node.GroupBy))
	defs := make([]schema.ColumnDef, 0, len(node.GroupBy)+len(node.Aggs))
	for i, name := range node.GroupBy {
		ci, err := in.Schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		groupIdx[i] = ci
		defs = append(defs, in.Schema.Column(ci))
	}

	aggIdx := make([]int, len(node.Aggs))
	for i, spec := range node.Aggs {
		ci, err := in.Schema.ColumnIndex(spec.Column)
		if err != nil {
			return nil, err
		}
		aggIdx[i] = ci
		typ, err := aggOutputType(spec.Func, in.Schema.Column(ci).Type)
		if err != nil {
			return nil, err
		}
		name := spec.As
		if name == "" {
			name = spec.Column
		}
		defs = append(defs, schema.ColumnDef{Name: name, Type: typ})
	}
	outSchema, err := schema.New(defs)
	if err != nil {
		return nil, err
	}

	type group struct {
		keys []types.Value
		accs []*aggAcc
	}
	groups := make(map[string]*group)
	var order []string

	newGroup := func(row []types.Value) *group {
		g := &group{keys: make([]types.Value, len(groupIdx)), accs: make([]*aggAcc, len(node.Aggs))}
		for i, ci := range groupIdx {
			g.keys[i] = row[ci]
		}
		for i := range node.Aggs {
			g.accs[i] = &aggAcc{}
		}
		return g
	}

	// Each key component is length-framed: raw concatenation would let a
	// text value containing the separator byte shift bytes across component
	// boundaries and merge distinct groups.
	var keyBuf, cellBuf []byte
	for _, row := range in.Rows {
		keyBuf = keyBuf[:0]
		for _, ci := range groupIdx {
			cellBuf = row[ci].EncodeKey(cellBuf[:0])
			keyBuf = encoding.AppendBytes(keyBuf, cellBuf)
		}
		key := string(keyBuf)
		g, ok := groups[key]
		if !ok {
			g = newGroup(row)
			groups[key] = g
			order = append(order, key)
		}
		for i, ci := range aggIdx {
			if err := g.accs[i].observe(row[ci]); err != nil {
				return nil, err
			}
		}
	}

	// A global aggregate over zero rows still produces one row.
	if len(order) == 0 && len(node.GroupBy) == 0 {
		groups[""] = newGroup(nil)
		order = append(order, "")
	}

	out := &Result{Schema: outSchema, Rows: make([][]types.Value, 0, len(order))}
	for _, key := range order {
		g := groups[key]
		row := make([]types.Value, 0, len(defs))
		row = append(row, g.keys...)
		for i, spec := range node.Aggs {
			v, err := g.accs[i].final(spec.Func, in.Schema.Column(aggIdx[i]).Type)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// aggOutputType maps an aggregate function and its input column type to the
// result type. Integer SUM stays integral; AVG always widens to float.
func aggOutputType(fn string, in types.DataType) (types.DataType, error) {
	switch strings.ToUpper(fn) {
	case "COUNT":
		return types.Int64, nil
	case "AVG":
		if !in.IsNumeric() {
			return 0, fmt.Errorf("AVG(%s): %w", in, table.ErrNotNumeric)
		}
		return types.Float64, nil
	case "SUM":
		switch in {
		case types.Int32, types.Int64:
			return types.Int64, nil
		case types.Float32, types.Float64:
			return types.Float64, nil
		default:
			return 0, fmt.Errorf("SUM(%s): %w", in, table.ErrNotNumeric)
		}
	case "MIN", "MAX":
		return in, nil
	default:
		return 0, fmt.Errorf("%w: unknown aggregate %q", plan.ErrTypeError, fn)
	}
}

// aggAcc accumulates one aggregate over one group. Nulls coming out of
// outer joins are skipped and do not count.
type aggAcc struct {
	count int64
	sumI  int64
	sumF  float64
	min   types.Value
	max   types.Value
	seen  bool
}

func (a *aggAcc) observe(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	a.count++
	if f, ok := v.AsFloat(); ok {
		a.sumF += f
	}
	if i, ok := v.AsInt(); ok {
		a.sumI += i
	}
	if !a.seen {
		a.min, a.max, a.seen = v, v, true
		return nil
	}
	if c, err := v.Compare(a.min); err != nil {
		return err
	} else if c < 0 {
		a.min = v
	}
	if c, err := v.Compare(a.max); err != nil {
		return err
	} else if c > 0 {
		a.max = v
	}
	return nil
}

func (a *aggAcc) final(fn string, in types.DataType) (types.Value, error) {
	switch strings.ToUpper(fn) {
	case "COUNT":
		return types.NewInt64(a.count), nil
	case "SUM":
		if a.count == 0 {
			out, _ := aggOutputType("SUM", in)
			return types.Null(out), nil
		}
		switch in {
		case types.Int32, types.Int64:
			return types.NewInt64(a.sumI), nil
		default:
			return types.NewFloat64(a.sumF), nil
		}
	case "AVG":
		if a.count == 0 {
			return types.Null(types.Float64), nil
		}
		return types.NewFloat64(a.sumF / float64(a.count)), nil
	case "MIN":
		if !a.seen {
			return types.Null(in), nil
		}
		return a.min, nil
	case "MAX":
		if !a.seen {
			return types.Null(in), nil
		}
		return a.max, nil
	default:
		return types.Value{}, fmt.Errorf("%w: unknown aggregate %q", plan.ErrTypeError, fn)
	}
}
