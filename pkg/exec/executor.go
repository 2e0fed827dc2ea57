// pkg/exec/executor.go
//
// Bottom-up plan executor. Every operator fully materializes its input
// before emitting output; there is no pipelining and no spill path. A plan
// whose intermediate results exceed memory is a fatal resource error, not
// something the executor recovers from.
package exec

import (
	"errors"
	"fmt"

	"grizzly/pkg/database"
	"grizzly/pkg/plan"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

var (
	ErrEmptyPlan       = errors.New("empty plan")
	ErrUnsupportedNode = errors.New("unsupported plan node")
)

// Result is a materialized operator output: a schema plus rows in schema
// order. Outer joins pad unmatched sides with typed nulls; nulls therefore
// appear in Results but never in table storage.
type Result struct {
	Schema *schema.Schema
	Rows   [][]types.Value
}

// Executor runs optimized plans against one database.
type Executor struct {
	db *database.Database
}

// New creates an executor bound to db.
func New(db *database.Database) *Executor {
	return &Executor{db: db}
}

// Execute materializes the plan's result.
func (e *Executor) Execute(p *plan.QueryPlan) (*Result, error) {
	if p == nil || p.Root == nil {
		return nil, ErrEmptyPlan
	}
	return e.run(p.Root)
}

func (e *Executor) run(n plan.Node) (*Result, error) {
	switch node := n.(type) {
	case *plan.Scan:
		return e.runScan(node)
	case *plan.IndexScan:
		return e.runIndexScan(node)
	case *plan.Filter:
		return e.runFilter(node)
	case *plan.Projection:
		return e.runProjection(node)
	case *plan.Limit:
		return e.runLimit(node)
	case *plan.Join:
		return e.runJoin(node)
	case *plan.Aggregate:
		return e.runAggregate(node)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedNode, n)
	}
}

func (e *Executor) runScan(node *plan.Scan) (*Result, error) {
	tbl, err := e.db.GetTable(node.Table)
	if err != nil {
		return nil, err
	}
	out := &Result{Schema: tbl.Schema(), Rows: make([][]types.Value, 0, tbl.RowCount())}
	tbl.Rows(func(_ int, row []types.Value) bool {
		out.Rows = append(out.Rows, append([]types.Value(nil), row...))
		return true
	})
	return out, nil
}

func (e *Executor) runIndexScan(node *plan.IndexScan) (*Result, error) {
	tbl, err := e.db.GetTable(node.Table)
	if err != nil {
		return nil, err
	}
	idx, err := tbl.Index(node.Index)
	if err != nil {
		return nil, err
	}

	var rowIDs []uint32
	switch {
	case node.Eq != nil:
		rowIDs, _ = idx.Tree.Search(*node.Eq)
	case node.Low != nil && node.High != nil:
		rowIDs = idx.Tree.RangeScan(*node.Low, *node.High).Collect()
	default:
		return nil, fmt.Errorf("index scan on %s.%s has neither point nor range bounds",
			node.Table, node.Index)
	}

	out := &Result{Schema: tbl.Schema(), Rows: make([][]types.Value, 0, len(rowIDs))}
	for _, id := range rowIDs {
		row, err := tbl.GetRow(int(id))
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (e *Executor) runFilter(node *plan.Filter) (*Result, error) {
	in, err := e.run(node.Child)
	if err != nil {
		return nil, err
	}
	out := &Result{Schema: in.Schema}
	for _, row := range in.Rows {
		v, err := node.Predicate.Eval(in.Schema, row)
		if err != nil {
			return nil, err
		}
		if v.Type() != types.Bool {
			return nil, fmt.Errorf("%w: filter predicate %s evaluated to %s",
				plan.ErrTypeError, node.Predicate, v.Type())
		}
		if !v.IsNull() && v.Bool() {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func (e *Executor) runProjection(node *plan.Projection) (*Result, error) {
	in, err := e.run(node.Child)
	if err != nil {
		return nil, err
	}
	defs := make([]schema.ColumnDef, len(node.Columns))
	positions := make([]int, len(node.Columns))
	for i, name := range node.Columns {
		ci, err := in.Schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		defs[i] = in.Schema.Column(ci)
		positions[i] = ci
	}
	s, err := schema.New(defs)
	if err != nil {
		return nil, err
	}

	out := &Result{Schema: s, Rows: make([][]types.Value, 0, len(in.Rows))}
	for _, row := range in.Rows {
		projected := make([]types.Value, len(positions))
		for i, ci := range positions {
			projected[i] = row[ci]
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, nil
}

func (e *Executor) runLimit(node *plan.Limit) (*Result, error) {
	in, err := e.run(node.Child)
	if err != nil {
		return nil, err
	}
	n := node.N
	if n < 0 {
		n = 0
	}
	if int64(len(in.Rows)) > n {
		in.Rows = in.Rows[:n]
	}
	return in, nil
}
