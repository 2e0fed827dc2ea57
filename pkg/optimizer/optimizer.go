// pkg/optimizer/optimizer.go
//
// Rule-based plan rewriter. Optimization is a total function: every rule
// either applies or is skipped, so Optimize never fails and running it on
// an already-optimized plan is a no-op.
package optimizer

import (
	"grizzly/pkg/database"
	"grizzly/pkg/plan"
)

const (
	// IndexScanMaxSelectivity is the largest estimated match fraction for
	// which an index probe still beats a full scan. Above it the random
	// access pattern of index lookups loses to a sequential read.
	IndexScanMaxSelectivity = 0.30

	// HashBuildMaxRows bounds the build side of a hash join. Beyond it the
	// planner falls back to a nested loop rather than committing to an
	// unbounded in-memory hash table.
	HashBuildMaxRows = 1_000_000
)

// Optimizer rewrites query plans against one database's tables and indexes.
type Optimizer struct {
	db *database.Database
}

// New creates an optimizer bound to db.
func New(db *database.Database) *Optimizer {
	return &Optimizer{db: db}
}

// Optimize rewrites the plan in place: annotate scan cardinalities, push
// predicates toward the scans, swap eligible scan+filter pairs for index
// scans, then pick join strategies.
func (o *Optimizer) Optimize(p *plan.QueryPlan) {
	if p == nil || p.Root == nil {
		return
	}
	p.Root = o.annotate(p.Root)
	p.Root = o.pushDownPredicates(p.Root)
	p.Root = o.selectIndexes(p.Root)
	p.Root = o.chooseJoinStrategies(p.Root)
}

// annotate fills scan row counts and filter selectivities from table
// statistics.
func (o *Optimizer) annotate(n plan.Node) plan.Node {
	switch node := n.(type) {
	case *plan.Scan:
		if t, err := o.db.GetTable(node.Table); err == nil {
			node.Rows = int64(t.RowCount())
		}
		return node
	case *plan.Filter:
		node.Child = o.annotate(node.Child)
		if node.Selectivity == 0 {
			node.Selectivity = o.estimateSelectivity(node.Predicate, node.Child)
		}
		return node
	case *plan.Projection:
		node.Child = o.annotate(node.Child)
		return node
	case *plan.Limit:
		node.Child = o.annotate(node.Child)
		return node
	case *plan.Aggregate:
		node.Child = o.annotate(node.Child)
		return node
	case *plan.Join:
		node.Left = o.annotate(node.Left)
		node.Right = o.annotate(node.Right)
		return node
	default:
		return n
	}
}

// pushDownPredicates moves filters toward the scans that feed them. A
// filter never moves past a node that does not produce the columns it
// references.
func (o *Optimizer) pushDownPredicates(n plan.Node) plan.Node {
	switch node := n.(type) {
	case *plan.Filter:
		node.Child = o.pushDownPredicates(node.Child)

		switch child := node.Child.(type) {
		case *plan.Projection:
			// Filter(Project(X)) -> Project(Filter(X)): everything the
			// projection keeps already exists below it.
			pushed := &plan.Filter{
				Child:       child.Child,
				Predicate:   node.Predicate,
				Selectivity: node.Selectivity,
			}
			child.Child = o.pushDownPredicates(pushed)
			return child

		case *plan.Filter:
			// Merge stacked filters into one conjunction.
			merged := &plan.Filter{
				Child: child.Child,
				Predicate: &plan.Binary{
					Op:    plan.OpAnd,
					Left:  node.Predicate,
					Right: child.Predicate,
				},
				Selectivity: mulSelectivity(node.Selectivity, child.Selectivity),
			}
			return o.pushDownPredicates(merged)

		case *plan.Join:
			refs := map[string]struct{}{}
			node.Predicate.Columns(refs)
			if covers(o.producedColumns(child.Left), refs) {
				child.Left = o.pushDownPredicates(&plan.Filter{
					Child: child.Left, Predicate: node.Predicate, Selectivity: node.Selectivity,
				})
				return child
			}
			if covers(o.producedColumns(child.Right), refs) {
				child.Right = o.pushDownPredicates(&plan.Filter{
					Child: child.Right, Predicate: node.Predicate, Selectivity: node.Selectivity,
				})
				return child
			}
			return node

		default:
			return node
		}

	case *plan.Projection:
		node.Child = o.pushDownPredicates(node.Child)
		return node
	case *plan.Limit:
		node.Child = o.pushDownPredicates(node.Child)
		return node
	case *plan.Aggregate:
		node.Child = o.pushDownPredicates(node.Child)
		return node
	case *plan.Join:
		node.Left = o.pushDownPredicates(node.Left)
		node.Right = o.pushDownPredicates(node.Right)
		return node
	default:
		return n
	}
}

// chooseJoinStrategies picks hash vs nested loop per join node. The hash
// table always builds on the smaller estimated side (the executor enforces
// that); the rule here is only whether that side fits in memory at all.
func (o *Optimizer) chooseJoinStrategies(n plan.Node) plan.Node {
	switch node := n.(type) {
	case *plan.Join:
		node.Left = o.chooseJoinStrategies(node.Left)
		node.Right = o.chooseJoinStrategies(node.Right)
		smaller := node.Left.EstimatedRows()
		if r := node.Right.EstimatedRows(); r < smaller {
			smaller = r
		}
		if smaller <= HashBuildMaxRows {
			node.Strategy = plan.HashStrategy
		} else {
			node.Strategy = plan.NestedLoop
		}
		return node
	case *plan.Filter:
		node.Child = o.chooseJoinStrategies(node.Child)
		return node
	case *plan.Projection:
		node.Child = o.chooseJoinStrategies(node.Child)
		return node
	case *plan.Limit:
		node.Child = o.chooseJoinStrategies(node.Child)
		return node
	case *plan.Aggregate:
		node.Child = o.chooseJoinStrategies(node.Child)
		return node
	default:
		return n
	}
}

// producedColumns returns the set of column names a subtree emits.
func (o *Optimizer) producedColumns(n plan.Node) map[string]struct{} {
	out := map[string]struct{}{}
	switch node := n.(type) {
	case *plan.Scan:
		o.tableColumns(node.Table, out)
	case *plan.IndexScan:
		o.tableColumns(node.Table, out)
	case *plan.Projection:
		for _, c := range node.Columns {
			out[c] = struct{}{}
		}
	case *plan.Filter:
		return o.producedColumns(node.Child)
	case *plan.Limit:
		return o.producedColumns(node.Child)
	case *plan.Join:
		for c := range o.producedColumns(node.Left) {
			out[c] = struct{}{}
		}
		for c := range o.producedColumns(node.Right) {
			out[c] = struct{}{}
		}
	case *plan.Aggregate:
		for _, c := range node.GroupBy {
			out[c] = struct{}{}
		}
		for _, a := range node.Aggs {
			name := a.As
			if name == "" {
				name = a.Column
			}
			out[name] = struct{}{}
		}
	}
	return out
}

func (o *Optimizer) tableColumns(table string, out map[string]struct{}) {
	t, err := o.db.GetTable(table)
	if err != nil {
		return
	}
	for _, col := range t.Schema().Columns() {
		out[col.Name] = struct{}{}
	}
}

func covers(produced, needed map[string]struct{}) bool {
	for c := range needed {
		if _, ok := produced[c]; !ok {
			return false
		}
	}
	return true
}

func mulSelectivity(a, b float64) float64 {
	if a <= 0 || a > 1 {
		a = plan.DefaultFilterSelectivity
	}
	if b <= 0 || b > 1 {
		b = plan.DefaultFilterSelectivity
	}
	return a * b
}
