// pkg/exec/executor_test.go
package exec

import (
	"errors"
	"testing"

	"grizzly/pkg/database"
	"grizzly/pkg/optimizer"
	"grizzly/pkg/plan"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

func ordersDB(t *testing.T) *database.Database {
	t.Helper()
	db := database.New("exec_test")
	orders, err := db.CreateTable("orders", schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int32},
		{Name: "user_id", Type: types.Int32},
		{Name: "region", Type: types.Text},
		{Name: "amount", Type: types.Float64},
	}))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	regions := []string{"us-east", "us-west", "eu-central", "ap-south"}
	for i := 0; i < 400; i++ {
		orders.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewInt32(int32(i % 10)),
			types.NewText(regions[i%4]),
			types.NewFloat64(float64(i)),
		})
	}
	if err := orders.CreateIndex("idx_user", "user_id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	return db
}

func TestScanMaterializesAllRows(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Scan{Table: "orders"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 400 {
		t.Errorf("scan returned %d rows, want 400", len(res.Rows))
	}
	if res.Schema.NumColumns() != 4 {
		t.Errorf("scan schema has %d columns, want 4", res.Schema.NumColumns())
	}
}

func TestScanUnknownTable(t *testing.T) {
	db := ordersDB(t)
	_, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Scan{Table: "nope"}})
	if !errors.Is(err, database.ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestFilterExecution(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Filter{
		Child: &plan.Scan{Table: "orders"},
		Predicate: &plan.Binary{Op: plan.OpEq,
			Left:  &plan.ColumnRef{Name: "user_id"},
			Right: &plan.Literal{Value: types.NewInt32(3)},
		},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 40 {
		t.Fatalf("filter returned %d rows, want 40", len(res.Rows))
	}
	for _, row := range res.Rows {
		if row[1].Int32() != 3 {
			t.Fatalf("row passed filter with user_id=%d", row[1].Int32())
		}
	}
}

func TestIndexScanMatchesFullScan(t *testing.T) {
	db := ordersDB(t)
	ex := New(db)

	filtered, err := ex.Execute(&plan.QueryPlan{Root: &plan.Filter{
		Child: &plan.Scan{Table: "orders"},
		Predicate: &plan.Binary{Op: plan.OpEq,
			Left:  &plan.ColumnRef{Name: "user_id"},
			Right: &plan.Literal{Value: types.NewInt32(7)},
		},
	}})
	if err != nil {
		t.Fatalf("full scan: %v", err)
	}

	eq := types.NewInt32(7)
	indexed, err := ex.Execute(&plan.QueryPlan{Root: &plan.IndexScan{
		Table: "orders", Index: "idx_user", Column: "user_id", Eq: &eq,
	}})
	if err != nil {
		t.Fatalf("index scan: %v", err)
	}

	if len(indexed.Rows) != len(filtered.Rows) {
		t.Fatalf("index scan returned %d rows, full scan %d", len(indexed.Rows), len(filtered.Rows))
	}
	seen := map[int32]bool{}
	for _, row := range indexed.Rows {
		seen[row[0].Int32()] = true
	}
	for _, row := range filtered.Rows {
		if !seen[row[0].Int32()] {
			t.Errorf("index scan missing row id=%d", row[0].Int32())
		}
	}
}

func TestIndexScanRange(t *testing.T) {
	db := ordersDB(t)
	low, high := types.NewInt32(2), types.NewInt32(4)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.IndexScan{
		Table: "orders", Index: "idx_user", Column: "user_id", Low: &low, High: &high,
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 120 { // user_ids 2, 3, 4: 40 rows each
		t.Errorf("range scan returned %d rows, want 120", len(res.Rows))
	}
	for _, row := range res.Rows {
		if uid := row[1].Int32(); uid < 2 || uid > 4 {
			t.Fatalf("row outside range: user_id=%d", uid)
		}
	}
}

func TestProjectionAndLimit(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Limit{
		N: 5,
		Child: &plan.Projection{
			Child:   &plan.Scan{Table: "orders"},
			Columns: []string{"region", "amount"},
		},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 5 {
		t.Errorf("limit returned %d rows, want 5", len(res.Rows))
	}
	if res.Schema.NumColumns() != 2 || res.Schema.Column(0).Name != "region" {
		t.Errorf("projected schema = %s", res.Schema)
	}
	if res.Rows[0][1].Type() != types.Float64 {
		t.Errorf("projected amount type = %s", res.Rows[0][1].Type())
	}
}

func TestProjectionUnknownColumn(t *testing.T) {
	db := ordersDB(t)
	_, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Projection{
		Child:   &plan.Scan{Table: "orders"},
		Columns: []string{"no_such"},
	}})
	if !errors.Is(err, schema.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestGroupByAggregate(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Aggregate{
		Child:   &plan.Scan{Table: "orders"},
		GroupBy: []string{"region"},
		Aggs: []plan.AggSpec{
			{Func: "COUNT", Column: "id", As: "n"},
			{Func: "SUM", Column: "amount", As: "total"},
			{Func: "MIN", Column: "amount", As: "lo"},
		},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("group by region returned %d groups, want 4", len(res.Rows))
	}
	// Groups emit in first-seen order; us-east holds amounts 0, 4, 8, ...
	first := res.Rows[0]
	if first[0].Text() != "us-east" {
		t.Errorf("first group = %s, want us-east", first[0].Text())
	}
	if first[1].Int64() != 100 {
		t.Errorf("COUNT(us-east) = %d, want 100", first[1].Int64())
	}
	wantSum := 0.0
	for i := 0; i < 400; i += 4 {
		wantSum += float64(i)
	}
	if first[2].Float64() != wantSum {
		t.Errorf("SUM(us-east) = %v, want %v", first[2].Float64(), wantSum)
	}
	if first[3].Float64() != 0 {
		t.Errorf("MIN(us-east) = %v, want 0", first[3].Float64())
	}
}

func TestGroupByKeysWithEmbeddedNul(t *testing.T) {
	// Composite keys must not merge when a text value contains bytes that
	// could masquerade as a component boundary: ("", "\x00\x05") and
	// ("\x00\x05", "") are distinct tuples.
	db := database.New("nul_keys")
	tbl, err := db.CreateTable("events", schema.MustNew([]schema.ColumnDef{
		{Name: "a", Type: types.Text},
		{Name: "b", Type: types.Text},
		{Name: "n", Type: types.Int64},
	}))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rows := [][2]string{
		{"", "\x00\x05"},
		{"\x00\x05", ""},
		{"", "\x00\x05"},
	}
	for i, r := range rows {
		tbl.InsertRow([]types.Value{
			types.NewText(r[0]),
			types.NewText(r[1]),
			types.NewInt64(int64(i + 1)),
		})
	}

	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Aggregate{
		Child:   &plan.Scan{Table: "events"},
		GroupBy: []string{"a", "b"},
		Aggs: []plan.AggSpec{
			{Func: "COUNT", Column: "n", As: "cnt"},
			{Func: "SUM", Column: "n", As: "total"},
		},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("group by (a, b) returned %d groups, want 2", len(res.Rows))
	}
	// First-seen order: ("", "\x00\x05") holds rows 1 and 3.
	if got := res.Rows[0][2].Int64(); got != 2 {
		t.Errorf("COUNT of first group = %d, want 2", got)
	}
	if got := res.Rows[0][3].Int64(); got != 4 {
		t.Errorf("SUM of first group = %d, want 4", got)
	}
	if got := res.Rows[1][3].Int64(); got != 2 {
		t.Errorf("SUM of second group = %d, want 2", got)
	}
}

func TestGlobalAggregateOverEmptyInput(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Aggregate{
		Child: &plan.Filter{
			Child: &plan.Scan{Table: "orders"},
			Predicate: &plan.Binary{Op: plan.OpEq,
				Left:  &plan.ColumnRef{Name: "user_id"},
				Right: &plan.Literal{Value: types.NewInt32(-1)},
			},
		},
		Aggs: []plan.AggSpec{
			{Func: "COUNT", Column: "id", As: "n"},
			{Func: "AVG", Column: "amount", As: "mean"},
		},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("empty global aggregate returned %d rows, want 1", len(res.Rows))
	}
	if res.Rows[0][0].Int64() != 0 {
		t.Errorf("COUNT over empty input = %d, want 0", res.Rows[0][0].Int64())
	}
	if !res.Rows[0][1].IsNull() {
		t.Errorf("AVG over empty input = %v, want NULL", res.Rows[0][1])
	}
}

func TestOptimizedPlanExecutes(t *testing.T) {
	db := ordersDB(t)
	p := &plan.QueryPlan{Root: &plan.Filter{
		Child: &plan.Scan{Table: "orders"},
		Predicate: &plan.Binary{Op: plan.OpAnd,
			Left: &plan.Binary{Op: plan.OpEq,
				Left:  &plan.ColumnRef{Name: "user_id"},
				Right: &plan.Literal{Value: types.NewInt32(7)},
			},
			Right: &plan.Binary{Op: plan.OpEq,
				Left:  &plan.ColumnRef{Name: "region"},
				Right: &plan.Literal{Value: types.NewText("ap-south")},
			},
		},
	}}
	optimizer.New(db).Optimize(p)

	res, err := New(db).Execute(p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// user_id 7 rows are ids 7, 17, 27, ...; ids ending in 7 have id%4 == 3
	// when id%10 == 7 and id%20 == 7, giving ap-south on half of them.
	for _, row := range res.Rows {
		if row[1].Int32() != 7 || row[2].Text() != "ap-south" {
			t.Fatalf("row escaped pushed predicate: %v", row)
		}
	}
	if len(res.Rows) == 0 {
		t.Error("expected matching rows")
	}
}

func TestLimitNegative(t *testing.T) {
	db := ordersDB(t)
	res, err := New(db).Execute(&plan.QueryPlan{Root: &plan.Limit{
		N:     -3,
		Child: &plan.Scan{Table: "orders"},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("negative limit returned %d rows, want 0", len(res.Rows))
	}
}

func TestEmptyPlan(t *testing.T) {
	db := ordersDB(t)
	if _, err := New(db).Execute(nil); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}
	if _, err := New(db).Execute(&plan.QueryPlan{}); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}
}
