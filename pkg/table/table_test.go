// pkg/table/table_test.go
package table

import (
	"errors"
	"fmt"
	"testing"

	"grizzly/pkg/column"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

func ordersTable(t *testing.T) *Table {
	t.Helper()
	s := schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int32},
		{Name: "user_id", Type: types.Int32},
		{Name: "region", Type: types.Text},
		{Name: "amount", Type: types.Float64},
	})
	return New("orders", s)
}

func insertOrders(t *testing.T, tbl *Table, n int) {
	t.Helper()
	regions := []string{"us-east", "us-west", "eu-central", "ap-south"}
	for i := 0; i < n; i++ {
		err := tbl.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewInt32(int32(i % 100)),
			types.NewText(regions[i%len(regions)]),
			types.NewFloat64(float64(i) + 0.5),
		})
		if err != nil {
			t.Fatalf("InsertRow(%d): %v", i, err)
		}
	}
}

func TestInsertRowInvariant(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 10)
	if tbl.RowCount() != 10 {
		t.Fatalf("RowCount = %d, want 10", tbl.RowCount())
	}
	for i := 0; i < tbl.Schema().NumColumns(); i++ {
		if tbl.Column(i).Len() != 10 {
			t.Errorf("column %d length %d != row count 10", i, tbl.Column(i).Len())
		}
	}
}

func TestInsertRowRejectsBadRows(t *testing.T) {
	tbl := ordersTable(t)
	err := tbl.InsertRow([]types.Value{types.NewInt32(1)})
	if !errors.Is(err, schema.ErrSchemaViolation) {
		t.Errorf("short row: expected ErrSchemaViolation, got %v", err)
	}
	err = tbl.InsertRow([]types.Value{
		types.NewInt32(1), types.NewInt64(2), types.NewText("x"), types.NewFloat64(1),
	})
	if !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("wrong tag: expected ErrTypeMismatch, got %v", err)
	}
	if tbl.RowCount() != 0 {
		t.Errorf("failed inserts must not change row count, got %d", tbl.RowCount())
	}
}

func TestUpdateRow(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 5)
	err := tbl.UpdateRow(2, []types.Value{
		types.NewInt32(2), types.NewInt32(999), types.NewText("eu-central"), types.NewFloat64(77),
	})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	row, _ := tbl.GetRow(2)
	if row[1].Int32() != 999 || row[3].Float64() != 77 {
		t.Errorf("updated row = %v", row)
	}
	if err := tbl.UpdateRow(99, row); !errors.Is(err, column.ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestDeleteRowShifts(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 5)
	if err := tbl.DeleteRow(1); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if tbl.RowCount() != 4 {
		t.Fatalf("RowCount = %d, want 4", tbl.RowCount())
	}
	row, _ := tbl.GetRow(1)
	if row[0].Int32() != 2 {
		t.Errorf("row 1 after delete = %v, want old row 2", row)
	}
}

func TestIndexLiveMaintenance(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 100)
	if err := tbl.CreateIndex("idx_user", "user_id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	// Inserted after index creation; the index must see it.
	tbl.InsertRow([]types.Value{
		types.NewInt32(100), types.NewInt32(42), types.NewText("us-east"), types.NewFloat64(1),
	})
	idx, _ := tbl.Index("idx_user")
	ids, ok := idx.Tree.Search(types.NewInt32(42))
	if !ok {
		t.Fatal("Search(42) missed")
	}
	if len(ids) != 2 { // rows 42 and 100
		t.Errorf("Search(42) = %v, want 2 rows", ids)
	}

	// Update moves a row to a different key.
	tbl.UpdateRow(100, []types.Value{
		types.NewInt32(100), types.NewInt32(7), types.NewText("us-east"), types.NewFloat64(1),
	})
	ids, _ = idx.Tree.Search(types.NewInt32(42))
	if len(ids) != 1 {
		t.Errorf("after update, Search(42) = %v, want 1 row", ids)
	}

	// Delete triggers a rebuild; the index must match a fresh scan.
	tbl.DeleteRow(0)
	idx, _ = tbl.Index("idx_user")
	ids, _ = idx.Tree.Search(types.NewInt32(7))
	for _, id := range ids {
		row, err := tbl.GetRow(int(id))
		if err != nil {
			t.Fatalf("index points at bad row %d: %v", id, err)
		}
		if row[1].Int32() != 7 {
			t.Errorf("index row %d has user_id %d, want 7", id, row[1].Int32())
		}
	}
}

func TestCreateIndexErrors(t *testing.T) {
	tbl := ordersTable(t)
	if err := tbl.CreateIndex("idx", "nope"); !errors.Is(err, schema.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
	tbl.CreateIndex("idx", "user_id")
	if err := tbl.CreateIndex("idx", "region"); !errors.Is(err, ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 4) // amounts 0.5, 1.5, 2.5, 3.5

	res, err := tbl.Aggregate("amount", AggSum)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.Value.Float64() != 8.0 {
		t.Errorf("SUM = %v, want 8.0", res.Value)
	}
	if res.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", res.RowCount)
	}

	res, _ = tbl.Aggregate("amount", AggAvg)
	if res.Value.Float64() != 2.0 {
		t.Errorf("AVG = %v, want 2.0", res.Value)
	}

	res, _ = tbl.Aggregate("id", AggMax)
	if res.Value.Int32() != 3 {
		t.Errorf("MAX(id) = %v, want 3", res.Value)
	}

	res, _ = tbl.Aggregate("region", AggCount)
	if res.Value.Int64() != 4 {
		t.Errorf("COUNT = %v, want 4", res.Value)
	}

	if _, err := tbl.Aggregate("region", AggSum); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("SUM(text): expected ErrNotNumeric, got %v", err)
	}
}

func TestAggregateFilteredContributingRows(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 12)

	res, err := tbl.AggregateFiltered("amount", AggSum, func(rowID int, row []types.Value) bool {
		return row[2].Text() == "us-east" // rows 0, 4, 8
	})
	if err != nil {
		t.Fatalf("AggregateFiltered: %v", err)
	}
	if len(res.ContributingRows) != 3 {
		t.Fatalf("ContributingRows = %v, want 3 rows", res.ContributingRows)
	}

	// Auditability: recompute from the reported rows and compare.
	var recomputed float64
	for _, id := range res.ContributingRows {
		row, _ := tbl.GetRow(int(id))
		recomputed += row[3].Float64()
	}
	if recomputed != res.Value.Float64() {
		t.Errorf("recomputed %v != reported %v", recomputed, res.Value.Float64())
	}
}

func TestAggregateEmpty(t *testing.T) {
	tbl := ordersTable(t)
	if _, err := tbl.Aggregate("amount", AggAvg); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("AVG over empty table: expected ErrEmptyInput, got %v", err)
	}
	res, err := tbl.Aggregate("amount", AggCount)
	if err != nil || res.Value.Int64() != 0 {
		t.Errorf("COUNT over empty table: got (%v, %v), want 0", res.Value, err)
	}
}

func TestRowsEarlyStop(t *testing.T) {
	tbl := ordersTable(t)
	insertOrders(t, tbl, 10)
	seen := 0
	tbl.Rows(func(rowID int, row []types.Value) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Rows visited %d rows, want 3", seen)
	}
}

func TestManyColumnsRoundTrip(t *testing.T) {
	defs := make([]schema.ColumnDef, 0, 7)
	for i, typ := range []types.DataType{
		types.Int32, types.Int64, types.Float32, types.Float64,
		types.Bool, types.Text, types.Timestamp,
	} {
		defs = append(defs, schema.ColumnDef{Name: fmt.Sprintf("c%d", i), Type: typ})
	}
	tbl := New("alltypes", schema.MustNew(defs))
	want := []types.Value{
		types.NewInt32(-1), types.NewInt64(1 << 40), types.NewFloat32(0.5),
		types.NewFloat64(-2.25), types.NewBool(true), types.NewText("x"),
		types.NewTimestamp(1735689600000000),
	}
	if err := tbl.InsertRow(want); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	got, _ := tbl.GetRow(0)
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("column %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
