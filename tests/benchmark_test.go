package tests

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"grizzly/pkg/database"
	"grizzly/pkg/exec"
	"grizzly/pkg/plan"
	"grizzly/pkg/schema"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

// The benchmarks pair each grizzly operation with the equivalent SQL run
// through sqlite3, as a sanity baseline for the columnar engine.

func benchTable(b *testing.B, rows int) (*database.Database, *table.Table) {
	b.Helper()
	db := database.New("bench")
	tbl, err := db.CreateTable("bench", schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int32},
		{Name: "name", Type: types.Text},
		{Name: "value", Type: types.Int64},
	}))
	if err != nil {
		b.Fatalf("CreateTable: %v", err)
	}
	for i := 0; i < rows; i++ {
		tbl.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewText(fmt.Sprintf("name%d", i)),
			types.NewInt64(int64(i * 10)),
		})
	}
	return db, tbl
}

func benchSQLite(b *testing.B, rows int) *sql.DB {
	b.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("open sqlite: %v", err)
	}
	b.Cleanup(func() { db.Close() })

	if _, err := db.Exec("CREATE TABLE bench (id INT PRIMARY KEY, name TEXT, value INT)"); err != nil {
		b.Fatalf("CREATE TABLE: %v", err)
	}
	tx, _ := db.Begin()
	for i := 0; i < rows; i++ {
		tx.Exec(fmt.Sprintf("INSERT INTO bench VALUES (%d, 'name%d', %d)", i, i, i*10))
	}
	tx.Commit()
	return db
}

func BenchmarkInsert_Grizzly(b *testing.B) {
	_, tbl := benchTable(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := tbl.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewText(fmt.Sprintf("name%d", i)),
			types.NewInt64(int64(i * 10)),
		})
		if err != nil {
			b.Fatalf("InsertRow failed at iteration %d: %v", i, err)
		}
	}
}

func BenchmarkInsert_SQLite(b *testing.B) {
	db := benchSQLite(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := db.Exec(fmt.Sprintf("INSERT INTO bench VALUES (%d, 'name%d', %d)", i, i, i*10))
		if err != nil {
			b.Fatalf("INSERT failed: %v", err)
		}
	}
}

func BenchmarkIndexedLookup_Grizzly(b *testing.B) {
	db, tbl := benchTable(b, 10000)
	if err := tbl.CreateIndex("idx_id", "id"); err != nil {
		b.Fatalf("CreateIndex: %v", err)
	}
	ex := exec.New(db)
	eq := types.NewInt32(5000)
	p := &plan.QueryPlan{Root: &plan.IndexScan{
		Table: "bench", Index: "idx_id", Column: "id", Eq: &eq, Rows: 1, TableRows: 10000,
	}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := ex.Execute(p)
		if err != nil {
			b.Fatalf("Execute: %v", err)
		}
		if len(res.Rows) != 1 {
			b.Fatalf("lookup returned %d rows", len(res.Rows))
		}
	}
}

func BenchmarkIndexedLookup_SQLite(b *testing.B) {
	db := benchSQLite(b, 10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var name string
		if err := db.QueryRow("SELECT name FROM bench WHERE id = 5000").Scan(&name); err != nil {
			b.Fatalf("SELECT failed: %v", err)
		}
	}
}

func BenchmarkAggregate_Grizzly(b *testing.B) {
	_, tbl := benchTable(b, 10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := tbl.Aggregate("value", table.AggSum)
		if err != nil {
			b.Fatalf("Aggregate: %v", err)
		}
		if res.RowCount != 10000 {
			b.Fatalf("aggregate saw %d rows", res.RowCount)
		}
	}
}

func BenchmarkAggregate_SQLite(b *testing.B) {
	db := benchSQLite(b, 10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sum int64
		if err := db.QueryRow("SELECT SUM(value) FROM bench").Scan(&sum); err != nil {
			b.Fatalf("SUM failed: %v", err)
		}
	}
}

func BenchmarkHashJoin_Grizzly(b *testing.B) {
	db, _ := benchTable(b, 5000)
	right, err := db.CreateTable("lookup", schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int32},
		{Name: "label", Type: types.Text},
	}))
	if err != nil {
		b.Fatalf("CreateTable: %v", err)
	}
	for i := 0; i < 500; i++ {
		right.InsertRow([]types.Value{
			types.NewInt32(int32(i * 10)),
			types.NewText(fmt.Sprintf("label%d", i)),
		})
	}

	ex := exec.New(db)
	p := &plan.QueryPlan{Root: &plan.Join{
		Left:     &plan.Scan{Table: "bench"},
		Right:    &plan.Scan{Table: "lookup"},
		Type:     plan.InnerJoin,
		Strategy: plan.HashStrategy,
		LeftCol:  "id",
		RightCol: "id",
	}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := ex.Execute(p)
		if err != nil {
			b.Fatalf("Execute: %v", err)
		}
		if len(res.Rows) != 500 {
			b.Fatalf("join emitted %d rows", len(res.Rows))
		}
	}
}

func BenchmarkHashJoin_SQLite(b *testing.B) {
	db := benchSQLite(b, 5000)
	if _, err := db.Exec("CREATE TABLE lookup (id INT PRIMARY KEY, label TEXT)"); err != nil {
		b.Fatalf("CREATE TABLE: %v", err)
	}
	tx, _ := db.Begin()
	for i := 0; i < 500; i++ {
		tx.Exec(fmt.Sprintf("INSERT INTO lookup VALUES (%d, 'label%d')", i*10, i))
	}
	tx.Commit()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rows, err := db.Query("SELECT b.id, l.label FROM bench b JOIN lookup l ON b.id = l.id")
		if err != nil {
			b.Fatalf("JOIN failed: %v", err)
		}
		n := 0
		for rows.Next() {
			n++
		}
		rows.Close()
		if n != 500 {
			b.Fatalf("join returned %d rows", n)
		}
	}
}
