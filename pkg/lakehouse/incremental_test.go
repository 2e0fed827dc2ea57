// pkg/lakehouse/incremental_test.go
package lakehouse

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grizzly/pkg/database"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

func appendEvents(t *testing.T, db *database.Database, from, n int) {
	t.Helper()
	tbl, err := db.GetTable("events")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	regions := []string{"us-east", "us-west", "eu-central"}
	base := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	for i := from; i < from+n; i++ {
		err := tbl.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewInt64(int64(1000 + i/2)),
			types.NewFloat32(float32(i) / 3),
			types.NewFloat64(float64(i) * 2.5),
			types.NewBool(i%25 == 0),
			types.NewText(regions[i%3]),
			types.TimestampFromTime(base.Add(time.Duration(i) * time.Minute)),
		})
		if err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}
}

func TestIncrementalRoundTrip(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	appendEvents(t, db, 300, 40)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}

	// Two deltas in a chain.
	appendEvents(t, db, 340, 25)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("second SaveIncremental: %v", err)
	}

	loaded, err := lh.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameTables(t, db, loaded)

	var manifest Manifest
	if err := readJSON(filepath.Join(lh.Dir(), "manifest.json"), &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest.Tables["events"] != 365 {
		t.Errorf("manifest events rows = %d, want 365", manifest.Tables["events"])
	}
}

func TestIncrementalSkipsUnchangedTables(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	appendEvents(t, db, 300, 10)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}

	if _, err := os.Stat(filepath.Join(lh.Dir(), "deltas", "events-300.delta")); err != nil {
		t.Errorf("missing events delta: %v", err)
	}
	if _, err := os.Stat(filepath.Join(lh.Dir(), "deltas", "users-50.delta")); !errors.Is(err, os.ErrNotExist) {
		t.Error("unchanged users table must not produce a delta")
	}
}

func TestIncrementalWithoutBase(t *testing.T) {
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.SaveIncremental(sampleDB(t)); !errors.Is(err, ErrNoBaseSnapshot) {
		t.Errorf("expected ErrNoBaseSnapshot, got %v", err)
	}
}

func TestIncrementalNewTableRequiresFullSave(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	extra, _ := db.CreateTable("extra", schema.MustNew([]schema.ColumnDef{
		{Name: "x", Type: types.Int32},
	}))
	extra.InsertRow([]types.Value{types.NewInt32(1)})

	if err := lh.SaveIncremental(db); !errors.Is(err, ErrNoBaseSnapshot) {
		t.Errorf("expected ErrNoBaseSnapshot for a table outside the base, got %v", err)
	}
}

func TestIncrementalShrunkTable(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tbl, _ := db.GetTable("users")
	if err := tbl.DeleteRow(0); err != nil {
		t.Fatal(err)
	}
	if err := lh.SaveIncremental(db); !errors.Is(err, ErrOffsetMismatch) {
		t.Errorf("expected ErrOffsetMismatch for a shrunk table, got %v", err)
	}
}

func TestApplyIncrementalSchemaMismatch(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	appendEvents(t, db, 300, 5)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}

	// Same table name, different schema.
	other := database.New("other")
	tbl, _ := other.CreateTable("events", schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int64},
	}))
	for i := 0; i < 300; i++ {
		tbl.InsertRow([]types.Value{types.NewInt64(int64(i))})
	}

	if err := lh.ApplyIncremental(other); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestApplyIncrementalOffsetMismatch(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	appendEvents(t, db, 300, 5)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}

	// A base copy that drifted: fewer rows than the delta expects.
	short := database.New("short")
	tbl, _ := short.CreateTable("events", mustEventsSchema())
	regions := []string{"us-east", "us-west", "eu-central"}
	base := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		tbl.InsertRow([]types.Value{
			types.NewInt32(int32(i)),
			types.NewInt64(int64(1000 + i/2)),
			types.NewFloat32(float32(i) / 3),
			types.NewFloat64(float64(i) * 2.5),
			types.NewBool(i%25 == 0),
			types.NewText(regions[i%3]),
			types.TimestampFromTime(base.Add(time.Duration(i) * time.Minute)),
		})
	}

	if err := lh.ApplyIncremental(short); !errors.Is(err, ErrOffsetMismatch) {
		t.Errorf("expected ErrOffsetMismatch, got %v", err)
	}
}

func TestApplyIncrementalIdempotent(t *testing.T) {
	db := sampleDB(t)
	lh := New(filepath.Join(t.TempDir(), "lake"))
	if err := lh.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	appendEvents(t, db, 300, 5)
	if err := lh.SaveIncremental(db); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}

	loaded, err := lh.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Deltas already folded in by Load; applying again must be a no-op.
	if err := lh.ApplyIncremental(loaded); err != nil {
		t.Fatalf("ApplyIncremental: %v", err)
	}
	tbl, _ := loaded.GetTable("events")
	if tbl.RowCount() != 305 {
		t.Errorf("events rows = %d, want 305", tbl.RowCount())
	}
}

func mustEventsSchema() *schema.Schema {
	return schema.MustNew([]schema.ColumnDef{
		{Name: "id", Type: types.Int32},
		{Name: "count", Type: types.Int64},
		{Name: "score", Type: types.Float32},
		{Name: "amount", Type: types.Float64},
		{Name: "active", Type: types.Bool},
		{Name: "region", Type: types.Text},
		{Name: "at", Type: types.Timestamp},
	})
}
