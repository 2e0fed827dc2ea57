// pkg/lakehouse/incremental.go
//
// Incremental snapshots. A delta file holds only the rows appended since
// the manifest was written, per table:
//
//	uvarint  schema fingerprint
//	uvarint  base row count
//	uvarint  added row count
//	per column, in schema order: codec name frame + payload frame
//
// Deltas are named <table>-<base>.delta so a chain of them applies in base
// order. A full save resets the chain.
package lakehouse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grizzly/internal/encoding"
	"grizzly/pkg/database"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

var (
	ErrSchemaMismatch = errors.New("delta schema fingerprint mismatch")
	ErrOffsetMismatch = errors.New("delta base row count mismatch")
	ErrNoBaseSnapshot = errors.New("no base snapshot, full save required")
)

// SaveIncremental writes delta files for every table that grew since the
// manifest was last written, then updates the manifest. Tables absent from
// the base snapshot, or tables that shrank, break the chain and require a
// full Save.
func (lh *Lakehouse) SaveIncremental(db *database.Database) error {
	release, err := lh.acquire()
	if err != nil {
		return err
	}
	defer release()

	manifestPath := filepath.Join(lh.dir, "manifest.json")
	var manifest Manifest
	if err := readJSON(manifestPath, &manifest); err != nil {
		return fmt.Errorf("lakehouse incremental %s: %w: %v", lh.dir, ErrNoBaseSnapshot, err)
	}

	deltaDir := filepath.Join(lh.dir, "deltas")
	var written int
	for _, name := range db.TableNames() {
		tbl, err := db.GetTable(name)
		if err != nil {
			return err
		}
		base, ok := manifest.Tables[name]
		if !ok {
			return fmt.Errorf("lakehouse incremental %s: table %s: %w", lh.dir, name, ErrNoBaseSnapshot)
		}
		cur := tbl.RowCount()
		if cur < base {
			return fmt.Errorf("lakehouse incremental %s: table %s shrank from %d to %d rows: %w",
				lh.dir, name, base, cur, ErrOffsetMismatch)
		}
		if cur == base {
			continue
		}

		if err := os.MkdirAll(deltaDir, 0o755); err != nil {
			return err
		}
		payload, err := encodeDelta(tbl, base)
		if err != nil {
			return fmt.Errorf("lakehouse incremental %s: table %s: %w", lh.dir, name, err)
		}
		path := filepath.Join(deltaDir, fmt.Sprintf("%s-%d.delta", name, base))
		if err := writeFileAtomic(path, payload); err != nil {
			return fmt.Errorf("lakehouse incremental %s: %w", lh.dir, err)
		}
		manifest.Tables[name] = cur
		written++

		lh.logger.Info("wrote delta",
			zap.String("table", name),
			zap.Int("base_rows", base),
			zap.Int("added_rows", cur-base))
	}

	manifest.SnapshotID = uuid.NewString()
	manifest.CreatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(manifestPath, append(data, '\n')); err != nil {
		return fmt.Errorf("lakehouse incremental %s: %w", lh.dir, err)
	}

	if written == 0 {
		lh.logger.Info("no tables changed, manifest refreshed", zap.String("dir", lh.dir))
	}
	return nil
}

// ApplyIncremental applies every pending delta in the lakehouse to the
// matching tables of db. Already-applied deltas are skipped; a delta whose
// base does not line up with the table's row count fails the whole apply.
func (lh *Lakehouse) ApplyIncremental(db *database.Database) error {
	release, err := lh.acquire()
	if err != nil {
		return err
	}
	defer release()

	for _, name := range db.TableNames() {
		tbl, err := db.GetTable(name)
		if err != nil {
			return err
		}
		if err := lh.applyTableDeltas(tbl); err != nil {
			return fmt.Errorf("lakehouse apply %s: %w", lh.dir, err)
		}
	}
	return nil
}

// encodeDelta serializes rows [base, RowCount) of every column.
func encodeDelta(tbl *table.Table, base int) ([]byte, error) {
	added := tbl.RowCount() - base
	out := encoding.AppendUvarint(nil, tbl.Schema().Fingerprint())
	out = encoding.AppendUvarint(out, uint64(base))
	out = encoding.AppendUvarint(out, uint64(added))

	for i := range tbl.Schema().Columns() {
		col := tbl.Column(i)
		codec := ChooseCodec(col)
		payload, err := Encode(codec, col.Slice(base, tbl.RowCount()))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name(), err)
		}
		out = encoding.AppendString(out, string(codec))
		out = encoding.AppendBytes(out, payload)
	}
	return out, nil
}

// applyTableDeltas replays the table's delta chain in base order.
func (lh *Lakehouse) applyTableDeltas(tbl *table.Table) error {
	deltas, err := lh.pendingDeltas(tbl.Name())
	if err != nil {
		return err
	}
	for _, d := range deltas {
		if d.base+d.added <= tbl.RowCount() {
			continue // already applied
		}
		data, err := os.ReadFile(d.path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
		}
		if err := applyDelta(tbl, data); err != nil {
			return fmt.Errorf("delta %s: %w", filepath.Base(d.path), err)
		}
		lh.logger.Info("applied delta",
			zap.String("table", tbl.Name()),
			zap.Int("base_rows", d.base),
			zap.Int("added_rows", d.added))
	}
	return nil
}

// applyDelta verifies the header against the live table, then appends the
// delta's rows.
func applyDelta(tbl *table.Table, data []byte) error {
	fp, n, err := encoding.Uvarint(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	off := n
	base, n, err := encoding.Uvarint(data[off:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	off += n
	added, n, err := encoding.Uvarint(data[off:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	off += n

	s := tbl.Schema()
	if fp != s.Fingerprint() {
		return fmt.Errorf("%w: table %s", ErrSchemaMismatch, tbl.Name())
	}
	if int(base) != tbl.RowCount() {
		return fmt.Errorf("%w: table %s has %d rows, delta expects %d",
			ErrOffsetMismatch, tbl.Name(), tbl.RowCount(), base)
	}

	columns := make([][]types.Value, s.NumColumns())
	for i := range columns {
		codecName, n, err := encoding.String(data[off:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
		}
		off += n
		payload, n, err := encoding.Bytes(data[off:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
		}
		off += n

		values, err := Decode(Codec(codecName), payload, int(added), s.Column(i).Type)
		if err != nil {
			return fmt.Errorf("column %s: %w", s.Column(i).Name, err)
		}
		columns[i] = values
	}

	row := make([]types.Value, s.NumColumns())
	for r := 0; r < int(added); r++ {
		for c := range columns {
			row[c] = columns[c][r]
		}
		if err := tbl.InsertRow(row); err != nil {
			return err
		}
	}
	return nil
}

type deltaRef struct {
	path  string
	base  int
	added int
}

// pendingDeltas lists the table's delta files sorted by base row count.
// Only the filename is trusted for ordering; headers are verified at apply
// time.
func (lh *Lakehouse) pendingDeltas(tableName string) ([]deltaRef, error) {
	entries, err := os.ReadDir(filepath.Join(lh.dir, "deltas"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := tableName + "-"
	var out []deltaRef
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".delta") {
			continue
		}
		baseStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".delta")
		base, err := strconv.Atoi(baseStr)
		if err != nil {
			continue // not ours: table names may themselves contain dashes
		}
		path := filepath.Join(lh.dir, "deltas", name)
		added, err := deltaAddedRows(path)
		if err != nil {
			return nil, err
		}
		out = append(out, deltaRef{path: path, base: base, added: added})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out, nil
}

func deltaAddedRows(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	off := 0
	for i := 0; i < 2; i++ {
		_, n, err := encoding.Uvarint(data[off:])
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrCorruptMetadata, filepath.Base(path), err)
		}
		off += n
	}
	added, _, err := encoding.Uvarint(data[off:])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorruptMetadata, filepath.Base(path), err)
	}
	return int(added), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
