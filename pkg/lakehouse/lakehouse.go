// pkg/lakehouse/lakehouse.go
//
// Directory-backed snapshot format:
//
//	<dir>/manifest.json           snapshot id + per-table row counts
//	<dir>/metadata/<table>.json   schema, row count, compression records
//	<dir>/data/<table>/<col>.bin  codec-compressed column payload
//	<dir>/deltas/<table>-<n>.delta  incremental rows on top of base n
//
// A full save builds the whole layout in a staging directory and swaps it
// in, so readers never observe a half-written snapshot. The swap is
// remove-then-rename, not a single atomic rename; the exclusive directory
// lock closes that window for cooperating processes.
package lakehouse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grizzly/pkg/database"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

var (
	ErrCorruptMetadata = errors.New("corrupt lakehouse metadata")
	ErrLakehouseLocked = errors.New("lakehouse is locked by another process")
)

// Lakehouse reads and writes database snapshots under one directory.
type Lakehouse struct {
	dir    string
	logger *zap.Logger
}

// Option configures a Lakehouse.
type Option func(*Lakehouse)

// WithLogger attaches a structured logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(lh *Lakehouse) { lh.logger = l }
}

// New creates a handle for the snapshot directory at dir. Nothing is read
// or created until Save or Load.
func New(dir string, opts ...Option) *Lakehouse {
	lh := &Lakehouse{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(lh)
	}
	return lh
}

// Dir returns the snapshot directory path.
func (lh *Lakehouse) Dir() string { return lh.dir }

// Save writes a full snapshot of db, replacing whatever the directory held
// before. Codec choice is per column, from its statistics.
func (lh *Lakehouse) Save(db *database.Database) error {
	release, err := lh.acquire()
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	staging := fmt.Sprintf("%s.tmp-%s", lh.dir, uuid.NewString())
	if err := lh.writeSnapshot(staging, db); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("lakehouse save %s: %w", lh.dir, err)
	}

	if err := os.RemoveAll(lh.dir); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("lakehouse save %s: %w", lh.dir, err)
	}
	if err := os.Rename(staging, lh.dir); err != nil {
		return fmt.Errorf("lakehouse save %s: %w", lh.dir, err)
	}

	lh.logger.Info("saved snapshot",
		zap.String("dir", lh.dir),
		zap.Int("tables", len(db.TableNames())),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (lh *Lakehouse) writeSnapshot(root string, db *database.Database) error {
	if err := os.MkdirAll(filepath.Join(root, "metadata"), 0o755); err != nil {
		return err
	}

	manifest := &Manifest{
		SnapshotID: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Tables:     make(map[string]int),
	}

	for _, name := range db.TableNames() {
		tbl, err := db.GetTable(name)
		if err != nil {
			return err
		}
		if err := lh.writeTable(root, tbl); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		manifest.Tables[name] = tbl.RowCount()
	}

	return writeJSON(filepath.Join(root, "manifest.json"), manifest)
}

func (lh *Lakehouse) writeTable(root string, tbl *table.Table) error {
	dataDir := filepath.Join(root, "data", tbl.Name())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	compression := make([]CompressionMeta, 0, tbl.Schema().NumColumns())
	for i := range tbl.Schema().Columns() {
		col := tbl.Column(i)
		codec := ChooseCodec(col)

		raw := encodeNone(col.Values())
		payload := raw
		if codec != CodecNone {
			var err error
			payload, err = Encode(codec, col.Values())
			if err != nil {
				return fmt.Errorf("column %s: %w", col.Name(), err)
			}
		}
		if err := os.WriteFile(filepath.Join(dataDir, col.Name()+".bin"), payload, 0o644); err != nil {
			return err
		}

		meta := CompressionMeta{
			Column:         col.Name(),
			Codec:          string(codec),
			OriginalSize:   int64(len(raw)),
			CompressedSize: int64(len(payload)),
		}
		if len(payload) > 0 {
			meta.Ratio = float64(len(raw)) / float64(len(payload))
		}
		if min, max, ok := col.MinMax(); ok {
			switch col.Type() {
			case types.Int32, types.Int64, types.Timestamp:
				lo, hi := min.Int64(), max.Int64()
				meta.Min, meta.Max = &lo, &hi
			}
		}
		compression = append(compression, meta)

		lh.logger.Debug("compressed column",
			zap.String("table", tbl.Name()),
			zap.String("column", col.Name()),
			zap.String("codec", string(codec)),
			zap.Int("original", len(raw)),
			zap.Int("compressed", len(payload)))
	}

	return writeJSON(filepath.Join(root, "metadata", tbl.Name()+".json"), tableMeta(tbl, compression))
}

// Load reconstructs a Database from the snapshot directory, applying any
// pending deltas on top of the base columns. Missing or malformed metadata
// is fatal; there is no partial reconstruction.
func (lh *Lakehouse) Load() (*database.Database, error) {
	release, err := lh.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var manifest Manifest
	if err := readJSON(filepath.Join(lh.dir, "manifest.json"), &manifest); err != nil {
		return nil, fmt.Errorf("lakehouse load %s: %w", lh.dir, err)
	}

	db := database.New(filepath.Base(lh.dir), database.WithLogger(lh.logger))
	for name, wantRows := range manifest.Tables {
		tbl, err := lh.loadTable(db, name)
		if err != nil {
			return nil, fmt.Errorf("lakehouse load %s: %w", lh.dir, err)
		}
		if err := lh.applyTableDeltas(tbl); err != nil {
			return nil, fmt.Errorf("lakehouse load %s: %w", lh.dir, err)
		}
		if tbl.RowCount() != wantRows {
			return nil, fmt.Errorf("lakehouse load %s: %w: table %s has %d rows, manifest says %d",
				lh.dir, ErrCorruptMetadata, name, tbl.RowCount(), wantRows)
		}
	}

	lh.logger.Info("loaded snapshot",
		zap.String("dir", lh.dir),
		zap.String("snapshot_id", manifest.SnapshotID),
		zap.Int("tables", len(manifest.Tables)),
		zap.Duration("took", time.Since(start)))
	return db, nil
}

func (lh *Lakehouse) loadTable(db *database.Database, name string) (*table.Table, error) {
	var meta TableMeta
	if err := readJSON(filepath.Join(lh.dir, "metadata", name+".json"), &meta); err != nil {
		return nil, err
	}
	s, err := meta.buildSchema()
	if err != nil {
		return nil, err
	}
	if len(meta.Compression) != s.NumColumns() {
		return nil, fmt.Errorf("%w: table %s: %d compression records for %d columns",
			ErrCorruptMetadata, name, len(meta.Compression), s.NumColumns())
	}

	columns := make([][]types.Value, s.NumColumns())
	for i, cm := range meta.Compression {
		data, err := os.ReadFile(filepath.Join(lh.dir, "data", name, cm.Column+".bin"))
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrCorruptMetadata, name, err)
		}
		values, err := Decode(Codec(cm.Codec), data, meta.RowCount, s.Column(i).Type)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", name, cm.Column, err)
		}
		columns[i] = values
	}

	tbl, err := db.CreateTable(name, s)
	if err != nil {
		return nil, err
	}
	row := make([]types.Value, s.NumColumns())
	for r := 0; r < meta.RowCount; r++ {
		for c := range columns {
			row[c] = columns[c][r]
		}
		if err := tbl.InsertRow(row); err != nil {
			return nil, fmt.Errorf("table %s row %d: %w", name, r, err)
		}
	}
	return tbl, nil
}

func (lh *Lakehouse) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lh.dir), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lh.dir+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
