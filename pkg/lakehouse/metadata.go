// pkg/lakehouse/metadata.go
package lakehouse

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"grizzly/pkg/schema"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ColumnMeta is one schema entry in a table's metadata file.
type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CompressionMeta records how one column was compressed. Min and Max are
// present only for integer-backed columns. This JSON shape is read by
// external snapshot tools and must not change.
type CompressionMeta struct {
	Column         string  `json:"column"`
	Codec          string  `json:"codec"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`
	Min            *int64  `json:"min,omitempty"`
	Max            *int64  `json:"max,omitempty"`
}

// TableMeta is the full metadata/<table>.json document.
type TableMeta struct {
	Name        string            `json:"name"`
	Columns     []ColumnMeta      `json:"columns"`
	RowCount    int               `json:"row_count"`
	Compression []CompressionMeta `json:"compression"`
}

// Manifest is the top-level manifest.json: per-table row counts at snapshot
// time, the basis for incremental deltas.
type Manifest struct {
	SnapshotID string         `json:"snapshot_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Tables     map[string]int `json:"tables"`
}

// buildSchema reconstructs a schema from metadata column entries.
func (m *TableMeta) buildSchema() (*schema.Schema, error) {
	defs := make([]schema.ColumnDef, len(m.Columns))
	for i, c := range m.Columns {
		dt, err := types.ParseDataType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrCorruptMetadata, m.Name, err)
		}
		defs[i] = schema.ColumnDef{Name: c.Name, Type: dt}
	}
	s, err := schema.New(defs)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %v", ErrCorruptMetadata, m.Name, err)
	}
	return s, nil
}

// tableMeta assembles the metadata document for one table, given each
// column's compression record.
func tableMeta(tbl *table.Table, compression []CompressionMeta) *TableMeta {
	cols := make([]ColumnMeta, tbl.Schema().NumColumns())
	for i, def := range tbl.Schema().Columns() {
		cols[i] = ColumnMeta{Name: def.Name, Type: def.Type.String()}
	}
	return &TableMeta{
		Name:        tbl.Name(),
		Columns:     cols,
		RowCount:    tbl.RowCount(),
		Compression: compression,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptMetadata, path, err)
	}
	return nil
}
