package tabular

import (
	"fmt"
	"strings"
	"time"
)

// Processing constants (rows-based)
const (
	// DefaultChunkSize is the number of rows persisted per batch write
	// during ingestion.
	DefaultChunkSize = 1000
	// MinChunkSize is the minimum allowed rows per chunk
	MinChunkSize = 1
	// InferenceSampleSize is the number of data rows sampled for column
	// type inference. Larger datasets are never fully scanned for
	// inference; accuracy is traded for bounded cost.
	InferenceSampleSize = 100
)

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	// TypeText is the default/fallback column type.
	TypeText ColumnType = "text"
	// TypeNumber marks columns whose sampled values parse as numeric.
	TypeNumber ColumnType = "number"
	// TypeDate marks columns whose sampled values match a date pattern.
	TypeDate ColumnType = "date"
	// TypeBoolean marks columns whose sampled values are boolean literals.
	TypeBoolean ColumnType = "boolean"
	// TypeStructured marks columns whose sampled values parse as nested
	// JSON documents.
	TypeStructured ColumnType = "structured"
)

// Valid reports whether ct is one of the known column types.
func (ct ColumnType) Valid() bool {
	switch ct {
	case TypeText, TypeNumber, TypeDate, TypeBoolean, TypeStructured:
		return true
	default:
		return false
	}
}

// DatasetStatus is the lifecycle state of a dataset.
type DatasetStatus string

const (
	// StatusPending means the dataset was created but ingestion has not
	// completed.
	StatusPending DatasetStatus = "pending"
	// StatusProcessed means ingestion completed and the dataset is queryable.
	StatusProcessed DatasetStatus = "processed"
	// StatusFailed means ingestion aborted. Rows from chunks committed
	// before the failure remain persisted.
	StatusFailed DatasetStatus = "failed"
)

// Dataset is one uploaded spreadsheet and its ingestion state.
type Dataset struct {
	ID            string        `json:"id"`
	Status        DatasetStatus `json:"status"`
	RowCount      int           `json:"totalRows"`
	ColumnCount   int           `json:"totalColumns"`
	ProcessedRows int           `json:"-"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Processed reports whether the dataset finished ingestion successfully.
func (d *Dataset) Processed() bool {
	return d.Status == StatusProcessed
}

// Column is one inferred field of a dataset. Columns are created in bulk
// right after sampling and are immutable thereafter; a re-upload creates
// an entirely new dataset and column set.
type Column struct {
	Position   int        `db:"position" json:"position"`
	Name       string     `db:"name" json:"name"`
	Type       ColumnType `db:"col_type" json:"type"`
	Searchable bool       `db:"searchable" json:"searchable"`
	Sortable   bool       `db:"sortable" json:"sortable"`
	Required   bool       `db:"required" json:"required"`
	Label      string     `db:"label" json:"label"`
}

// Document holds one value per column name. It is schema-less at the
// storage layer; values are strings as found in the source, or nil for
// missing fields. Type conformance is the validator's concern at
// ingestion time only.
type Document map[string]any

// Row is one record of a dataset.
type Row struct {
	Index    int      `json:"index"`
	Document Document `json:"document"`
	Valid    bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
}

// Progress is the pollable ingestion progress of a dataset.
type Progress struct {
	ProcessedRows   int `json:"processedRows"`
	TotalRows       int `json:"totalRows"`
	ProgressPercent int `json:"progressPercent"`
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	ProcessedCount int `json:"processedCount"`
	ErrorCount     int `json:"errorCount"`
}

// Record is one data row of a parsed sheet, as positional string fields.
type Record []string

// Sheet is a parsed spreadsheet: a header row plus ordered data rows.
type Sheet struct {
	Header  []string
	Records []Record
}

// Sample returns up to n leading records for type inference.
func (s *Sheet) Sample(n int) []Record {
	if len(s.Records) <= n {
		return s.Records
	}
	return s.Records[:n]
}

// validateHeader checks for empty and duplicate column names. Comparison
// is case-sensitive; names are trimmed before comparison.
func validateHeader(header []string) error {
	if len(header) == 0 {
		return ErrEmptySheet
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return fmt.Errorf("%w: position %d", ErrEmptyColumn, i)
		}
		if seen[trimmed] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		seen[trimmed] = true
	}
	return nil
}
