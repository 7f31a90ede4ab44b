package tabular

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// schemaStatements create the persisted layout: a datasets table, a
// columns table keyed by (dataset id, ordinal), and a rows table keyed
// by (dataset id, row index) holding the per-row document and validity
// metadata. Deleting a dataset cascades to both.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		row_count INTEGER NOT NULL DEFAULT 0,
		column_count INTEGER NOT NULL DEFAULT 0,
		processed_rows INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dataset_columns (
		dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		col_type TEXT NOT NULL,
		searchable INTEGER NOT NULL DEFAULT 1,
		sortable INTEGER NOT NULL DEFAULT 1,
		required INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (dataset_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS dataset_rows (
		dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		row_index INTEGER NOT NULL,
		doc TEXT NOT NULL,
		is_valid INTEGER NOT NULL,
		errors TEXT,
		PRIMARY KEY (dataset_id, row_index)
	)`,
}

// Store persists datasets, columns, and rows in SQLite.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the SQLite database at path. The
// special path ":memory:" opens an in-memory database, used by tests.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tabular: store path required")
	}

	dsn := path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve store path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", abs)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if path == ":memory:" {
		// A pooled second connection would see a different empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for advanced callers.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// CreateDataset creates a pending dataset record. Returns
// ErrDatasetExists if the id is already taken; re-ingestion under the
// same id is never allowed.
func (s *Store) CreateDataset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, status, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		id, StatusPending, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDatasetExists, id)
	}
	return nil
}

// datasetRecord is the scan target for the datasets table. Timestamps
// are stored as RFC3339 text.
type datasetRecord struct {
	ID            string `db:"id"`
	Status        string `db:"status"`
	RowCount      int    `db:"row_count"`
	ColumnCount   int    `db:"column_count"`
	ProcessedRows int    `db:"processed_rows"`
	CreatedAt     string `db:"created_at"`
}

// GetDataset loads a dataset by id. Returns ErrDatasetNotFound for an
// unknown id.
func (s *Store) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var rec datasetRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, status, row_count, column_count, processed_rows, created_at
		 FROM datasets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", id, err)
	}

	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for dataset %s: %w", id, err)
	}
	return &Dataset{
		ID:            rec.ID,
		Status:        DatasetStatus(rec.Status),
		RowCount:      rec.RowCount,
		ColumnCount:   rec.ColumnCount,
		ProcessedRows: rec.ProcessedRows,
		CreatedAt:     createdAt,
	}, nil
}

// InsertColumns persists the inferred columns of a dataset in a single
// transaction. Columns are immutable once written.
func (s *Store) InsertColumns(ctx context.Context, datasetID string, columns []Column) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin column insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op after commit
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_columns (dataset_id, position, name, col_type, searchable, sortable, required, label)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare column insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, col := range columns {
		if _, err := stmt.ExecContext(ctx,
			datasetID, col.Position, col.Name, col.Type,
			col.Searchable, col.Sortable, col.Required, col.Label,
		); err != nil {
			return fmt.Errorf("failed to insert column %s: %w", col.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit column insert: %w", err)
	}
	return nil
}

// Columns loads a dataset's columns ordered by ordinal position.
func (s *Store) Columns(ctx context.Context, datasetID string) ([]Column, error) {
	var columns []Column
	err := s.db.SelectContext(ctx, &columns,
		`SELECT position, name, col_type, searchable, sortable, required, label
		 FROM dataset_columns WHERE dataset_id = ? ORDER BY position`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns for dataset %s: %w", datasetID, err)
	}
	return columns, nil
}

// stagedRow is one validated row ready for persistence.
type stagedRow struct {
	Index  int
	Doc    string
	Valid  bool
	Errors *string
}

// InsertRowChunk persists one chunk of staged rows as a single batch
// write. This is the dominant performance lever for large uploads: one
// transaction per chunk, not one write per row.
func (s *Store) InsertRowChunk(ctx context.Context, datasetID string, rows []stagedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op after commit
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_rows (dataset_id, row_index, doc, is_valid, errors)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			datasetID, row.Index, row.Doc, row.Valid, row.Errors,
		); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

// SetCounts records the dataset's total row and column counts before
// ingestion starts so progress percent is computable while chunks land.
func (s *Store) SetCounts(ctx context.Context, datasetID string, rows, columns int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET row_count = ?, column_count = ? WHERE id = ?`,
		rows, columns, datasetID)
	if err != nil {
		return fmt.Errorf("failed to set counts for dataset %s: %w", datasetID, err)
	}
	return nil
}

// UpdateProgress records the running count of persisted rows. Called
// after every chunk so callers can poll ingestion progress.
func (s *Store) UpdateProgress(ctx context.Context, datasetID string, processedRows int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET processed_rows = ? WHERE id = ?`,
		processedRows, datasetID)
	if err != nil {
		return fmt.Errorf("failed to update progress for dataset %s: %w", datasetID, err)
	}
	return nil
}

// MarkProcessed flips the dataset to processed with its final counts.
func (s *Store) MarkProcessed(ctx context.Context, datasetID string, rows, columns int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ?, row_count = ?, column_count = ?, processed_rows = ? WHERE id = ?`,
		StatusProcessed, rows, columns, rows, datasetID)
	if err != nil {
		return fmt.Errorf("failed to mark dataset %s processed: %w", datasetID, err)
	}
	return nil
}

// MarkFailed flips the dataset to failed. Rows from already-committed
// chunks remain persisted; ingestion is not atomic across the whole
// file.
func (s *Store) MarkFailed(ctx context.Context, datasetID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ? WHERE id = ?`,
		StatusFailed, datasetID)
	if err != nil {
		return fmt.Errorf("failed to mark dataset %s failed: %w", datasetID, err)
	}
	return nil
}

// DeleteDataset removes the dataset and, via cascade, its columns and
// rows. Returns ErrDatasetNotFound for an unknown id.
func (s *Store) DeleteDataset(ctx context.Context, datasetID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", datasetID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", datasetID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	return nil
}

// RowByIndex loads a single row of a dataset by its ordinal index.
func (s *Store) RowByIndex(ctx context.Context, datasetID string, index int) (*Row, error) {
	var rec rowRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT row_index, doc, is_valid, errors FROM dataset_rows
		 WHERE dataset_id = ? AND row_index = ?`, datasetID, index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tabular: row %d not found in dataset %s", index, datasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load row %d of dataset %s: %w", index, datasetID, err)
	}
	return rec.toRow()
}
