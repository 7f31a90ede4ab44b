package tabular

import "errors"

// Sentinel errors returned by the core. Callers map these to user-facing
// responses; nothing in this package retries on its own.
var (
	// ErrEmptySheet indicates the uploaded data contains no header row.
	ErrEmptySheet = errors.New("tabular: empty sheet")

	// ErrUnsupportedFormat indicates an unsupported file format.
	ErrUnsupportedFormat = errors.New("tabular: unsupported file format")

	// ErrDuplicateColumn indicates the header row contains duplicate column names.
	ErrDuplicateColumn = errors.New("tabular: duplicate column name")

	// ErrEmptyColumn indicates the header row contains an empty column name.
	ErrEmptyColumn = errors.New("tabular: empty column name")

	// ErrDatasetNotFound indicates the dataset id is unknown.
	ErrDatasetNotFound = errors.New("tabular: dataset not found")

	// ErrDatasetExists indicates a dataset with the same id was already created.
	// Re-ingestion under an existing id is never allowed; new data requires a
	// new dataset id.
	ErrDatasetExists = errors.New("tabular: dataset already exists")

	// ErrDatasetNotReady indicates the dataset has not finished ingesting.
	// Queries against an unprocessed dataset are rejected rather than
	// returning partial results.
	ErrDatasetNotReady = errors.New("tabular: dataset not processed yet")

	// ErrDatasetFailed indicates ingestion of the dataset aborted with an error.
	ErrDatasetFailed = errors.New("tabular: dataset ingestion failed")

	// ErrUnknownColumn indicates a filter or sort references a column that is
	// not part of the dataset. Rejected at query-build time, before any SQL
	// is constructed.
	ErrUnknownColumn = errors.New("tabular: unknown column")

	// ErrInvalidFilter indicates a filter uses an unsupported operator or an
	// operator/column-type combination that is not allowed.
	ErrInvalidFilter = errors.New("tabular: invalid filter")
)
