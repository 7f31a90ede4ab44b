package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// Filter operators. equals, contains, starts_with, and ends_with apply
// to any column type; greater_than and less_than are restricted to
// number columns.
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Pagination defaults.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ColumnFilter is one conjunctive predicate over a named column.
type ColumnFilter struct {
	Column   string     `json:"column"`
	Operator string     `json:"operator"`
	Value    string     `json:"value"`
	Type     ColumnType `json:"type"`
}

// SortSpec orders results by a named column.
type SortSpec struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// FilterSpec is the structured request describing free-text search,
// per-column filters, sort, and pagination for a query. Filters combine
// with logical AND; there is no OR or grouping.
type FilterSpec struct {
	Search   string         `json:"search,omitempty"`
	Filters  []ColumnFilter `json:"filters,omitempty"`
	Sort     *SortSpec      `json:"sort,omitempty"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// normalized returns a copy with pagination defaults applied.
func (f FilterSpec) normalized() FilterSpec {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.Sort != nil && f.Sort.Direction == "" {
		sort := *f.Sort
		sort.Direction = SortAsc
		f.Sort = &sort
	}
	return f
}

// cacheParams flattens the filter spec into the canonical parameter list used
// to key cached query results. Every user-supplied field is escaped so
// a value containing a delimiter cannot collide with a different spec.
func (f FilterSpec) cacheParams() []string {
	params := []string{
		fmt.Sprintf("page=%d", f.Page),
		fmt.Sprintf("size=%d", f.PageSize),
	}
	if f.Search != "" {
		params = append(params, "search="+url.QueryEscape(f.Search))
	}
	if f.Sort != nil {
		params = append(params, "sort="+url.QueryEscape(f.Sort.Column)+"|"+url.QueryEscape(f.Sort.Direction))
	}
	for i, filter := range f.Filters {
		params = append(params, fmt.Sprintf("filter%d=%s|%s|%s|%s",
			i,
			url.QueryEscape(filter.Column),
			url.QueryEscape(filter.Operator),
			url.QueryEscape(filter.Value),
			url.QueryEscape(string(filter.Type))))
	}
	return params
}

// Pagination describes the page window of a query result.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// QueryResult is the read-path payload: the page of rows, pagination
// metadata with the pre-pagination total, and the dataset's columns.
type QueryResult struct {
	Rows       []Row      `json:"rows"`
	Pagination Pagination `json:"pagination"`
	Columns    []Column   `json:"columns"`
}

// queryEngine translates a FilterSpec into a data-layer query. It is an
// interface so tests can spy on cache hit/miss behavior.
type queryEngine interface {
	Run(ctx context.Context, datasetID string, columns []Column, spec FilterSpec) (*QueryResult, error)
}

// engine is the SQLite query engine. Column names arriving in a
// FilterSpec are caller-supplied data, never syntax: they are validated
// against the dataset's known columns and then passed to json_extract
// as bound JSON-path parameters, never concatenated into SQL text.
type engine struct {
	store *Store
}

func newEngine(store *Store) *engine {
	return &engine{store: store}
}

// rowRecord is the scan target for the dataset_rows table.
type rowRecord struct {
	Index  int            `db:"row_index"`
	Doc    string         `db:"doc"`
	Valid  bool           `db:"is_valid"`
	Errors sql.NullString `db:"errors"`
}

func (r rowRecord) toRow() (*Row, error) {
	row := &Row{Index: r.Index, Valid: r.Valid}
	if err := json.Unmarshal([]byte(r.Doc), &row.Document); err != nil {
		return nil, fmt.Errorf("failed to decode row %d document: %w", r.Index, err)
	}
	if r.Errors.Valid {
		if err := json.Unmarshal([]byte(r.Errors.String), &row.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode row %d errors: %w", r.Index, err)
		}
	}
	return row, nil
}

// Run executes the query and returns the requested page plus the total
// matching count.
func (e *engine) Run(ctx context.Context, datasetID string, columns []Column, spec FilterSpec) (*QueryResult, error) {
	spec = spec.normalized()
	if err := validateSpec(spec, columns); err != nil {
		return nil, err
	}

	where := []string{"dataset_id = ?"}
	args := []any{datasetID}

	// Free-text search is a coarse fallback: a case-insensitive
	// substring match over the entire serialized document.
	if spec.Search != "" {
		where = append(where, "instr(lower(doc), lower(?)) > 0")
		args = append(args, spec.Search)
	}

	for _, filter := range spec.Filters {
		pred, predArgs := filterPredicate(filter)
		where = append(where, pred)
		args = append(args, predArgs...)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM dataset_rows WHERE " + whereClause
	if err := e.store.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count matching rows: %w", err)
	}

	order, orderArgs := orderClause(spec.Sort, columns)
	pageArgs := append(append([]any{}, args...), orderArgs...)
	pageArgs = append(pageArgs, spec.PageSize, (spec.Page-1)*spec.PageSize)

	pageQuery := "SELECT row_index, doc, is_valid, errors FROM dataset_rows WHERE " +
		whereClause + " ORDER BY " + order + " LIMIT ? OFFSET ?"

	var recs []rowRecord
	if err := e.store.db.SelectContext(ctx, &recs, pageQuery, pageArgs...); err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}

	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, err := rec.toRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + spec.PageSize - 1) / spec.PageSize
	}

	return &QueryResult{
		Rows: rows,
		Pagination: Pagination{
			Page:       spec.Page,
			PageSize:   spec.PageSize,
			Total:      total,
			TotalPages: totalPages,
		},
		Columns: columns,
	}, nil
}

// validateSpec rejects unknown column references and invalid
// operator/column combinations before any SQL is constructed.
func validateSpec(spec FilterSpec, columns []Column) error {
	byName := make(map[string]Column, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}

	for _, filter := range spec.Filters {
		col, ok := byName[filter.Column]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, filter.Column)
		}
		if !col.Searchable {
			return fmt.Errorf("%w: column %s is not searchable", ErrInvalidFilter, filter.Column)
		}
		// An absent type defaults to text comparison; anything else must
		// be a known type.
		if filter.Type != "" && !filter.Type.Valid() {
			return fmt.Errorf("%w: unknown value type %q", ErrInvalidFilter, filter.Type)
		}
		switch filter.Operator {
		case OpEquals, OpContains, OpStartsWith, OpEndsWith:
		case OpGreaterThan, OpLessThan:
			if col.Type != TypeNumber {
				return fmt.Errorf("%w: operator %s requires a number column, %s is %s",
					ErrInvalidFilter, filter.Operator, col.Name, col.Type)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, filter.Operator)
		}
	}

	if spec.Sort != nil {
		col, ok := byName[spec.Sort.Column]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, spec.Sort.Column)
		}
		if !col.Sortable {
			return fmt.Errorf("%w: column %s is not sortable", ErrInvalidFilter, spec.Sort.Column)
		}
		if spec.Sort.Direction != SortAsc && spec.Sort.Direction != SortDesc {
			return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidFilter, spec.Sort.Direction)
		}
	}

	return nil
}

// filterPredicate resolves one filter to a SQL predicate over the field
// extracted from the row document, cast according to the filter's
// declared value type. The column name travels as a bound json_extract
// path argument.
func filterPredicate(filter ColumnFilter) (string, []any) {
	path := jsonPath(filter.Column)

	switch filter.Operator {
	case OpEquals:
		if filter.Type == TypeNumber {
			return "CAST(json_extract(doc, ?) AS REAL) = CAST(? AS REAL)", []any{path, filter.Value}
		}
		return "json_extract(doc, ?) = ?", []any{path, filter.Value}
	case OpContains:
		return `json_extract(doc, ?) LIKE ? ESCAPE '\'`, []any{path, "%" + escapeLike(filter.Value) + "%"}
	case OpStartsWith:
		return `json_extract(doc, ?) LIKE ? ESCAPE '\'`, []any{path, escapeLike(filter.Value) + "%"}
	case OpEndsWith:
		return `json_extract(doc, ?) LIKE ? ESCAPE '\'`, []any{path, "%" + escapeLike(filter.Value)}
	case OpGreaterThan:
		return "CAST(json_extract(doc, ?) AS REAL) > CAST(? AS REAL)", []any{path, filter.Value}
	case OpLessThan:
		return "CAST(json_extract(doc, ?) AS REAL) < CAST(? AS REAL)", []any{path, filter.Value}
	default:
		// Unreachable: operators are validated before predicates are built.
		return "1 = 0", nil
	}
}

// dateSortKeyExpr canonicalizes a date field to a YYYY-MM-DD sort key.
// ISO values pass through; MM/DD/YYYY and MM-DD-YYYY (single- or
// two-digit month/day) are reassembled from their numeric parts. Values
// that are not dates collapse to 0000-00-00, the same "sorts first"
// treatment invalid numbers get from CAST.
const dateSortKeyExpr = `CASE
 WHEN json_extract(doc, ?) GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]' THEN json_extract(doc, ?)
 ELSE printf('%04d-%02d-%02d',
  CAST(substr(replace(json_extract(doc, ?), '-', '/'), -4) AS INTEGER),
  CAST(replace(json_extract(doc, ?), '-', '/') AS INTEGER),
  CAST(substr(replace(json_extract(doc, ?), '-', '/'), instr(replace(json_extract(doc, ?), '-', '/'), '/') + 1) AS INTEGER))
END`

// orderClause builds the ORDER BY expression. Sort casts number columns
// for numeric comparison, normalizes date columns to a chronological
// key, and otherwise compares as text. Row index is always the final
// tiebreak so pagination order is stable; absent sort defaults to
// insertion order.
func orderClause(sort *SortSpec, columns []Column) (string, []any) {
	if sort == nil {
		return "row_index ASC", nil
	}

	colType := TypeText
	for _, col := range columns {
		if col.Name == sort.Column {
			colType = col.Type
			break
		}
	}

	path := jsonPath(sort.Column)
	expr := "json_extract(doc, ?)"
	args := []any{path}
	switch colType {
	case TypeNumber:
		expr = "CAST(json_extract(doc, ?) AS REAL)"
	case TypeDate:
		expr = dateSortKeyExpr
		args = []any{path, path, path, path, path, path}
	}

	direction := "ASC"
	if sort.Direction == SortDesc {
		direction = "DESC"
	}
	return expr + " " + direction + ", row_index ASC", args
}

// jsonPath builds a JSON path addressing a column by name. The name is
// quoted so arbitrary header text (spaces, dots, dollar signs) stays an
// opaque key.
func jsonPath(column string) string {
	escaped := strings.ReplaceAll(column, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `$."` + escaped + `"`
}

// escapeLike escapes LIKE wildcards in a user-supplied value.
func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	value = strings.ReplaceAll(value, "_", `\_`)
	return value
}
