package tabular

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newTestStore(t), NewCache(DefaultCacheConfig()))
	t.Cleanup(svc.Close)
	return svc
}

func peopleSheet() *Sheet {
	header, records := peopleRecords()
	return &Sheet{Header: header, Records: records}
}

// countingEngine wraps the real engine and counts how often it actually
// runs, so cache hits are observable.
type countingEngine struct {
	inner queryEngine
	calls int
}

func (c *countingEngine) Run(ctx context.Context, datasetID string, columns []Column, spec FilterSpec) (*QueryResult, error) {
	c.calls++
	return c.inner.Run(ctx, datasetID, columns, spec)
}

func TestServiceIngestAndQuery(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, "people", peopleSheet())
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProcessedCount)
	assert.Equal(t, 1, result.ErrorCount)

	ds, err := svc.Dataset(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, ds.Status)
	assert.Equal(t, 5, ds.RowCount)
	assert.Equal(t, 2, ds.ColumnCount)

	qr, err := svc.Query(ctx, "people", FilterSpec{
		Filters: []ColumnFilter{{Column: "age", Operator: OpGreaterThan, Value: "25", Type: TypeNumber}},
	})
	require.NoError(t, err)
	require.Len(t, qr.Rows, 2)
	assert.Equal(t, "dave", qr.Rows[0].Document["name"])
	assert.Equal(t, "eve", qr.Rows[1].Document["name"])
	assert.Len(t, qr.Columns, 2)
}

func TestServiceIngestHeaderOnly(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	// A sheet with a header and no data rows is a complete, queryable
	// dataset, not an error.
	result, err := svc.Ingest(ctx, "empty", &Sheet{Header: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)

	ds, err := svc.Dataset(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, ds.Status)

	progress, err := svc.Progress(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 100, progress.ProgressPercent)

	qr, err := svc.Query(ctx, "empty", FilterSpec{})
	require.NoError(t, err)
	assert.Empty(t, qr.Rows)
	assert.Equal(t, 0, qr.Pagination.Total)
	assert.Len(t, qr.Columns, 2)
}

func TestServiceIngestErrors(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "bad", &Sheet{Header: []string{"a", "a"}})
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	// The failed dataset stays visible with status failed, and querying
	// it is rejected.
	ds, err := svc.Dataset(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ds.Status)

	_, err = svc.Query(ctx, "bad", FilterSpec{})
	assert.ErrorIs(t, err, ErrDatasetFailed)

	// A dataset ID is ingested exactly once.
	_, err = svc.Ingest(ctx, "people", peopleSheet())
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "people", peopleSheet())
	assert.ErrorIs(t, err, ErrDatasetExists)
}

func TestServiceQueryNotReady(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.store.CreateDataset(ctx, "pending"))
	_, err := svc.Query(ctx, "pending", FilterSpec{})
	assert.ErrorIs(t, err, ErrDatasetNotReady)

	_, err = svc.Query(ctx, "missing", FilterSpec{})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestServiceQueryCache(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	spy := &countingEngine{inner: svc.engine}
	svc.engine = spy

	_, err := svc.Ingest(ctx, "people", peopleSheet())
	require.NoError(t, err)

	spec := FilterSpec{Search: "alice"}
	first, err := svc.Query(ctx, "people", spec)
	require.NoError(t, err)
	assert.Equal(t, 1, spy.calls)

	// The identical request is served from the cache without touching
	// the engine, and the payload round-trips intact.
	second, err := svc.Query(ctx, "people", spec)
	require.NoError(t, err)
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, first, second)

	// A different spec is a different cache key.
	_, err = svc.Query(ctx, "people", FilterSpec{Search: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, spy.calls)

	// Explicit defaults and omitted defaults normalize to the same key.
	_, err = svc.Query(ctx, "people", FilterSpec{Search: "alice", Page: 1, PageSize: DefaultPageSize})
	require.NoError(t, err)
	assert.Equal(t, 2, spy.calls)
}

func TestServiceQueryCacheKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	spy := &countingEngine{inner: svc.engine}
	svc.engine = spy

	_, err := svc.Ingest(ctx, "d", &Sheet{
		Header:  []string{"a"},
		Records: []Record{{"v|x"}, {"v"}},
	})
	require.NoError(t, err)

	// A filter value containing the cache-key delimiter must not be
	// served another spec's cached payload.
	first, err := svc.Query(ctx, "d", FilterSpec{
		Filters: []ColumnFilter{{Column: "a", Operator: OpEquals, Value: "v|x"}},
	})
	require.NoError(t, err)
	second, err := svc.Query(ctx, "d", FilterSpec{
		Filters: []ColumnFilter{{Column: "a", Operator: OpEquals, Value: "v"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, spy.calls)
	require.Len(t, first.Rows, 1)
	require.Len(t, second.Rows, 1)
	assert.Equal(t, "v|x", first.Rows[0].Document["a"])
	assert.Equal(t, "v", second.Rows[0].Document["a"])
}

func TestServiceColumnsCached(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "people", peopleSheet())
	require.NoError(t, err)

	columns, err := svc.Columns(ctx, "people")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "name", columns[0].Name)
	assert.Equal(t, TypeNumber, columns[1].Type)

	again, err := svc.Columns(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, columns, again)
}

func TestServiceDeleteDataset(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "people", peopleSheet())
	require.NoError(t, err)

	// Warm the cache, then delete: both storage and cache entries go.
	_, err = svc.Query(ctx, "people", FilterSpec{})
	require.NoError(t, err)
	require.NotZero(t, svc.cache.Len())

	require.NoError(t, svc.DeleteDataset(ctx, "people"))
	assert.Zero(t, svc.cache.Len())

	_, err = svc.Dataset(ctx, "people")
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	err = svc.DeleteDataset(ctx, "people")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestServiceDatasetIsolation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "a", peopleSheet())
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "b", &Sheet{
		Header:  []string{"city"},
		Records: []Record{{"tokyo"}, {"osaka"}},
	})
	require.NoError(t, err)

	qa, err := svc.Query(ctx, "a", FilterSpec{})
	require.NoError(t, err)
	qb, err := svc.Query(ctx, "b", FilterSpec{})
	require.NoError(t, err)

	assert.Equal(t, 5, qa.Pagination.Total)
	assert.Equal(t, 2, qb.Pagination.Total)
}

func TestServiceDeleteLeavesOtherDatasetsAlone(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	spy := &countingEngine{inner: svc.engine}
	svc.engine = spy

	_, err := svc.Ingest(ctx, "a", peopleSheet())
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "b", peopleSheet())
	require.NoError(t, err)

	// Warm a's cache, then delete b.
	_, err = svc.Query(ctx, "a", FilterSpec{})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDataset(ctx, "b"))

	// a's progress and cached entries survive the unrelated delete.
	progress, err := svc.Progress(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 100, progress.ProgressPercent)

	calls := spy.calls
	_, err = svc.Query(ctx, "a", FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, calls, spy.calls, "a's cache entry should survive b's delete")
}
