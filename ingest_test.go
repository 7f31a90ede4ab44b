package tabular

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	names := []string{"a", "b", "c"}

	doc := buildDocument(names, Record{"1", "2", "3"})
	assert.Equal(t, Document{"a": "1", "b": "2", "c": "3"}, doc)

	// Missing trailing values become nil, not empty strings.
	doc = buildDocument(names, Record{"1"})
	assert.Equal(t, Document{"a": "1", "b": nil, "c": nil}, doc)

	// Extra trailing values are dropped: the schema defines the shape.
	doc = buildDocument(names, Record{"1", "2", "3", "4"})
	assert.Len(t, doc, 3)
}

func TestIngestorRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	header := []string{"name", "age"}
	records := []Record{
		{"alice", "10"},
		{"bob", "20"},
		{"carol", "thirty"},
		{"dave", "40"},
		{"eve", "50"},
	}
	columns := InferColumns(header, records)
	require.Equal(t, TypeNumber, columns[1].Type, "4 of 5 samples are numeric")

	require.NoError(t, store.CreateDataset(ctx, "ds1"))
	require.NoError(t, store.InsertColumns(ctx, "ds1", columns))
	require.NoError(t, store.SetCounts(ctx, "ds1", len(records), len(columns)))

	result, err := newIngestor(store, 2).run(ctx, "ds1", records, columns)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProcessedCount)
	assert.Equal(t, 1, result.ErrorCount)

	// The invalid row is persisted with its error, not dropped.
	row, err := store.RowByIndex(ctx, "ds1", 3)
	require.NoError(t, err)
	assert.False(t, row.Valid)
	require.Len(t, row.Errors, 1)
	assert.Contains(t, row.Errors[0], "age")

	// Progress lands on the final count after the last chunk.
	ds, err := store.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, 5, ds.ProcessedRows)
}

func TestIngestorRowIndexOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	var records []Record
	for i := range 25 {
		records = append(records, Record{fmt.Sprintf("row-%d", i+1)})
	}
	columns := InferColumns([]string{"label"}, records)

	require.NoError(t, store.CreateDataset(ctx, "ds1"))
	require.NoError(t, store.InsertColumns(ctx, "ds1", columns))

	_, err := newIngestor(store, 10).run(ctx, "ds1", records, columns)
	require.NoError(t, err)

	// Row indices are 1-based and match source order across chunk
	// boundaries.
	for _, idx := range []int{1, 10, 11, 25} {
		row, err := store.RowByIndex(ctx, "ds1", idx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("row-%d", idx), row.Document["label"])
	}
}

func TestIngestorRoundTripValidity(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	header := []string{"id", "when"}
	records := []Record{
		{"1", "2023-01-15"},
		{"2", "not a date"},
		{"3"},
	}
	columns := InferColumns(header, records)

	require.NoError(t, store.CreateDataset(ctx, "ds1"))
	require.NoError(t, store.InsertColumns(ctx, "ds1", columns))
	_, err := newIngestor(store, DefaultChunkSize).run(ctx, "ds1", records, columns)
	require.NoError(t, err)

	// Reading back any row yields a document with exactly the column
	// names as keys, and a stored validity that matches a fresh
	// validation of that document.
	for idx := 1; idx <= len(records); idx++ {
		row, err := store.RowByIndex(ctx, "ds1", idx)
		require.NoError(t, err)

		assert.Len(t, row.Document, len(columns))
		for _, col := range columns {
			_, ok := row.Document[col.Name]
			assert.True(t, ok, "row %d missing key %s", idx, col.Name)
		}

		valid, _ := ValidateRow(row.Document, columns)
		assert.Equal(t, valid, row.Valid, "row %d stored validity differs from fresh validation", idx)
	}
}
