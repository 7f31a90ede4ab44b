package tabular

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Service is the core facade: it owns the ingestion control flow
// (infer, persist schema, chunked ingest) and the cache-fronted read
// path. Multiple ingestions and queries may run concurrently across
// different datasets with no coordination; every operation is scoped to
// a single dataset, and a dataset is created once and ingested exactly
// once.
type Service struct {
	store     *Store
	cache     *Cache
	engine    queryEngine
	chunkSize int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithChunkSize overrides the ingestion batch size.
func WithChunkSize(n int) ServiceOption {
	return func(s *Service) {
		if n >= MinChunkSize {
			s.chunkSize = n
		}
	}
}

// NewService wires a Service from its store and cache. The caller owns
// the store's lifecycle; Close releases only the cache.
func NewService(store *Store, cache *Cache, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		cache:     cache,
		engine:    newEngine(store),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops the cache's background sweep.
func (s *Service) Close() {
	s.cache.Close()
}

// Ingest runs the full upload control flow for one dataset: create the
// dataset record, infer the column schema from a bounded sample,
// persist the columns, then validate and persist every row in chunks.
// On completion the dataset is marked processed and its cache entries
// invalidated. On any failure the dataset is marked failed; rows from
// chunks committed before the failure remain persisted.
func (s *Service) Ingest(ctx context.Context, datasetID string, sheet *Sheet) (*IngestResult, error) {
	if sheet == nil {
		return nil, errInvalidSheet
	}

	if err := s.store.CreateDataset(ctx, datasetID); err != nil {
		return nil, err
	}

	if err := validateHeader(sheet.Header); err != nil {
		_ = s.store.MarkFailed(ctx, datasetID)
		return nil, err
	}

	columns := InferColumns(sheet.Header, sheet.Sample(InferenceSampleSize))
	if err := s.store.InsertColumns(ctx, datasetID, columns); err != nil {
		_ = s.store.MarkFailed(ctx, datasetID)
		return nil, err
	}
	if err := s.store.SetCounts(ctx, datasetID, len(sheet.Records), len(columns)); err != nil {
		_ = s.store.MarkFailed(ctx, datasetID)
		return nil, err
	}

	result, err := newIngestor(s.store, s.chunkSize).run(ctx, datasetID, sheet.Records, columns)
	if err != nil {
		_ = s.store.MarkFailed(ctx, datasetID)
		s.cache.InvalidateDataset(datasetID)
		return nil, fmt.Errorf("tabular: ingestion of dataset %s aborted: %w", datasetID, err)
	}

	if err := s.store.MarkProcessed(ctx, datasetID, len(sheet.Records), len(columns)); err != nil {
		return nil, err
	}
	s.cache.InvalidateDataset(datasetID)
	return &result, nil
}

// Dataset returns the dataset's status and final counts.
func (s *Service) Dataset(ctx context.Context, datasetID string) (*Dataset, error) {
	return s.store.GetDataset(ctx, datasetID)
}

// Progress returns the pollable ingestion progress of a dataset.
func (s *Service) Progress(ctx context.Context, datasetID string) (*Progress, error) {
	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	percent := 0
	switch {
	case ds.RowCount > 0:
		percent = ds.ProcessedRows * 100 / ds.RowCount
	case ds.Processed():
		percent = 100
	}
	return &Progress{
		ProcessedRows:   ds.ProcessedRows,
		TotalRows:       ds.RowCount,
		ProgressPercent: percent,
	}, nil
}

// Columns returns the dataset's column schema, cache-fronted under the
// schema operation class.
func (s *Service) Columns(ctx context.Context, datasetID string) ([]Column, error) {
	key := CacheKey(CacheClassSchema, datasetID, nil)
	if payload, ok := s.cache.Get(key); ok {
		var columns []Column
		if err := json.Unmarshal(payload, &columns); err == nil {
			return columns, nil
		}
		// A corrupt entry falls through to a fresh load.
	}

	columns, err := s.store.Columns(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(columns); err == nil {
		s.cache.Set(key, payload, CacheClassSchema)
	}
	return columns, nil
}

// Query executes a FilterSpec against a processed dataset, serving
// repeated identical requests from the cache. Queries against an
// unprocessed dataset are rejected, not answered partially.
func (s *Service) Query(ctx context.Context, datasetID string, spec FilterSpec) (*QueryResult, error) {
	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	switch ds.Status {
	case StatusProcessed:
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrDatasetFailed, datasetID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotReady, datasetID)
	}

	spec = spec.normalized()
	key := CacheKey(CacheClassQuery, datasetID, spec.cacheParams())
	if payload, ok := s.cache.Get(key); ok {
		var result QueryResult
		if err := json.Unmarshal(payload, &result); err == nil {
			return &result, nil
		}
	}

	columns, err := s.Columns(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Run(ctx, datasetID, columns, spec)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(result); err == nil {
		s.cache.Set(key, payload, CacheClassQuery)
	}
	return result, nil
}

// DeleteDataset removes the dataset, its columns and rows, and purges
// every cache entry scoped to it.
func (s *Service) DeleteDataset(ctx context.Context, datasetID string) error {
	if err := s.store.DeleteDataset(ctx, datasetID); err != nil {
		return err
	}
	s.cache.InvalidateDataset(datasetID)
	return nil
}
