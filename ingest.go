package tabular

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// ingestor streams parsed rows through the validator in bounded chunks
// and persists rows plus validity metadata. One chunk is one batch
// write; ingestion is deliberately not atomic across the whole file so
// peak memory stays bounded and progress is reportable between chunks.
type ingestor struct {
	store     *Store
	chunkSize int
}

func newIngestor(store *Store, chunkSize int) *ingestor {
	if chunkSize < MinChunkSize {
		chunkSize = DefaultChunkSize
	}
	return &ingestor{store: store, chunkSize: chunkSize}
}

// run validates and persists all records of a dataset. Row indices are
// 1-based and follow source file order. A chunk write failure aborts
// the remaining chunks; rows from already-committed chunks remain
// persisted and the caller marks the dataset failed.
func (ing *ingestor) run(ctx context.Context, datasetID string, records []Record, columns []Column) (IngestResult, error) {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}

	var result IngestResult
	staged := make([]stagedRow, 0, ing.chunkSize)

	flush := func() error {
		if len(staged) == 0 {
			return nil
		}
		if err := ing.store.InsertRowChunk(ctx, datasetID, staged); err != nil {
			return fmt.Errorf("failed to persist chunk ending at row %d: %w", staged[len(staged)-1].Index, err)
		}
		result.ProcessedCount += len(staged)
		staged = staged[:0]
		if err := ing.store.UpdateProgress(ctx, datasetID, result.ProcessedCount); err != nil {
			return err
		}
		return nil
	}

	for i, record := range records {
		doc := buildDocument(names, record)
		valid, errs := ValidateRow(doc, columns)
		if !valid {
			result.ErrorCount++
		}

		row, err := stageRow(i+1, doc, valid, errs)
		if err != nil {
			return result, err
		}
		staged = append(staged, row)

		if len(staged) >= ing.chunkSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}

	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

// buildDocument zips column names to positional values. Missing
// trailing values become nil; present values stay as source strings.
func buildDocument(names []string, record Record) Document {
	doc := make(Document, len(names))
	for i, name := range names {
		if i < len(record) {
			doc[name] = record[i]
		} else {
			doc[name] = nil
		}
	}
	return doc
}

// stageRow serializes one validated row for persistence. Validation
// failures are data, not errors: the row is persisted either way.
func stageRow(index int, doc Document, valid bool, errs []string) (stagedRow, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return stagedRow{}, fmt.Errorf("failed to encode row %d: %w", index, err)
	}

	var errsJSON *string
	if len(errs) > 0 {
		encoded, err := json.Marshal(errs)
		if err != nil {
			return stagedRow{}, fmt.Errorf("failed to encode errors for row %d: %w", index, err)
		}
		s := string(encoded)
		errsJSON = &s
	}

	return stagedRow{
		Index:  index,
		Doc:    string(docJSON),
		Valid:  valid,
		Errors: errsJSON,
	}, nil
}
