// Package tabular ingests arbitrary spreadsheet files into SQLite as
// schema-less rows and exposes a typed query engine over them.
//
// An uploaded sheet has no schema until it is read: tabular infers a
// per-column semantic type (text, number, date, boolean, structured) from
// a bounded sample of rows, validates every row against the inferred
// schema, and stores each row as an opaque JSON document plus validity
// metadata. The query engine then supports typed comparisons, sorting,
// and offset pagination over those documents, driven entirely by the
// inferred column metadata. A TTL cache absorbs repeated identical
// queries.
//
// # Basic Usage
//
//	store, err := tabular.OpenStore("datasets.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	svc := tabular.NewService(store, tabular.NewCache(tabular.DefaultCacheConfig()))
//	defer svc.Close()
//
//	sheet, err := tabular.ParseSheet("users.csv", file)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := svc.Ingest(ctx, datasetID, sheet)
//
// Once a dataset is processed, query it with a FilterSpec:
//
//	res, err := svc.Query(ctx, datasetID, tabular.FilterSpec{
//	    Filters: []tabular.ColumnFilter{{
//	        Column:   "age",
//	        Operator: tabular.OpGreaterThan,
//	        Value:    "25",
//	        Type:     tabular.TypeNumber,
//	    }},
//	    Page:     1,
//	    PageSize: 50,
//	})
//
// Supported input formats are CSV, TSV, XLSX, and Parquet, optionally
// compressed with gzip, bzip2, xz, or zstandard.
package tabular
