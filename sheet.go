package tabular

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

// Format identifies the uncompressed file format of an upload.
type Format int

const (
	// FormatCSV is comma-separated values.
	FormatCSV Format = iota
	// FormatTSV is tab-separated values.
	FormatTSV
	// FormatXLSX is an Excel workbook. Only the first sheet is ingested.
	FormatXLSX
	// FormatParquet is an Apache Parquet file.
	FormatParquet
)

// compressionType identifies the outer compression of an upload.
type compressionType int

const (
	compressionNone compressionType = iota
	compressionGZ
	compressionBZ2
	compressionXZ
	compressionZSTD
)

// File format delimiters
const (
	csvDelimiter = ','
	tsvDelimiter = '\t'
)

// DetectFormat determines format and compression from a file name, e.g.
// "data.csv", "data.tsv.gz", "data.xlsx.zst". Returns
// ErrUnsupportedFormat for anything else.
func DetectFormat(name string) (Format, error) {
	format, _, err := detectFormat(name)
	return format, err
}

func detectFormat(name string) (Format, compressionType, error) {
	lower := strings.ToLower(filepath.Base(name))

	compression := compressionNone
	switch {
	case strings.HasSuffix(lower, ".gz"):
		compression = compressionGZ
		lower = strings.TrimSuffix(lower, ".gz")
	case strings.HasSuffix(lower, ".bz2"):
		compression = compressionBZ2
		lower = strings.TrimSuffix(lower, ".bz2")
	case strings.HasSuffix(lower, ".xz"):
		compression = compressionXZ
		lower = strings.TrimSuffix(lower, ".xz")
	case strings.HasSuffix(lower, ".zst"):
		compression = compressionZSTD
		lower = strings.TrimSuffix(lower, ".zst")
	case strings.HasSuffix(lower, ".zstd"):
		compression = compressionZSTD
		lower = strings.TrimSuffix(lower, ".zstd")
	}

	switch filepath.Ext(lower) {
	case ".csv":
		return FormatCSV, compression, nil
	case ".tsv":
		return FormatTSV, compression, nil
	case ".xlsx":
		return FormatXLSX, compression, nil
	case ".parquet":
		return FormatParquet, compression, nil
	default:
		return 0, compressionNone, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// ParseSheet parses an uploaded spreadsheet into a header row plus
// ordered data rows. Format and compression are detected from the file
// name. Duplicate header names are rejected; a sheet without a header
// row returns ErrEmptySheet.
func ParseSheet(name string, r io.Reader) (*Sheet, error) {
	format, compression, err := detectFormat(name)
	if err != nil {
		return nil, err
	}

	reader, closer, err := decompressedReader(r, compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressed reader for %s: %w", name, err)
	}
	if closer != nil {
		defer func() {
			_ = closer() // Ignore close error during cleanup
		}()
	}

	var sheet *Sheet
	switch format {
	case FormatCSV:
		sheet, err = parseDelimited(reader, csvDelimiter, "CSV")
	case FormatTSV:
		sheet, err = parseDelimited(reader, tsvDelimiter, "TSV")
	case FormatXLSX:
		sheet, err = parseXLSX(reader)
	case FormatParquet:
		sheet, err = parseParquet(reader)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, err
	}

	if err := validateHeader(sheet.Header); err != nil {
		return nil, err
	}
	return sheet, nil
}

// decompressedReader wraps the reader according to the detected
// compression.
func decompressedReader(r io.Reader, compression compressionType) (io.Reader, func() error, error) {
	switch compression {
	case compressionGZ:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case compressionBZ2:
		return bzip2.NewReader(r), nil, nil

	case compressionXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, nil, nil

	case compressionZSTD:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, func() error { decoder.Close(); return nil }, nil

	default:
		return r, nil, nil
	}
}

// parseDelimited parses CSV or TSV data. Rows may be ragged; the
// ingestor pads missing trailing values to null.
func parseDelimited(r io.Reader, delimiter rune, formatName string) (*Sheet, error) {
	csvReader := csv.NewReader(r)
	csvReader.Comma = delimiter
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", formatName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, Record(row))
	}
	return &Sheet{Header: rows[0], Records: records}, nil
}

// parseXLSX parses the first sheet of an Excel workbook. XLSX is a ZIP
// container and requires random access, so excelize buffers the input.
func parseXLSX(r io.Reader) (*Sheet, error) {
	xlsxFile, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer func() {
		_ = xlsxFile.Close() // Ignore close error
	}()

	sheetNames := xlsxFile.GetSheetList()
	if len(sheetNames) == 0 {
		return nil, ErrEmptySheet
	}

	rows, err := xlsxFile.GetRows(sheetNames[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetNames[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// Pad short rows so every record has one field per column.
		record := make(Record, len(header))
		for i := range header {
			if i < len(row) {
				record[i] = row[i]
			}
		}
		records = append(records, record)
	}
	return &Sheet{Header: header, Records: records}, nil
}

// parseParquet reads a Parquet file through the Arrow reader. Parquet
// requires random access, so the whole input is buffered first.
func parseParquet(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptySheet
	}

	pqReader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer func() {
		_ = pqReader.Close() // Ignore close error
	}()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer table.Release()

	schema := table.Schema()
	header := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}

	tableReader := array.NewTableReader(table, 0)
	defer tableReader.Release()

	var records []Record
	for tableReader.Next() {
		batch := tableReader.Record()
		numRows := batch.NumRows()
		for i := int64(0); i < numRows; i++ {
			row := make(Record, batch.NumCols())
			for j, col := range batch.Columns() {
				row[j] = arrowValue(col, int(i))
			}
			records = append(records, row)
		}
	}
	if err := tableReader.Err(); err != nil {
		return nil, fmt.Errorf("error reading parquet records: %w", err)
	}

	return &Sheet{Header: header, Records: records}, nil
}

// arrowValue extracts one cell from an Arrow array as a string. Null
// cells become empty strings, matching the CSV representation of a
// missing value.
func arrowValue(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	return col.ValueStr(i)
}

// errInvalidSheet guards against a nil sheet reaching ingestion.
var errInvalidSheet = errors.New("tabular: nil sheet")
