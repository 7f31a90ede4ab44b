package tabular

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Date patterns accepted by the inferencer and the validator. Each
// pattern is regexp-gated before time.Parse to avoid parsing obviously
// non-date values.
var datePatterns = []struct {
	pattern *regexp.Regexp
	formats []string
}{
	// ISO date
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
	// US format with slashes
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
	},
	// US format with dashes
	{
		regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`),
		[]string{"1-2-2006", "01-02-2006"},
	},
}

// isDate checks if a string value represents a valid calendar date.
func isDate(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	for _, dp := range datePatterns {
		if dp.pattern.MatchString(value) {
			for _, format := range dp.formats {
				if _, err := time.Parse(format, value); err == nil {
					return true
				}
			}
		}
	}
	return false
}

// isBooleanLiteral checks if a value is a textual boolean literal.
// Numeric forms ("1"/"0") intentionally classify as numbers during
// inference; the validator accepts them for boolean columns.
func isBooleanLiteral(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false":
		return true
	default:
		return false
	}
}

// isNumeric checks if a value parses as a number.
func isNumeric(value string) bool {
	// Quick pre-check: must contain a digit
	hasDigit := false
	for _, r := range value {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// isStructured checks if a value parses as a nested JSON document
// (object or array). Bare scalars do not count.
func isStructured(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return false
	}
	first := value[0]
	if first != '{' && first != '[' {
		return false
	}
	var v any
	return json.Unmarshal([]byte(value), &v) == nil
}

// classifyValue determines the semantic type of a single value.
func classifyValue(value string) ColumnType {
	if isBooleanLiteral(value) {
		return TypeBoolean
	}
	if isNumeric(value) {
		return TypeNumber
	}
	if isDate(value) {
		return TypeDate
	}
	if isStructured(value) {
		return TypeStructured
	}
	return TypeText
}

// typePrecedence is the deterministic tie-break order for the majority
// vote: when two types are equally represented in the sample, the more
// general type wins.
var typePrecedence = []ColumnType{TypeText, TypeNumber, TypeDate, TypeBoolean, TypeStructured}

// inferColumnType returns the majority-vote type across the sampled
// values of one column. Empty values are skipped; a column with zero
// non-empty samples defaults to text.
func inferColumnType(values []string) ColumnType {
	counts := make(map[ColumnType]int, len(typePrecedence))

	nonEmpty := 0
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		nonEmpty++
		counts[classifyValue(value)]++
	}

	if nonEmpty == 0 {
		return TypeText
	}

	best := TypeText
	bestCount := -1
	for _, ct := range typePrecedence {
		if counts[ct] > bestCount {
			best = ct
			bestCount = counts[ct]
		}
	}
	return best
}

// InferColumns infers the column schema from a header row and a bounded
// sample of data rows. Output columns default to searchable and
// sortable with the header text as display label; required is never
// auto-derived.
func InferColumns(header []string, sample []Record) []Column {
	if len(header) == 0 {
		return nil
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{
			Position:   i,
			Name:       name,
			Type:       TypeText,
			Searchable: true,
			Sortable:   true,
			Label:      name,
		}
	}

	if len(sample) == 0 {
		return columns
	}

	for i := range columns {
		var values []string
		for _, record := range sample {
			if i < len(record) {
				values = append(values, record[i])
			}
		}
		columns[i].Type = inferColumnType(values)
	}

	return columns
}
