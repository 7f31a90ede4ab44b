package tabular

import (
	"fmt"
	"strings"
)

// ValidateRow checks one row document against the dataset's columns and
// returns validity plus per-field error messages. It is a pure function
// with no side effects and is safe to call repeatedly or in parallel
// across rows.
func ValidateRow(doc Document, columns []Column) (bool, []string) {
	var errs []string

	for _, col := range columns {
		value, present := stringValue(doc[col.Name])

		if !present || strings.TrimSpace(value) == "" {
			if col.Required {
				errs = append(errs, fmt.Sprintf("%s is required", col.Name))
			}
			// No type validation on a missing value.
			continue
		}

		if msg := validateValue(value, col); msg != "" {
			errs = append(errs, msg)
		}
	}

	return len(errs) == 0, errs
}

// validateValue checks a present value against the column's inferred type.
func validateValue(value string, col Column) string {
	switch col.Type {
	case TypeNumber:
		if !isNumeric(value) {
			return fmt.Sprintf("%s must be a number", col.Name)
		}
	case TypeDate:
		if !isDate(value) {
			return fmt.Sprintf("%s must be a valid date", col.Name)
		}
	case TypeBoolean:
		if !isBooleanValue(value) {
			return fmt.Sprintf("%s must be a boolean", col.Name)
		}
	case TypeStructured:
		if !isStructured(value) {
			return fmt.Sprintf("%s must be structured data", col.Name)
		}
	case TypeText:
		// No check.
	}
	return ""
}

// isBooleanValue checks the fixed literal set accepted for boolean
// columns. Wider than inference-time boolean detection: numeric forms
// are valid boolean values.
func isBooleanValue(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false", "1", "0":
		return true
	default:
		return false
	}
}

// stringValue extracts a document value as a string. Returns false for
// nil/missing values.
func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	default:
		return fmt.Sprintf("%v", s), true
	}
}
