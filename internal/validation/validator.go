// Package validation turns raw field maps into typed records. It is pure and
// stateless: the sole place user-declared field constraints are enforced.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
}

// Result is the outcome of validating one field map: a typed record when
// Errors is empty, otherwise the ordered list of per-field failures.
type Result struct {
	Record domain.Record
	Errors []domain.FieldError
}

// Validate renames source aliases to canonical field names, drops unknown
// fields, coerces each value to its declared type and enforces constraints.
func Validate(src domain.Source, values map[string]any) Result {
	lowered := make(map[string]any, len(values))
	for key, value := range values {
		lowered[strings.ToLower(strings.TrimSpace(key))] = value
	}

	record := make(domain.Record, len(src.Fields))
	var errs []domain.FieldError

	for _, field := range src.Fields {
		alias := field.SourceAlias()
		raw, present := lowered[strings.ToLower(alias)]
		if !present || isEmpty(raw) {
			if field.Type == domain.FieldTypeString && present {
				// Empty CSV cells are empty strings, not missing values.
				record[field.Name] = cleanString(field, "")
				continue
			}
			if field.Required {
				errs = append(errs, fieldError(alias, raw, "missing", "field required"))
			} else {
				record[field.Name] = nil
			}
			continue
		}

		value, fieldErr := coerce(field, raw)
		if fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		if fieldErr := checkConstraints(field, alias, value); fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		record[field.Name] = value
	}

	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Record: record}
}

// FailedRecordData extracts the DLQ payload for a failed row: the grain
// fields plus every field that errored, keyed by source alias.
func FailedRecordData(src domain.Source, values map[string]any, errs []domain.FieldError) map[string]any {
	lowered := make(map[string]any, len(values))
	for key, value := range values {
		lowered[strings.ToLower(strings.TrimSpace(key))] = value
	}

	keep := make(map[string]struct{}, len(errs)+len(src.Grain))
	for _, fieldErr := range errs {
		keep[strings.ToLower(fieldErr.ColumnName)] = struct{}{}
	}
	for _, grainField := range src.Grain {
		keep[strings.ToLower(src.AliasFor(grainField))] = struct{}{}
	}

	data := make(map[string]any, len(keep))
	for _, field := range src.Fields {
		alias := field.SourceAlias()
		if _, wanted := keep[strings.ToLower(alias)]; !wanted {
			continue
		}
		if value, ok := lowered[strings.ToLower(alias)]; ok {
			data[alias] = value
		}
	}
	return data
}

func fieldError(alias string, raw any, errType, msg string) domain.FieldError {
	return domain.FieldError{
		ColumnName:  alias,
		ColumnValue: stringify(raw),
		ErrorType:   errType,
		ErrorMsg:    strings.ToLower(msg),
	}
}

func coerce(field domain.FieldDefinition, raw any) (any, *domain.FieldError) {
	alias := field.SourceAlias()
	str := stringify(raw)
	if field.Clean != nil {
		str = field.Clean(str)
	}

	switch field.Type {
	case domain.FieldTypeString:
		return str, nil

	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64); err == nil {
			return i, nil
		}
		// Accept float renderings that convert losslessly.
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		fieldErr := fieldError(alias, raw, "int_parsing", fmt.Sprintf("unable to parse %q as integer", str))
		return nil, &fieldErr

	case domain.FieldTypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return f, nil
		}
		fieldErr := fieldError(alias, raw, "float_parsing", fmt.Sprintf("unable to parse %q as float", str))
		return nil, &fieldErr

	case domain.FieldTypeBoolean:
		switch strings.ToLower(strings.TrimSpace(str)) {
		case "true", "1", "yes", "y", "t":
			return true, nil
		case "false", "0", "no", "n", "f":
			return false, nil
		}
		fieldErr := fieldError(alias, raw, "bool_parsing", fmt.Sprintf("unable to parse %q as boolean", str))
		return nil, &fieldErr

	case domain.FieldTypeDate:
		trimmed := strings.TrimSpace(str)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts, nil
			}
		}
		fieldErr := fieldError(alias, raw, "date_parsing", fmt.Sprintf("unable to parse %q as date", str))
		return nil, &fieldErr

	case domain.FieldTypeDateTime:
		trimmed := strings.TrimSpace(str)
		for _, layout := range datetimeLayouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts, nil
			}
		}
		fieldErr := fieldError(alias, raw, "datetime_parsing", fmt.Sprintf("unable to parse %q as datetime", str))
		return nil, &fieldErr
	}

	return str, nil
}

func checkConstraints(field domain.FieldDefinition, alias string, value any) *domain.FieldError {
	if str, ok := value.(string); ok {
		if field.MaxLength > 0 && len(str) > field.MaxLength {
			fieldErr := fieldError(alias, str, "string_too_long",
				fmt.Sprintf("string of length %d exceeds max length %d", len(str), field.MaxLength))
			return &fieldErr
		}
		if len(field.Enum) > 0 && !contains(field.Enum, str) {
			fieldErr := fieldError(alias, str, "enum",
				fmt.Sprintf("value must be one of: %s", strings.Join(field.Enum, ", ")))
			return &fieldErr
		}
	}

	if num, ok := asFloat(value); ok {
		if field.Min != nil && num < *field.Min {
			fieldErr := fieldError(alias, value, "greater_than_equal",
				fmt.Sprintf("value must be greater than or equal to %v", *field.Min))
			return &fieldErr
		}
		if field.Max != nil && num > *field.Max {
			fieldErr := fieldError(alias, value, "less_than_equal",
				fmt.Sprintf("value must be less than or equal to %v", *field.Max))
			return &fieldErr
		}
	}

	if field.Check != nil {
		if err := field.Check(value); err != nil {
			fieldErr := fieldError(alias, value, "check_failed", err.Error())
			return &fieldErr
		}
	}
	return nil
}

func cleanString(field domain.FieldDefinition, str string) string {
	if field.Clean != nil {
		return field.Clean(str)
	}
	return str
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
