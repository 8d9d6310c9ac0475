package validation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

func widgetSource() domain.Source {
	return domain.Source{
		Name:        "widgets",
		FilePattern: "widgets_*.csv",
		Type:        domain.SourceTypeCSV,
		TableName:   "widgets",
		Grain:       []string{"id"},
		Fields: []domain.FieldDefinition{
			{Name: "id", Type: domain.FieldTypeInteger, Required: true},
			{Name: "name", Type: domain.FieldTypeString, Required: false, MaxLength: 10},
		},
	}
}

func TestValidateCoercesTypes(t *testing.T) {
	src := domain.Source{
		Name: "all_types", FilePattern: "x*.csv", Type: domain.SourceTypeCSV,
		TableName: "all_types", Grain: []string{"id"},
		Fields: []domain.FieldDefinition{
			{Name: "id", Type: domain.FieldTypeInteger, Required: true},
			{Name: "ratio", Type: domain.FieldTypeFloat, Required: true},
			{Name: "active", Type: domain.FieldTypeBoolean, Required: true},
			{Name: "born", Type: domain.FieldTypeDate, Required: true},
			{Name: "seen", Type: domain.FieldTypeDateTime, Required: true},
			{Name: "label", Type: domain.FieldTypeString, Required: true},
		},
	}

	result := Validate(src, map[string]any{
		"id":     "42",
		"ratio":  "3.14",
		"active": "yes",
		"born":   "2024-06-01",
		"seen":   "2024-06-01 12:30:00",
		"label":  "hello",
	})
	require.Empty(t, result.Errors)
	require.Equal(t, int64(42), result.Record["id"])
	require.Equal(t, 3.14, result.Record["ratio"])
	require.Equal(t, true, result.Record["active"])
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), result.Record["born"])
	require.Equal(t, "hello", result.Record["label"])
}

func TestValidateIntParsingError(t *testing.T) {
	result := Validate(widgetSource(), map[string]any{"id": "x", "name": "b"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "int_parsing", result.Errors[0].ErrorType)
	require.Equal(t, "id", result.Errors[0].ColumnName)
	require.Equal(t, "x", result.Errors[0].ColumnValue)
	require.Equal(t, result.Errors[0].ErrorMsg, strings.ToLower(result.Errors[0].ErrorMsg))
}

func TestValidateAcceptsIntegralFloat(t *testing.T) {
	result := Validate(widgetSource(), map[string]any{"id": "7.0", "name": "a"})
	require.Empty(t, result.Errors)
	require.Equal(t, int64(7), result.Record["id"])
}

func TestValidateMissingRequired(t *testing.T) {
	result := Validate(widgetSource(), map[string]any{"name": "a"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "missing", result.Errors[0].ErrorType)
	require.Equal(t, "id", result.Errors[0].ColumnName)
}

func TestValidateEmptyOptionalBecomesNull(t *testing.T) {
	src := widgetSource()
	src.Fields = append(src.Fields, domain.FieldDefinition{Name: "count", Type: domain.FieldTypeInteger})

	result := Validate(src, map[string]any{"id": "1", "name": "", "count": ""})
	require.Empty(t, result.Errors)
	// Empty strings stay empty strings; empty non-string cells become null.
	require.Equal(t, "", result.Record["name"])
	require.Nil(t, result.Record["count"])
}

func TestValidateRenamesAliasesAndDropsUnknown(t *testing.T) {
	src := widgetSource()
	src.Fields[0].Alias = "Widget Id"

	result := Validate(src, map[string]any{"Widget Id": "9", "name": "a", "extra": "dropped"})
	require.Empty(t, result.Errors)
	require.Equal(t, int64(9), result.Record["id"])
	require.NotContains(t, result.Record, "extra")
	require.NotContains(t, result.Record, "Widget Id")
}

func TestValidateAliasCaseInsensitive(t *testing.T) {
	src := widgetSource()
	src.Fields[0].Alias = "Widget Id"

	result := Validate(src, map[string]any{"WIDGET ID": "9", "NAME": "a"})
	require.Empty(t, result.Errors)
	require.Equal(t, int64(9), result.Record["id"])
}

func TestValidateMaxLength(t *testing.T) {
	result := Validate(widgetSource(), map[string]any{"id": "1", "name": "this is far too long"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "string_too_long", result.Errors[0].ErrorType)
}

func TestValidateEnum(t *testing.T) {
	src := widgetSource()
	src.Fields = append(src.Fields, domain.FieldDefinition{
		Name: "color", Type: domain.FieldTypeString, Enum: []string{"red", "blue"},
	})

	result := Validate(src, map[string]any{"id": "1", "name": "a", "color": "green"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "enum", result.Errors[0].ErrorType)

	result = Validate(src, map[string]any{"id": "1", "name": "a", "color": "red"})
	require.Empty(t, result.Errors)
}

func TestValidateRange(t *testing.T) {
	min := 0.0
	src := widgetSource()
	src.Fields = append(src.Fields, domain.FieldDefinition{
		Name: "qty", Type: domain.FieldTypeInteger, Required: true, Min: &min,
	})

	result := Validate(src, map[string]any{"id": "1", "name": "a", "qty": "-3"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "greater_than_equal", result.Errors[0].ErrorType)
}

func TestValidateCleanAndCheckHooks(t *testing.T) {
	src := widgetSource()
	src.Fields = append(src.Fields, domain.FieldDefinition{
		Name: "email", Type: domain.FieldTypeString, Required: true,
		Clean: func(v string) string { return strings.ToLower(strings.TrimSpace(v)) },
		Check: func(v any) error {
			if !strings.Contains(v.(string), "@") {
				return fmt.Errorf("value is not a valid email address")
			}
			return nil
		},
	})

	result := Validate(src, map[string]any{"id": "1", "name": "a", "email": "  User@Example.COM "})
	require.Empty(t, result.Errors)
	require.Equal(t, "user@example.com", result.Record["email"])

	result = Validate(src, map[string]any{"id": "1", "name": "a", "email": "nonsense"})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "check_failed", result.Errors[0].ErrorType)
}

func TestFailedRecordDataKeepsGrainAndErroredFields(t *testing.T) {
	src := widgetSource()
	src.Fields = append(src.Fields, domain.FieldDefinition{Name: "count", Type: domain.FieldTypeInteger, Required: true})

	values := map[string]any{"id": "1", "name": "fine", "count": "oops"}
	result := Validate(src, values)
	require.Len(t, result.Errors, 1)

	data := FailedRecordData(src, values, result.Errors)
	require.Equal(t, map[string]any{"id": "1", "count": "oops"}, data)
}
