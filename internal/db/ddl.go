package db

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

const (
	LogTableName = "file_load_log"
	DLQTableName = "file_load_dlq"
)

var stageSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// StageTableName derives the ephemeral stage table name for a source file.
// Names are disjoint across concurrent pipelines because filenames are
// unique within the watch directory.
func StageTableName(d Dialect, fileName string) string {
	name := "stage_" + stageSanitizer.ReplaceAllString(fileName, "_")
	if max := d.IdentifierMaxLen(); len(name) > max {
		name = name[:max]
	}
	return name
}

func columnDef(d Dialect, field domain.FieldDefinition) string {
	null := " NULL"
	if field.Required {
		null = " NOT NULL"
	}
	return fmt.Sprintf("%s %s%s", d.QuoteIdent(field.Name), d.ColumnType(field.Type, field.MaxLength), null)
}

// TargetTableSQL builds the create-if-not-exists DDL for a source's target
// table: the row model plus provenance and etl bookkeeping columns.
func TargetTableSQL(d Dialect, src domain.Source) string {
	var cols []string
	for _, field := range src.Fields {
		cols = append(cols, columnDef(d, field))
	}
	cols = append(cols,
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("source_filename"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s BIGINT", d.QuoteIdent("etl_row_hash")),
		fmt.Sprintf("%s %s", d.QuoteIdent("etl_created_at"), d.TimestampType()),
		fmt.Sprintf("%s %s", d.QuoteIdent("etl_updated_at"), d.TimestampType()),
	)
	return d.CreateTable(d.QuoteIdent(src.TableName), strings.Join(cols, ", "))
}

// TargetIndexSQL builds the grain uniqueness constraint and the provenance
// index used by the duplicate-file check and DLQ purge.
func TargetIndexSQL(d Dialect, src domain.Source) []string {
	return []string{
		d.CreateIndex("ux_"+src.TableName+"_grain", src.TableName, src.Grain, true),
		d.CreateIndex("ix_"+src.TableName+"_source_filename", src.TableName, []string{"source_filename"}, false),
	}
}

// StageTableSQL builds the per-file stage table: the row-model columns plus
// source_filename, file_row_number and etl_row_hash (no etl timestamp
// columns), with no indexes.
func StageTableSQL(d Dialect, src domain.Source, stageName string) string {
	var cols []string
	for _, field := range src.Fields {
		cols = append(cols, columnDef(d, field))
	}
	cols = append(cols,
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("source_filename"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s BIGINT NOT NULL", d.QuoteIdent("file_row_number")),
		fmt.Sprintf("%s BIGINT", d.QuoteIdent("etl_row_hash")),
	)
	return d.CreateTable(d.QuoteIdent(stageName), strings.Join(cols, ", "))
}

// LogTableSQL builds the run-log table DDL.
func LogTableSQL(d Dialect) string {
	ts := d.TimestampType()
	boolean := d.ColumnType(domain.FieldTypeBoolean, 0)
	cols := []string{
		fmt.Sprintf("%s %s", d.QuoteIdent("id"), d.AutoIncrementPK()),
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("file_name"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s %s", d.QuoteIdent("source_name"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s %s", d.QuoteIdent("target_table"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("status"), d.ColumnType(domain.FieldTypeString, 32)),
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("started_at"), ts),
		fmt.Sprintf("%s %s", d.QuoteIdent("ended_at"), ts),
	}
	for _, phase := range []string{"archive_copy", "processing", "stage_load", "audit", "merge"} {
		cols = append(cols,
			fmt.Sprintf("%s %s", d.QuoteIdent(phase+"_started_at"), ts),
			fmt.Sprintf("%s %s", d.QuoteIdent(phase+"_ended_at"), ts),
			fmt.Sprintf("%s %s", d.QuoteIdent(phase+"_success"), boolean),
		)
	}
	for _, counter := range []string{"records_processed", "validation_errors", "records_stage_loaded", "target_inserts", "target_updates"} {
		cols = append(cols, fmt.Sprintf("%s BIGINT", d.QuoteIdent(counter)))
	}
	cols = append(cols,
		fmt.Sprintf("%s %s", d.QuoteIdent("error_type"), d.ColumnType(domain.FieldTypeString, 100)),
		fmt.Sprintf("%s %s", d.QuoteIdent("error_message"), d.TextType()),
	)
	return d.CreateTable(d.QuoteIdent(LogTableName), strings.Join(cols, ", "))
}

// DLQTableSQL builds the dead-letter table DDL.
func DLQTableSQL(d Dialect) string {
	cols := []string{
		fmt.Sprintf("%s %s PRIMARY KEY", d.QuoteIdent("id"), d.ColumnType(domain.FieldTypeString, 36)),
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("source_filename"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s BIGINT NOT NULL", d.QuoteIdent("file_row_number")),
		fmt.Sprintf("%s %s", d.QuoteIdent("record_data"), d.TextType()),
		fmt.Sprintf("%s %s", d.QuoteIdent("validation_errors"), d.TextType()),
		fmt.Sprintf("%s BIGINT NOT NULL", d.QuoteIdent("file_load_log_id")),
		fmt.Sprintf("%s %s", d.QuoteIdent("target_table_name"), d.ColumnType(domain.FieldTypeString, 255)),
		fmt.Sprintf("%s %s NOT NULL", d.QuoteIdent("failed_at"), d.TimestampType()),
	}
	return d.CreateTable(d.QuoteIdent(DLQTableName), strings.Join(cols, ", "))
}

// DLQIndexSQL builds the dead-letter lookup indexes.
func DLQIndexSQL(d Dialect) []string {
	return []string{
		d.CreateIndex("ix_"+DLQTableName+"_file_load_log_id", DLQTableName, []string{"file_load_log_id"}, false),
		d.CreateIndex("ix_"+DLQTableName+"_source_filename", DLQTableName, []string{"source_filename"}, false),
	}
}
