package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// FieldType enumerates the semantic types a row-model field can declare.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
)

// SourceType selects the reader family for a source.
type SourceType string

const (
	SourceTypeCSV   SourceType = "csv"
	SourceTypeExcel SourceType = "excel"
	SourceTypeJSON  SourceType = "json"
)

// FieldDefinition describes one field of a source row model: its canonical
// name, the column alias it appears under in files, its type, and the
// constraints enforced during validation. Clean runs on the raw string value
// before coercion; Check runs on the coerced value.
type FieldDefinition struct {
	Name      string
	Alias     string
	Type      FieldType
	Required  bool
	MaxLength int
	Min       *float64
	Max       *float64
	Enum      []string
	Clean     func(string) string
	Check     func(any) error
}

// SourceAlias returns the column name this field appears under in source
// files. Defaults to the canonical name when no alias is declared.
func (f FieldDefinition) SourceAlias() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Source binds a file-name pattern to a row model and a target table.
type Source struct {
	Name                     string
	FilePattern              string
	Type                     SourceType
	Fields                   []FieldDefinition
	TableName                string
	Grain                    []string
	AuditQuery               string
	ValidationErrorThreshold float64
	NotificationEmails       []string

	// Reader options. Delimiter, Encoding and SkipRows apply to CSV sources,
	// SheetName and SkipRows to Excel, ArrayPath and SkipRows to JSON.
	Delimiter rune
	Encoding  string
	SkipRows  int
	SheetName string
	ArrayPath string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the structural invariants of a source configuration.
func (s Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if s.FilePattern == "" {
		return fmt.Errorf("source %s: file pattern is required", s.Name)
	}
	if _, err := doublestar.Match(s.FilePattern, "probe"); err != nil {
		return fmt.Errorf("source %s: invalid file pattern %q: %w", s.Name, s.FilePattern, err)
	}
	if !identifierPattern.MatchString(s.TableName) {
		return fmt.Errorf("source %s: table name %q is not a legal SQL identifier", s.Name, s.TableName)
	}
	if s.ValidationErrorThreshold < 0 || s.ValidationErrorThreshold > 1 {
		return fmt.Errorf("source %s: validation error threshold %v outside [0, 1]", s.Name, s.ValidationErrorThreshold)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("source %s: row model has no fields", s.Name)
	}
	if len(s.Grain) == 0 {
		return fmt.Errorf("source %s: grain is required", s.Name)
	}
	byName := make(map[string]FieldDefinition, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name == "" {
			return fmt.Errorf("source %s: row model field with empty name", s.Name)
		}
		if !identifierPattern.MatchString(field.Name) {
			return fmt.Errorf("source %s: field name %q is not a legal SQL identifier", s.Name, field.Name)
		}
		if _, dup := byName[field.Name]; dup {
			return fmt.Errorf("source %s: duplicate field %s", s.Name, field.Name)
		}
		byName[field.Name] = field
	}
	for _, grainField := range s.Grain {
		field, ok := byName[grainField]
		if !ok {
			return fmt.Errorf("source %s: grain field %s is not part of the row model", s.Name, grainField)
		}
		if !field.Required {
			return fmt.Errorf("source %s: grain field %s must be required", s.Name, grainField)
		}
	}
	return nil
}

// MatchesFile reports whether the file's basename matches the source pattern.
// Matching is case-insensitive like the filesystems these files come from.
func (s Source) MatchesFile(fileName string) bool {
	base := strings.ToLower(filepath.Base(fileName))
	ok, err := doublestar.Match(strings.ToLower(s.FilePattern), base)
	return err == nil && ok
}

// Field returns the definition for a canonical field name.
func (s Source) Field(name string) (FieldDefinition, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// AliasFor maps a canonical field name back to its source column alias.
func (s Source) AliasFor(name string) string {
	if field, ok := s.Field(name); ok {
		return field.SourceAlias()
	}
	return name
}

// RequiredAliases returns the source-column aliases of all required fields.
func (s Source) RequiredAliases() []string {
	aliases := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		if field.Required {
			aliases = append(aliases, field.SourceAlias())
		}
	}
	return aliases
}

// GrainSet returns the grain fields as a set for membership checks.
func (s Source) GrainSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Grain))
	for _, field := range s.Grain {
		set[field] = struct{}{}
	}
	return set
}

// CSVDelimiter returns the configured delimiter, defaulting to comma.
func (s Source) CSVDelimiter() rune {
	if s.Delimiter == 0 {
		return ','
	}
	return s.Delimiter
}

// Record is the validated, typed form of one logical row keyed by canonical
// field names.
type Record map[string]any
