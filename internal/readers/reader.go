// Package readers streams records out of source files. Each reader yields
// rows exactly once, in file order, and must be closed on every exit path.
package readers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

// Row is one record from a source file. Number is the 1-based index of the
// row after skipped rows and the header. Err marks a structural problem with
// this row alone (surplus columns, non-object JSON item); such rows carry no
// usable Values beyond what could be salvaged.
type Row struct {
	Number int
	Values map[string]any
	Err    error
}

// RowFunc consumes one row; returning an error stops the stream.
type RowFunc func(Row) error

// Reader streams rows from a single file. Open reads far enough to validate
// the header against the source's required aliases; Read then yields the
// data rows. Readers are single-pass and not restartable.
type Reader interface {
	Open(ctx context.Context) error
	Read(ctx context.Context, fn RowFunc) error
	Close() error
}

var extensionTypes = map[string]domain.SourceType{
	".csv":     domain.SourceTypeCSV,
	".csv.gz":  domain.SourceTypeCSV,
	".json":    domain.SourceTypeJSON,
	".json.gz": domain.SourceTypeJSON,
	".xlsx":    domain.SourceTypeExcel,
	".xls":     domain.SourceTypeExcel,
}

// Extension returns the recognized (possibly double) extension of a file
// name, lowercased, or "" when unsupported.
func Extension(fileName string) string {
	lower := strings.ToLower(filepath.Base(fileName))
	for _, ext := range []string{".csv.gz", ".json.gz", ".csv", ".json", ".xlsx", ".xls"} {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

// Supported reports whether the file has a recognized extension.
func Supported(fileName string) bool {
	return Extension(fileName) != ""
}

// SupportedExtensions lists the recognized extensions for discovery.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// New selects a reader for the file and verifies it matches the source's
// configured variant.
func New(path string, src domain.Source) (Reader, error) {
	ext := Extension(path)
	if ext == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if expected := extensionTypes[ext]; expected != src.Type {
		return nil, fmt.Errorf("%w: extension %s expects a %s source, source %s is %s",
			domain.ErrReaderMismatch, ext, expected, src.Name, src.Type)
	}
	gzipped := strings.HasSuffix(ext, ".gz")
	switch src.Type {
	case domain.SourceTypeCSV:
		return newCSVReader(path, src, gzipped), nil
	case domain.SourceTypeExcel:
		return newExcelReader(path, src), nil
	default:
		return newJSONReader(path, src, gzipped), nil
	}
}

// validateHeader checks that every required source alias is present in the
// observed header set. Aliases match case-insensitively.
func validateHeader(src domain.Source, observed map[string]struct{}, fileName string) error {
	if len(observed) == 0 {
		return fmt.Errorf("%w: no header found in %s", domain.ErrMissingHeader, fileName)
	}
	lowered := make(map[string]struct{}, len(observed))
	for name := range observed {
		lowered[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var missing []string
	for _, alias := range src.RequiredAliases() {
		if _, ok := lowered[strings.ToLower(alias)]; !ok {
			missing = append(missing, alias)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		required := src.RequiredAliases()
		sort.Strings(required)
		return fmt.Errorf("%w in %s: required: %s; missing: %s",
			domain.ErrMissingColumns, fileName,
			strings.Join(required, ", "), strings.Join(missing, ", "))
	}
	return nil
}

func allBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
