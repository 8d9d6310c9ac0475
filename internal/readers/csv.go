package readers

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

type csvReader struct {
	path    string
	src     domain.Source
	gzipped bool

	closers []io.Closer
	cr      *csv.Reader
	headers []string
}

func newCSVReader(path string, src domain.Source, gzipped bool) *csvReader {
	return &csvReader{path: path, src: src, gzipped: gzipped}
}

func (r *csvReader) Open(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	r.closers = append(r.closers, file)

	var stream io.Reader = file
	if r.gzipped {
		gz, err := gzip.NewReader(stream)
		if err != nil {
			r.Close()
			return fmt.Errorf("failed to open gzip stream for %s: %w", r.path, err)
		}
		r.closers = append(r.closers, gz)
		stream = gz
	}

	stream, err = decodeEncoding(stream, r.src.Encoding)
	if err != nil {
		r.Close()
		return err
	}

	buffered := bufio.NewReader(stream)
	if prefix, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = buffered.Discard(len(byteOrderMark))
	}

	r.cr = csv.NewReader(buffered)
	r.cr.Comma = r.src.CSVDelimiter()
	r.cr.FieldsPerRecord = -1
	r.cr.LazyQuotes = true

	if err := r.readHeader(); err != nil {
		r.Close()
		return err
	}
	observed := make(map[string]struct{}, len(r.headers))
	for _, header := range r.headers {
		observed[header] = struct{}{}
	}
	if err := validateHeader(r.src, observed, filepath.Base(r.path)); err != nil {
		r.Close()
		return err
	}
	return nil
}

// readHeader skips the configured leading rows, then takes the next
// non-empty row as the header.
func (r *csvReader) readHeader() error {
	for skipped := 0; skipped < r.src.SkipRows; skipped++ {
		if _, err := r.cr.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %s", domain.ErrMissingHeader, filepath.Base(r.path))
			}
			return fmt.Errorf("failed to skip rows in %s: %w", r.path, err)
		}
	}
	for {
		row, err := r.cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %s", domain.ErrMissingHeader, filepath.Base(r.path))
			}
			return fmt.Errorf("failed to read header in %s: %w", r.path, err)
		}
		if allBlank(row) {
			continue
		}
		headers := make([]string, len(row))
		for i, cell := range row {
			headers[i] = strings.TrimSpace(cell)
		}
		r.headers = headers
		return nil
	}
}

func (r *csvReader) Read(ctx context.Context, fn RowFunc) error {
	number := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := r.cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", r.path, err)
		}
		if allBlank(cells) {
			continue
		}
		number++

		row := Row{Number: number, Values: make(map[string]any, len(r.headers))}
		for i, header := range r.headers {
			if i < len(cells) {
				row.Values[header] = cells[i]
			} else {
				// Short rows pad with empty strings, not missing fields.
				row.Values[header] = ""
			}
		}
		if len(cells) > len(r.headers) {
			row.Err = fmt.Errorf("row has %d fields but header has %d", len(cells), len(r.headers))
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func (r *csvReader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

// decodeEncoding wraps the stream with a charset decoder when the source
// declares a non-UTF-8 encoding.
func decodeEncoding(stream io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return stream, nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(stream, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(stream, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
