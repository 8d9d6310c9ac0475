package readers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

type excelReader struct {
	path string
	src  domain.Source

	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

func newExcelReader(path string, src domain.Source) *excelReader {
	return &excelReader{path: path, src: src}
}

func (r *excelReader) Open(ctx context.Context) error {
	file, err := excelize.OpenFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", r.path, err)
	}
	r.file = file

	sheet := r.src.SheetName
	if sheet == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			r.Close()
			return fmt.Errorf("%w: workbook %s has no sheets", domain.ErrMissingHeader, filepath.Base(r.path))
		}
		sheet = sheets[0]
	}

	rows, err := file.Rows(sheet)
	if err != nil {
		r.Close()
		return fmt.Errorf("failed to read sheet %s of %s: %w", sheet, r.path, err)
	}
	r.rows = rows

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

func (r *excelReader) readHeader() error {
	for skipped := 0; skipped < r.src.SkipRows; skipped++ {
		if !r.rows.Next() {
			return fmt.Errorf("%w: %s", domain.ErrMissingHeader, filepath.Base(r.path))
		}
	}
	for r.rows.Next() {
		cells, err := r.rows.Columns()
		if err != nil {
			return fmt.Errorf("failed to read header of %s: %w", r.path, err)
		}
		if allBlank(cells) {
			continue
		}
		headers := make([]string, len(cells))
		for i, cell := range cells {
			headers[i] = strings.TrimSpace(cell)
		}
		r.headers = headers
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrMissingHeader, filepath.Base(r.path))
}

func (r *excelReader) Read(ctx context.Context, fn RowFunc) error {
	number := 0
	for r.rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := r.rows.Columns()
		if err != nil {
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
				row.Values[header] = ""
			}
		}
		if len(cells) > len(r.headers) {
			row.Err = fmt.Errorf("row has %d cells but header has %d", len(cells), len(r.headers))
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return r.rows.Error()
}

func (r *excelReader) Close() error {
	var firstErr error
	if r.rows != nil {
		if err := r.rows.Close(); err != nil {
			firstErr = err
		}
		r.rows = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}
