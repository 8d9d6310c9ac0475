package readers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

func excelSource() domain.Source {
	return domain.Source{
		Name:        "widgets",
		FilePattern: "widgets_*.xlsx",
		Type:        domain.SourceTypeExcel,
		TableName:   "widgets",
		Grain:       []string{"id"},
		Fields: []domain.FieldDefinition{
			{Name: "id", Type: domain.FieldTypeInteger, Required: true},
			{Name: "name", Type: domain.FieldTypeString, Required: true},
		},
	}
}

func writeWorkbook(t *testing.T, name, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		require.NoError(t, f.DeleteSheet("Sheet1"))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestExcelReaderReadsRows(t *testing.T) {
	path := writeWorkbook(t, "widgets_a.xlsx", "Sheet1", [][]any{
		{"id", "name"},
		{1, "a"},
		{2, "b"},
	})
	r, err := New(path, excelSource())
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 2)
	require.Equal(t, 1, rows[0].Number)
	require.Equal(t, "1", rows[0].Values["id"])
	require.Equal(t, "b", rows[1].Values["name"])
}

func TestExcelReaderConfiguredSheet(t *testing.T) {
	src := excelSource()
	src.SheetName = "Data"
	path := writeWorkbook(t, "widgets_b.xlsx", "Data", [][]any{
		{"id", "name"},
		{7, "x"},
	})
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 1)
	require.Equal(t, "7", rows[0].Values["id"])
}

func TestExcelReaderSkipRows(t *testing.T) {
	src := excelSource()
	src.SkipRows = 1
	path := writeWorkbook(t, "widgets_c.xlsx", "Sheet1", [][]any{
		{"report generated 2024-06-01"},
		{"id", "name"},
		{1, "a"},
	})
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0].Values["name"])
}

func TestExcelReaderMissingColumns(t *testing.T) {
	path := writeWorkbook(t, "widgets_d.xlsx", "Sheet1", [][]any{
		{"id", "label"},
		{1, "a"},
	})
	r, err := New(path, excelSource())
	require.NoError(t, err)
	require.ErrorIs(t, r.Open(context.Background()), domain.ErrMissingColumns)
}

func TestExcelReaderEmptySheetIsMissingHeader(t *testing.T) {
	path := writeWorkbook(t, "widgets_e.xlsx", "Sheet1", nil)
	r, err := New(path, excelSource())
	require.NoError(t, err)
	require.ErrorIs(t, r.Open(context.Background()), domain.ErrMissingHeader)
}
