package readers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

func jsonSource() domain.Source {
	return domain.Source{
		Name:        "inventory",
		FilePattern: "inventory_*.json",
		Type:        domain.SourceTypeJSON,
		TableName:   "inventory",
		Grain:       []string{"sku"},
		Fields: []domain.FieldDefinition{
			{Name: "sku", Type: domain.FieldTypeString, Required: true},
			{Name: "qty", Type: domain.FieldTypeInteger, Required: true},
		},
	}
}

func TestJSONReaderTopLevelArray(t *testing.T) {
	path := writeFile(t, "inventory_a.json", `[{"sku":"A","qty":1},{"sku":"B","qty":2}]`)
	r, err := New(path, jsonSource())
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 2)
	require.Equal(t, 1, rows[0].Number)
	require.Equal(t, "A", rows[0].Values["sku"])
	require.Equal(t, json.Number("2"), rows[1].Values["qty"])
}

func TestJSONReaderArraySelector(t *testing.T) {
	src := jsonSource()
	src.ArrayPath = "data.items"
	path := writeFile(t, "inventory_b.json",
		`{"meta":{"count":2},"data":{"skip":[1,2],"items":[{"sku":"A","qty":1},{"sku":"B","qty":2}]}}`)
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 2)
	require.Equal(t, "B", rows[1].Values["sku"])
}

func TestJSONReaderFlattensNestedObjects(t *testing.T) {
	src := jsonSource()
	src.Fields = []domain.FieldDefinition{
		{Name: "entry_id", Type: domain.FieldTypeString, Required: true},
		{Name: "qty", Type: domain.FieldTypeInteger, Required: true},
	}
	src.Grain = []string{"entry_id"}
	path := writeFile(t, "inventory_c.json", `[{"Entry":{"ID":"x"},"Qty":5}]`)
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 1)
	require.Equal(t, "x", rows[0].Values["entry_id"])
	require.Equal(t, json.Number("5"), rows[0].Values["qty"])
}

func TestJSONReaderMissingColumnsFromFirstItem(t *testing.T) {
	path := writeFile(t, "inventory_d.json", `[{"sku":"A"}]`)
	r, err := New(path, jsonSource())
	require.NoError(t, err)
	require.ErrorIs(t, r.Open(context.Background()), domain.ErrMissingColumns)
}

func TestJSONReaderEmptyArray(t *testing.T) {
	path := writeFile(t, "inventory_e.json", `[]`)
	r, err := New(path, jsonSource())
	require.NoError(t, err)
	require.ErrorIs(t, r.Open(context.Background()), domain.ErrMissingHeader)
}

func TestJSONReaderNonObjectItemIsRowError(t *testing.T) {
	path := writeFile(t, "inventory_f.json", `[{"sku":"A","qty":1},42,{"sku":"B","qty":2}]`)
	r, err := New(path, jsonSource())
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 3)
	require.NoError(t, rows[0].Err)
	require.Error(t, rows[1].Err)
	require.NoError(t, rows[2].Err)
}

func TestJSONReaderSkipRows(t *testing.T) {
	src := jsonSource()
	src.SkipRows = 1
	path := writeFile(t, "inventory_g.json", `[{"sku":"A","qty":1},{"sku":"B","qty":2},{"sku":"C","qty":3}]`)
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 2)
	require.Equal(t, "B", rows[0].Values["sku"])
	require.Equal(t, 1, rows[0].Number)
}

func TestJSONReaderGzip(t *testing.T) {
	src := jsonSource()
	path := writeGzip(t, "inventory_h.json.gz", `[{"sku":"A","qty":1}]`)
	r, err := New(path, src)
	require.NoError(t, err)

	rows := collectRows(t, r)
	require.Len(t, rows, 1)
}
