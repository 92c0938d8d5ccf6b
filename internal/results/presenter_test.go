package results

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: "N/A"},
		{name: "string", value: "INV-001", want: "INV-001"},
		{name: "float", value: 1234.56, want: "1234.56"},
		{name: "whole float", value: float64(42), want: "42"},
		{name: "int", value: 7, want: "7"},
		{name: "bool", value: true, want: "true"},
		{name: "json number", value: json.Number("12.50"), want: "12.50"},
		{name: "array", value: []any{"a", 1.5, nil}, want: "a, 1.5, N/A"},
		{name: "typed slice", value: []string{"x", "y"}, want: "x, y"},
		{name: "empty array", value: []any{}, want: ""},
		{name: "object", value: map[string]any{"name": "Acme"}, want: `{"name":"Acme"}`},
		{name: "nested array of objects", value: []any{map[string]any{"q": 1.0}}, want: `{"q":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestTable(t *testing.T) {
	assert.Nil(t, Table(nil))
	assert.Nil(t, Table(models.Record{}))

	rows := Table(models.Record{
		"vendor":      map[string]any{"name": "Acme"},
		"totalAmount": 1234.56,
		"dueDate":     nil,
	})
	assert.Equal(t, []Row{
		{Field: "dueDate", Value: "N/A"},
		{Field: "totalAmount", Value: "1234.56"},
		{Field: "vendor", Value: `{"name":"Acme"}`},
	}, rows)
}

func TestPrettyJSON(t *testing.T) {
	out, err := PrettyJSON(models.Record{"a": 1.0, "b": []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    \"x\"\n  ]\n}", string(out))

	out, err = PrettyJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, models.Record{"vendor": map[string]any{"name": "Acme, Inc."}, "total": 10.0}))
	assert.Equal(t, "Field,Value\ntotal,10\nvendor,\"{\"\"name\"\":\"\"Acme, Inc.\"\"}\"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, models.Record{}))
	assert.Empty(t, buf.String())
}

func sampleSet() *models.ResultSet {
	snap := handoff.Snapshot{
		Query: "extract total",
		Documents: []handoff.Descriptor{
			{ID: "1", Name: "invoice.pdf", Size: 10, Kind: models.KindFile},
			{ID: "2", Name: "invoice.pdf", Kind: models.KindLink, URL: "https://example.com/invoice.pdf"},
			{ID: "3", Name: "missing.pdf", Kind: models.KindFile},
		},
	}
	return Aggregate("tok", snap,
		models.Record{"totalAmount": 100.0},
		map[string]models.Record{
			"1": {"totalAmount": 40.0},
			"2": {"totalAmount": 60.0},
		})
}

func TestAggregate(t *testing.T) {
	set := sampleSet()

	assert.Equal(t, "tok", set.Token)
	assert.Equal(t, "extract total", set.Query)
	require.Len(t, set.Documents, 3)
	assert.Equal(t, "1", set.Documents[0].DocumentID)
	assert.Equal(t, models.Record{"totalAmount": 40.0}, set.Documents[0].Data)
	assert.Equal(t, "https://example.com/invoice.pdf", set.Documents[1].URL)
	assert.Equal(t, models.Record{}, set.Documents[2].Data)

	rec, ok := set.Record("")
	require.True(t, ok)
	assert.Equal(t, 100.0, rec["totalAmount"])
	rec, ok = set.Record("2")
	require.True(t, ok)
	assert.Equal(t, 60.0, rec["totalAmount"])
	_, ok = set.Record("nope")
	assert.False(t, ok)
}

func TestWorkbookXLSX(t *testing.T) {
	data, err := WorkbookXLSX(sampleSet())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Combined", "invoice", "invoice (2)", "missing"}, f.GetSheetList())

	v, err := f.GetCellValue("Combined", "B1")
	require.NoError(t, err)
	assert.Equal(t, "extract total", v)

	v, _ = f.GetCellValue("Combined", "A4")
	assert.Equal(t, "totalAmount", v)
	v, _ = f.GetCellValue("invoice (2)", "B4")
	assert.Equal(t, "60", v)
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a_b", sheetName("a/b.pdf", used))
	assert.Equal(t, "a_b (2)", sheetName("a/b.pdf", used))
	assert.Equal(t, "Document", sheetName(".pdf", used))

	long := sheetName("a-very-long-document-name-that-overflows.pdf", used)
	assert.LessOrEqual(t, len([]rune(long)), 31)
}
