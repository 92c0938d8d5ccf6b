package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xuri/excelize/v2"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/results"
)

// seedResults stores a hand-off and its result set directly.
func seedResults(t *testing.T, ts *testServer, token string) {
	t.Helper()
	docs := []models.Document{
		{ID: "doc-1", Name: "invoice.pdf", Size: 2048, Kind: models.KindFile},
		{ID: "doc-2", Name: "report", Kind: models.KindLink, URL: "https://example.com/report"},
	}
	snap := handoff.NewSnapshot("extract total", docs)
	ctx := context.Background()

	require.NoError(t, handoff.Write(ctx, ts.handoffs, token, snap))
	set := results.Aggregate(token, snap,
		models.Record{"totalAmount": "$100.00", "tags": []any{"a", "b"}, "notes": nil},
		map[string]models.Record{"doc-1": {"invoiceNumber": "INV-1"}},
	)
	require.NoError(t, ts.results.Save(ctx, set))
}

func TestResults_HandoffMissing(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/results/unknown",
		"/api/results/unknown/table",
		"/api/results/unknown/export.csv",
	} {
		rec := ts.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		apiErr := decode[APIError](t, rec)
		assert.Equal(t, "HANDOFF_MISSING", apiErr.Code)
		assert.Equal(t, HandoffMissingNotice, apiErr.Message)
		assert.Equal(t, DashboardPath, apiErr.Redirect)
	}
}

func TestResults_MalformedHandoff(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.handoffs.Put(context.Background(), "tok", map[string]string{
		handoff.KeyQuery:     "q",
		handoff.KeyDocuments: `{"not":"an array"}`,
	}))

	rec := ts.do(t, http.MethodGet, "/api/results/tok", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "HANDOFF_MISSING", decode[APIError](t, rec).Code)
}

func TestResults_GetIsRepeatable(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/api/results/tok", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[resultsResponse](t, rec)
		assert.Equal(t, "extract total", body.Query)
		require.Len(t, body.Documents, 2)
		assert.Equal(t, "invoice.pdf", body.Documents[0].Name)
		require.Len(t, body.Results.Documents, 2)
		assert.Empty(t, body.Results.Documents[1].Data)
	}
}

func TestResults_Table(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantRows []results.Row
	}{
		{
			name:     "combined by default",
			wantCode: http.StatusOK,
			wantRows: []results.Row{
				{Field: "notes", Value: "N/A"},
				{Field: "tags", Value: "a, b"},
				{Field: "totalAmount", Value: "$100.00"},
			},
		},
		{
			name:     "single document",
			query:    "?document=doc-1",
			wantCode: http.StatusOK,
			wantRows: []results.Row{{Field: "invoiceNumber", Value: "INV-1"}},
		},
		{
			name:     "empty record renders no rows",
			query:    "?document=doc-2",
			wantCode: http.StatusOK,
			wantRows: []results.Row{},
		},
		{
			name:     "unknown document",
			query:    "?document=doc-9",
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/results/tok/table"+tt.query, nil)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			body := decode[tableResponse](t, rec)
			assert.Equal(t, tt.wantRows, body.Rows)
			assert.Equal(t, len(tt.wantRows) == 0, body.Empty)
		})
	}
}

func TestResults_JSONUsesSelectedRecord(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	rec := ts.do(t, http.MethodGet, "/api/results/tok/json?document=doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\n  \"invoiceNumber\": \"INV-1\"\n}", rec.Body.String())
}

func TestResults_ExportCSV(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	rec := ts.do(t, http.MethodGet, "/api/results/tok/export.csv?document=doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "extraction-doc-1.csv")
	assert.Equal(t, "Field,Value\ninvoiceNumber,INV-1\n", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/results/tok/export.csv?document=doc-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResults_ExportXLSX(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	rec := ts.do(t, http.MethodGet, "/api/results/tok/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeXLSX, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, 3)
	assert.Equal(t, "Combined", sheets[0])
	assert.True(t, strings.HasPrefix(sheets[1], "invoice"))
}

func TestResults_Msgpack(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts, "tok")

	rec := ts.do(t, http.MethodGet, "/api/results/tok/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeMsgpack, rec.Header().Get("Content-Type"))

	var set models.ResultSet
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &set))
	assert.Equal(t, "tok", set.Token)
	assert.Equal(t, "extract total", set.Query)
	require.Len(t, set.Documents, 2)
	assert.Equal(t, "doc-1", set.Documents[0].DocumentID)
}
