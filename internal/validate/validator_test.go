package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdf-extractor/backend/internal/models"
)

const mb = 1024 * 1024

func newTestValidator() *Validator {
	return New(Limits{MediaType: "application/pdf", MaxFileSize: 10 * mb})
}

func TestValidator_CheckFile(t *testing.T) {
	existing := []models.Document{
		{ID: "1", Name: "invoice.pdf", Kind: models.KindFile},
		{ID: "2", Name: "remote.pdf", Kind: models.KindLink, URL: "https://example.com/remote.pdf"},
	}

	tests := []struct {
		name      string
		candidate FileCandidate
		want      Verdict
	}{
		{
			name:      "valid pdf",
			candidate: FileCandidate{Name: "report.pdf", Size: 1024, MediaType: "application/pdf"},
			want:      Verdict{Accepted: true},
		},
		{
			name:      "exactly at size limit",
			candidate: FileCandidate{Name: "edge.pdf", Size: 10 * mb, MediaType: "application/pdf"},
			want:      Verdict{Accepted: true},
		},
		{
			name:      "one byte over size limit",
			candidate: FileCandidate{Name: "big.pdf", Size: 10*mb + 1, MediaType: "application/pdf"},
			want:      Verdict{Reason: ReasonExceedsSizeLimit},
		},
		{
			name:      "wrong media type",
			candidate: FileCandidate{Name: "notes.txt", Size: 10, MediaType: "text/plain"},
			want:      Verdict{Reason: ReasonWrongMediaType},
		},
		{
			name:      "media type is an exact match",
			candidate: FileCandidate{Name: "x.pdf", Size: 10, MediaType: "application/pdf; charset=binary"},
			want:      Verdict{Reason: ReasonWrongMediaType},
		},
		{
			name:      "media type checked before size",
			candidate: FileCandidate{Name: "huge.zip", Size: 100 * mb, MediaType: "application/zip"},
			want:      Verdict{Reason: ReasonWrongMediaType},
		},
		{
			name:      "duplicate local name",
			candidate: FileCandidate{Name: "invoice.pdf", Size: 10, MediaType: "application/pdf"},
			want:      Verdict{Reason: ReasonDuplicateName},
		},
		{
			name:      "link names do not clash with files",
			candidate: FileCandidate{Name: "remote.pdf", Size: 10, MediaType: "application/pdf"},
			want:      Verdict{Accepted: true},
		},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.CheckFile(tt.candidate, existing))
		})
	}
}

func TestValidator_CheckURL(t *testing.T) {
	existing := []models.Document{
		{ID: "1", Name: "a.pdf", Kind: models.KindLink, URL: "https://example.com/a.pdf"},
		{ID: "2", Name: "my report.pdf", Kind: models.KindLink, URL: "https://example.com/my%20report.pdf"},
	}

	tests := []struct {
		name        string
		raw         string
		wantReason  Reason
		wantWarning string
	}{
		{name: "pdf url", raw: "https://example.com/report.pdf"},
		{name: "upper case extension", raw: "https://example.com/REPORT.PDF"},
		{name: "query string ignored", raw: "https://example.com/r.pdf?sig=abc"},
		{name: "no extension warns", raw: "https://example.com/report", wantWarning: NonPDFLinkWarning},
		{name: "empty", raw: "   ", wantReason: ReasonMalformedURL},
		{name: "not a url", raw: "report.pdf", wantReason: ReasonMalformedURL},
		{name: "unsupported scheme", raw: "ftp://example.com/a.pdf", wantReason: ReasonMalformedURL},
		{name: "duplicate url", raw: "https://example.com/a.pdf", wantReason: ReasonDuplicateURL},
		{name: "duplicate url with whitespace", raw: " https://example.com/a.pdf ", wantReason: ReasonDuplicateURL},
		{name: "duplicate url with upper case scheme", raw: "HTTPS://example.com/a.pdf", wantReason: ReasonDuplicateURL},
		{name: "duplicate url with unescaped space", raw: "https://example.com/my report.pdf", wantReason: ReasonDuplicateURL},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, warning := v.CheckURL(tt.raw, existing)
			assert.Equal(t, tt.wantReason == "", verdict.Accepted)
			assert.Equal(t, tt.wantReason, verdict.Reason)
			assert.Equal(t, tt.wantWarning, warning)
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	got, ok := CanonicalURL(" HTTPS://example.com/my report.pdf ")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/my%20report.pdf", got)

	_, ok = CanonicalURL("report.pdf")
	assert.False(t, ok)
}

func TestLinkName(t *testing.T) {
	assert.Equal(t, "report.pdf", LinkName("https://example.com/files/report.pdf"))
	assert.Equal(t, "report", LinkName("https://example.com/report"))
	assert.Equal(t, "my file.pdf", LinkName("https://example.com/my%20file.pdf"))
	assert.Equal(t, models.DefaultLinkName, LinkName("https://example.com/docs/"))
	assert.Equal(t, models.DefaultLinkName, LinkName("https://example.com"))
}

func TestReason_Message(t *testing.T) {
	limits := Limits{MaxFileSize: 10 * mb}
	assert.Equal(t, "big.pdf exceeds the 10MB limit.", ReasonExceedsSizeLimit.Message("big.pdf", limits))
	assert.Equal(t, "notes.txt is not a PDF file.", ReasonWrongMediaType.Message("notes.txt", limits))
	assert.Equal(t, "invoice.pdf is already added.", ReasonDuplicateName.Message("invoice.pdf", limits))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "20MB", FormatSize(20*mb))
	assert.Equal(t, "1.5MB", FormatSize(mb+mb/2))
	assert.Equal(t, "2KB", FormatSize(2048))
	assert.Equal(t, "12B", FormatSize(12))
}
