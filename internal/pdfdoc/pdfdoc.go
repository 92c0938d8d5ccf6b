// Package pdfdoc inspects PDF bytes: structural page counting through
// pdfcpu and best-effort text sampling through ledongthuc/pdf.
package pdfdoc

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoText is returned when a document has no extractable text.
var ErrNoText = errors.New("no extractable text")

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// Inspector reads PDF structure.
type Inspector struct {
	conf *model.Configuration
}

// NewInspector returns an Inspector using relaxed validation, which accepts
// the minor structural defects common in real-world PDFs.
func NewInspector() *Inspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Inspector{conf: conf}
}

// PageCount returns the number of pages in rs.
func (i *Inspector) PageCount(rs io.ReadSeeker) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panicked: %v", r)
		}
	}()

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding: %w", err)
	}
	n, err = api.PageCount(rs, i.conf)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

// Sample is a short plain-text excerpt taken from the start of a document.
type Sample struct {
	Pages int
	Text  string
}

// TextSample extracts up to maxRunes of plain text from the first pages of
// the document in ra. Unreadable pages are skipped.
func TextSample(ra io.ReaderAt, size int64, maxRunes int) (s Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return Sample{}, fmt.Errorf("open pdf: %w", err)
	}

	s.Pages = r.NumPage()

	var text strings.Builder
	for i := 1; i <= s.Pages && text.Len() < maxRunes*4; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text.Len() > 0 {
			text.WriteString(" ")
		}
		text.WriteString(pageText)
	}

	s.Text = truncateRunes(collapseSpace(text.String()), maxRunes)
	if s.Text == "" {
		return s, ErrNoText
	}
	return s, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
