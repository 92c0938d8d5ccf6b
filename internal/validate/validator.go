// Package validate decides whether a candidate file or URL may join a
// document set. It performs no I/O.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pdf-extractor/backend/internal/models"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonWrongMediaType   Reason = "wrong-media-type"
	ReasonExceedsSizeLimit Reason = "exceeds-size-limit"
	ReasonDuplicateName    Reason = "duplicate-name"
	ReasonMalformedURL     Reason = "not-a-well-formed-url"
	ReasonDuplicateURL     Reason = "duplicate-url"

	// ReasonExceedsMaxCount is a capacity rejection applied by the document
	// set, never by the validator itself.
	ReasonExceedsMaxCount Reason = "exceeds-max-count"
	ReasonStorageError    Reason = "storage-error"
)

const (
	DefaultMediaType = "application/pdf"

	// NonPDFLinkWarning is attached to accepted links without a .pdf path.
	NonPDFLinkWarning = "URL may not point to a PDF file"
)

// Limits are the fixed acceptance rules of a document set.
type Limits struct {
	MediaType   string
	MaxFileSize int64
}

// FileCandidate is the metadata of a local file offered for upload.
type FileCandidate struct {
	Name      string
	Size      int64
	MediaType string
}

// Verdict is the result of validating one candidate.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

// Validator applies Limits to candidates.
type Validator struct {
	limits Limits
}

// New returns a Validator. An empty media type defaults to application/pdf.
func New(limits Limits) *Validator {
	if limits.MediaType == "" {
		limits.MediaType = DefaultMediaType
	}
	return &Validator{limits: limits}
}

// Limits returns the validator's limits.
func (v *Validator) Limits() Limits {
	return v.limits
}

// CheckFile validates a local file. Checks run in a fixed order: media
// type, then size, then name uniqueness among existing local files.
func (v *Validator) CheckFile(c FileCandidate, existing []models.Document) Verdict {
	if c.MediaType != v.limits.MediaType {
		return reject(ReasonWrongMediaType)
	}
	if v.limits.MaxFileSize > 0 && c.Size > v.limits.MaxFileSize {
		return reject(ReasonExceedsSizeLimit)
	}
	for _, d := range existing {
		if d.Kind == models.KindFile && d.Name == c.Name {
			return reject(ReasonDuplicateName)
		}
	}
	return accept()
}

// CheckURL validates a remote link. The returned warning is non-blocking
// and only set for accepted links whose path lacks a .pdf extension.
func (v *Validator) CheckURL(raw string, existing []models.Document) (Verdict, string) {
	u, ok := ParseURL(raw)
	if !ok {
		return reject(ReasonMalformedURL), ""
	}
	normalized := u.String()
	for _, d := range existing {
		if d.Kind == models.KindLink && d.URL == normalized {
			return reject(ReasonDuplicateURL), ""
		}
	}

	var warning string
	if !strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		warning = NonPDFLinkWarning
	}
	return accept(), warning
}

// CanonicalURL returns the form a link is stored and compared in.
func CanonicalURL(raw string) (string, bool) {
	u, ok := ParseURL(raw)
	if !ok {
		return "", false
	}
	return u.String(), true
}

// ParseURL parses raw as an absolute http(s) URL with a host.
func ParseURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	return u, true
}

// LinkName derives a display name from the last segment of a URL, falling
// back to models.DefaultLinkName.
func LinkName(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	segments := strings.Split(raw, "/")
	name := segments[len(segments)-1]
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" {
		return models.DefaultLinkName
	}
	return name
}

// Message renders a human-readable explanation for a rejection.
func (r Reason) Message(name string, limits Limits) string {
	switch r {
	case ReasonWrongMediaType:
		return fmt.Sprintf("%s is not a PDF file.", name)
	case ReasonExceedsSizeLimit:
		return fmt.Sprintf("%s exceeds the %s limit.", name, FormatSize(limits.MaxFileSize))
	case ReasonDuplicateName:
		return fmt.Sprintf("%s is already added.", name)
	case ReasonMalformedURL:
		return "Please enter a valid URL."
	case ReasonDuplicateURL:
		return "This URL has already been added."
	case ReasonExceedsMaxCount:
		return fmt.Sprintf("%s was not added: the maximum number of files has been reached.", name)
	case ReasonStorageError:
		return fmt.Sprintf("%s could not be stored.", name)
	}
	return string(r)
}

// FormatSize renders a byte count in whole megabytes when it is one, else
// in kilobytes or bytes.
func FormatSize(n int64) string {
	const mb = 1024 * 1024
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= 1024:
		return fmt.Sprintf("%dKB", n/1024)
	}
	return fmt.Sprintf("%dB", n)
}
