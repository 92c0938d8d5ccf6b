package models

import "time"

// DocumentKind distinguishes documents uploaded from disk from documents
// referenced by URL.
type DocumentKind string

const (
	KindFile DocumentKind = "file"
	KindLink DocumentKind = "link"
)

// DefaultLinkName is used when a URL has no usable last path segment.
const DefaultLinkName = "PDF Document"

// UnknownSize is reported for links, whose size is not known until fetched.
const UnknownSize int64 = 0

// Document is one entry of an authoring session's document set.
type Document struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Size        int64        `json:"size"`
	Kind        DocumentKind `json:"kind"`
	URL         string       `json:"url,omitempty"`
	BlobID      string       `json:"-"`
	ContentType string       `json:"contentType,omitempty"`
	PageCount   int          `json:"pageCount,omitempty"`
	Warning     string       `json:"warning,omitempty"`
	AddedAt     time.Time    `json:"addedAt"`
}

// IsLocal reports whether the document's bytes live in the blob store.
func (d Document) IsLocal() bool {
	return d.Kind == KindFile
}
