// Package handoff carries an authoring session's query and document
// descriptors to the results view under an explicit token.
package handoff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pdf-extractor/backend/internal/models"
)

// Entry keys of a stored snapshot.
const (
	KeyQuery     = "pdf_extraction_query"
	KeyDocuments = "pdf_extraction_files"
)

var (
	// ErrMissing means no snapshot exists for the token.
	ErrMissing = errors.New("hand-off snapshot missing")
	// ErrMalformed means the stored snapshot could not be decoded.
	ErrMalformed = errors.New("hand-off snapshot malformed")
)

// Descriptor is the serializable form of a document. Local file contents
// are not part of it.
type Descriptor struct {
	ID   string              `json:"id"`
	Name string              `json:"name"`
	Size int64               `json:"size"`
	Kind models.DocumentKind `json:"kind"`
	URL  string              `json:"url,omitempty"`
}

// Snapshot is the immutable hand-off from authoring to results.
type Snapshot struct {
	Query     string       `json:"query"`
	Documents []Descriptor `json:"documents"`
}

// Describe converts documents to descriptors, preserving order.
func Describe(docs []models.Document) []Descriptor {
	out := make([]Descriptor, len(docs))
	for i, d := range docs {
		out[i] = Descriptor{ID: d.ID, Name: d.Name, Size: d.Size, Kind: d.Kind, URL: d.URL}
	}
	return out
}

// NewSnapshot builds a snapshot from a query and the current document set.
func NewSnapshot(query string, docs []models.Document) Snapshot {
	return Snapshot{Query: query, Documents: Describe(docs)}
}

const descriptorsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name", "size", "kind"],
    "properties": {
      "id":   {"type": "string", "minLength": 1},
      "name": {"type": "string"},
      "size": {"type": "integer", "minimum": 0},
      "kind": {"enum": ["file", "link"]},
      "url":  {"type": "string"}
    },
    "if":   {"properties": {"kind": {"const": "link"}}},
    "then": {"required": ["url"], "properties": {"url": {"minLength": 1}}}
  }
}`

var schema = jsonschema.MustCompileString("descriptors.json", descriptorsSchema)

// Encode renders the snapshot as string entries.
func Encode(s Snapshot) (map[string]string, error) {
	docs := s.Documents
	if docs == nil {
		docs = []Descriptor{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptors: %w", err)
	}
	return map[string]string{
		KeyQuery:     s.Query,
		KeyDocuments: string(data),
	}, nil
}

// Decode parses entries written by Encode. Absent keys yield ErrMissing;
// anything unparseable or off-schema yields ErrMalformed.
func Decode(entries map[string]string) (*Snapshot, error) {
	query, okQuery := entries[KeyQuery]
	raw, okDocs := entries[KeyDocuments]
	if !okQuery || !okDocs {
		return nil, ErrMissing
	}

	var v any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var docs []Descriptor
	if err := json.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &Snapshot{Query: query, Documents: docs}, nil
}
