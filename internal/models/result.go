package models

import "time"

// Record is an opaque, schema-less extraction result. Values are whatever
// JSON can carry: scalars, nil, arrays and nested objects.
type Record map[string]any

// DocumentResult is the record extracted from a single document.
type DocumentResult struct {
	DocumentID string       `json:"documentId" msgpack:"documentId"`
	Name       string       `json:"name" msgpack:"name"`
	Kind       DocumentKind `json:"kind" msgpack:"kind"`
	URL        string       `json:"url,omitempty" msgpack:"url,omitempty"`
	Data       Record       `json:"data" msgpack:"data"`
}

// ResultSet is everything produced by one hand-off: the query, a combined
// record across all documents and one record per document.
type ResultSet struct {
	Token     string           `json:"token" msgpack:"token"`
	Query     string           `json:"query" msgpack:"query"`
	Combined  Record           `json:"combined" msgpack:"combined"`
	Documents []DocumentResult `json:"documents" msgpack:"documents"`
	CreatedAt time.Time        `json:"createdAt" msgpack:"createdAt"`
}

// CombinedSelector selects the combined record in ResultSet.Record.
const CombinedSelector = "combined"

// Record returns the record selected by sel: CombinedSelector (or empty)
// for the combined record, otherwise a document id.
func (rs *ResultSet) Record(sel string) (Record, bool) {
	if sel == "" || sel == CombinedSelector {
		return rs.Combined, true
	}
	for _, d := range rs.Documents {
		if d.DocumentID == sel {
			return d.Data, true
		}
	}
	return nil, false
}
