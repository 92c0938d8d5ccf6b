// Package extract turns a query and a document set into structured records.
package extract

import (
	"context"

	"github.com/pdf-extractor/backend/internal/models"
)

// Request is one extraction job.
type Request struct {
	Query     string
	Documents []models.Document
}

// Output is the raw result of an extraction: a combined record plus one
// record per document id.
type Output struct {
	Combined  models.Record
	Documents map[string]models.Record
}

// Extractor runs extraction jobs.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Output, error)
}
