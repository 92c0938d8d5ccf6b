package results

import (
	"time"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
)

// Aggregate assembles a ResultSet in hand-off document order. Documents the
// extractor returned nothing for get an empty record.
func Aggregate(token string, snap handoff.Snapshot, combined models.Record, perDocument map[string]models.Record) *models.ResultSet {
	if combined == nil {
		combined = models.Record{}
	}

	set := &models.ResultSet{
		Token:     token,
		Query:     snap.Query,
		Combined:  combined,
		Documents: make([]models.DocumentResult, len(snap.Documents)),
		CreatedAt: time.Now(),
	}
	for i, d := range snap.Documents {
		data := perDocument[d.ID]
		if data == nil {
			data = models.Record{}
		}
		set.Documents[i] = models.DocumentResult{
			DocumentID: d.ID,
			Name:       d.Name,
			Kind:       d.Kind,
			URL:        d.URL,
			Data:       data,
		}
	}
	return set
}
