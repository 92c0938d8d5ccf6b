package extract

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/pdfdoc"
	"github.com/pdf-extractor/backend/internal/storage"
)

// BlobOpener opens stored document content.
type BlobOpener interface {
	Open(id string) (storage.File, error)
}

// MockConfig configures the stand-in extractor.
type MockConfig struct {
	Delay       time.Duration
	Concurrency int
	Seed        int64
	// SampleRunes bounds the text excerpt taken from local files. Zero
	// disables sampling.
	SampleRunes int
}

// Mock produces invoice-shaped records after a fixed delay. It stands in
// for a real extraction backend.
type Mock struct {
	cfg    MockConfig
	blobs  BlobOpener
	logger hclog.Logger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewMock creates a Mock. blobs may be nil, which disables text sampling.
func NewMock(cfg MockConfig, blobs BlobOpener, logger hclog.Logger) *Mock {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Mock{
		cfg:    cfg,
		blobs:  blobs,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		now:    time.Now,
	}
}

// Extract waits for the configured delay and then builds one varied
// record per document. The combined record is the unvaried template.
func (m *Mock) Extract(ctx context.Context, req Request) (*Output, error) {
	if m.cfg.Delay > 0 {
		timer := time.NewTimer(m.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := &Output{
		Combined:  invoiceTemplate(),
		Documents: make(map[string]models.Record, len(req.Documents)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, doc := range req.Documents {
		doc := doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := m.vary(invoiceTemplate())
			m.sample(doc, rec)

			mu.Lock()
			out.Documents[doc.ID] = rec
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.logger.Debug("mock extraction complete", "documents", len(req.Documents), "query", req.Query)
	return out, nil
}

func (m *Mock) vary(rec models.Record) models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec["invoiceNumber"] = fmt.Sprintf("INV-%d", m.rng.Intn(10000))
	daysAgo := time.Duration(m.rng.Int63n(int64(115 * 24 * time.Hour)))
	rec["date"] = m.now().Add(-daysAgo).UTC().Format("2006-01-02")
	rec["totalAmount"] = fmt.Sprintf("$%.2f", m.rng.Float64()*2000)
	return rec
}

func (m *Mock) sample(doc models.Document, rec models.Record) {
	if m.blobs == nil || m.cfg.SampleRunes <= 0 || !doc.IsLocal() {
		return
	}

	f, err := m.blobs.Open(doc.BlobID)
	if err != nil {
		m.logger.Debug("skipping text sample", "document", doc.ID, "error", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}

	s, err := pdfdoc.TextSample(f, info.Size(), m.cfg.SampleRunes)
	if s.Pages > 0 {
		rec["pageCount"] = s.Pages
	}
	if err == nil {
		rec["excerpt"] = s.Text
	}
}

func invoiceTemplate() models.Record {
	return models.Record{
		"invoiceNumber": "INV-2023-001",
		"date":          "2023-04-15",
		"dueDate":       "2023-05-15",
		"totalAmount":   "$1,250.00",
		"vendor": map[string]any{
			"name":    "Acme Corporation",
			"address": "123 Business Ave, Suite 100, San Francisco, CA 94107",
			"phone":   "(415) 555-1234",
			"email":   "billing@acmecorp.com",
		},
		"lineItems": []any{
			map[string]any{
				"description": "Professional Services",
				"quantity":    5,
				"unitPrice":   "$200.00",
				"amount":      "$1,000.00",
			},
			map[string]any{
				"description": "Software License",
				"quantity":    1,
				"unitPrice":   "$250.00",
				"amount":      "$250.00",
			},
		},
	}
}
