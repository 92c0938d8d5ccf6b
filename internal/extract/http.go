package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
)

// HTTPConfig configures the HTTP extractor.
type HTTPConfig struct {
	Endpoint      string
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// HTTP delegates extraction to a remote service.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	logger hclog.Logger
}

type httpRequest struct {
	Query     string               `json:"query"`
	Documents []handoff.Descriptor `json:"documents"`
}

type httpResponse struct {
	Combined  models.Record `json:"combined"`
	Documents []struct {
		ID   string        `json:"id"`
		Data models.Record `json:"data"`
	} `json:"documents"`
}

// NewHTTP creates an HTTP extractor.
func NewHTTP(cfg HTTPConfig, logger hclog.Logger) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Extract posts the job to the configured endpoint. Network errors and
// 5xx/429 responses are retried with exponential backoff.
func (h *HTTP) Extract(ctx context.Context, req Request) (*Output, error) {
	body, err := json.Marshal(httpRequest{
		Query:     req.Query,
		Documents: handoff.Describe(req.Documents),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var resp httpResponse
	op := func() error {
		return h.post(ctx, body, &resp)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.cfg.RetryInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		h.logger.Warn("extraction request failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, h.cfg.MaxRetries), ctx), notify); err != nil {
		return nil, fmt.Errorf("extraction service: %w", err)
	}

	out := &Output{
		Combined:  resp.Combined,
		Documents: make(map[string]models.Record, len(resp.Documents)),
	}
	for _, d := range resp.Documents {
		out.Documents[d.ID] = d.Data
	}
	return out, nil
}

func (h *HTTP) post(ctx context.Context, body []byte, into *httpResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
