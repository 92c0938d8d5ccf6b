package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// ErrTooLarge is returned when a remote document exceeds the byte limit.
var ErrTooLarge = errors.New("remote document exceeds size limit")

// urlPlaceholder is substituted with the query-escaped document URL in
// relay and viewer templates.
const urlPlaceholder = "{url}"

// ExpandTemplate substitutes the escaped target URL into tmpl. Templates
// without a placeholder get the escaped URL appended.
func ExpandTemplate(tmpl, target string) string {
	escaped := url.QueryEscape(target)
	if strings.Contains(tmpl, urlPlaceholder) {
		return strings.ReplaceAll(tmpl, urlPlaceholder, escaped)
	}
	return tmpl + escaped
}

// Fetcher downloads remote documents with bounded retries.
type Fetcher struct {
	client        *http.Client
	relay         string
	maxRetries    uint64
	retryInterval time.Duration
	maxBytes      int64
	logger        hclog.Logger
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// RelayURL optionally routes requests through an intermediary.
	RelayURL      string
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
	MaxBytes      int64
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, logger hclog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Fetcher{
		client:        &http.Client{Timeout: cfg.Timeout},
		relay:         cfg.RelayURL,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		maxBytes:      cfg.MaxBytes,
		logger:        logger,
	}
}

// Fetch downloads target and returns its bytes and content type. Network
// errors and 5xx/429 responses are retried; other failures are permanent.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	requestURL := target
	if f.relay != "" {
		requestURL = ExpandTemplate(f.relay, target)
	}

	var (
		body        []byte
		contentType string
		attempt     int
	)

	op := func() error {
		attempt++
		b, ct, err := f.get(ctx, requestURL)
		if err != nil {
			f.logger.Debug("remote fetch failed", "url", target, "attempt", attempt, "error", err)
			return err
		}
		body, contentType = b, ct
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.retryInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, f.maxRetries), ctx))
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", target, err)
	}
	return body, contentType, nil
}

func (f *Fetcher) get(ctx context.Context, requestURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/pdf, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", backoff.Permanent(ctx.Err())
		}
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", err
		}
		return nil, "", backoff.Permanent(err)
	}

	var r io.Reader = resp.Body
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", backoff.Permanent(ErrTooLarge)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
