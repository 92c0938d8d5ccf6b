// Package query drives an authoring session from composing a question to
// handing the snapshot off to the results view.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/extract"
	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/results"
)

// State is the submission state.
type State string

const (
	StateComposing  State = "composing"
	StateSubmitting State = "submitting"
	StateHandedOff  State = "handed-off"
	StateRejected   State = "rejected"
)

var (
	ErrEmptyQuery   = errors.New("please enter a query")
	ErrNoDocuments  = errors.New("please upload at least one PDF file")
	ErrSubmitting   = errors.New("a submission is already in progress")
	ErrFlowClosed   = errors.New("session closed")
	ErrNotHandedOff = errors.New("nothing has been handed off")
)

// DocumentSource supplies the current document set.
type DocumentSource interface {
	Documents() []models.Document
}

// Status is a snapshot of the flow, also sent to subscribers on every
// transition.
type Status struct {
	State     State     `json:"state"`
	Query     string    `json:"query"`
	Token     string    `json:"token,omitempty"`
	Error     string    `json:"error,omitempty"`
	Documents int       `json:"documents"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Config configures a Flow.
type Config struct {
	Timeout time.Duration
}

// Flow is the submission state machine of one session.
type Flow struct {
	mu        sync.Mutex
	cfg       Config
	docs      DocumentSource
	extractor extract.Extractor
	handoffs  handoff.Store
	results   results.Store
	logger    hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state     State
	query     string
	token     string
	lastErr   string
	submitted int
	updatedAt time.Time

	subscribers map[chan Status]struct{}
}

// NewFlow creates a flow in the composing state.
func NewFlow(cfg Config, docs DocumentSource, extractor extract.Extractor, handoffs handoff.Store, store results.Store, logger hclog.Logger) *Flow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{
		cfg:         cfg,
		docs:        docs,
		extractor:   extractor,
		handoffs:    handoffs,
		results:     store,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateComposing,
		updatedAt:   time.Now(),
		subscribers: make(map[chan Status]struct{}),
	}
}

// SetQuery replaces the query text. Editing is not allowed while a
// submission is in flight.
func (f *Flow) SetQuery(text string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx.Err() != nil {
		return f.statusLocked(), ErrFlowClosed
	}
	if f.state == StateSubmitting {
		return f.statusLocked(), ErrSubmitting
	}
	f.query = text
	return f.statusLocked(), nil
}

// Rejection is returned when a submission fails its preconditions. The
// flow stays in the composing state.
type Rejection struct {
	Cause error
}

func (r *Rejection) Error() string { return r.Cause.Error() }
func (r *Rejection) Unwrap() error { return r.Cause }

// Submit starts extraction of the current document set with text as the
// query. Precondition failures are reported synchronously as a *Rejection
// without any side effects. On success the flow is submitting and the
// extraction continues in the background.
func (f *Flow) Submit(text string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx.Err() != nil {
		return f.statusLocked(), ErrFlowClosed
	}
	if f.state == StateSubmitting {
		return f.statusLocked(), ErrSubmitting
	}

	docs := f.docs.Documents()

	if len(docs) == 0 {
		return f.rejectLocked(ErrNoDocuments)
	}
	if strings.TrimSpace(text) == "" {
		return f.rejectLocked(ErrEmptyQuery)
	}

	f.query = text

	snap := handoff.NewSnapshot(text, docs)
	f.token = ""
	f.lastErr = ""
	f.submitted = len(docs)
	f.done = make(chan struct{})
	f.transitionLocked(StateSubmitting)

	go f.run(snap, docs, f.done)

	return f.statusLocked(), nil
}

func (f *Flow) rejectLocked(cause error) (Status, error) {
	f.logger.Debug("submission rejected", "reason", cause)
	st := f.statusLocked()
	st.State = StateRejected
	st.Error = cause.Error()
	return st, &Rejection{Cause: cause}
}

func (f *Flow) run(snap handoff.Snapshot, docs []models.Document, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(f.ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	token, err := f.execute(ctx, snap, docs)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.logger.Warn("extraction failed", "documents", len(docs), "error", err)
		f.lastErr = err.Error()
		f.transitionLocked(StateComposing)
		return
	}

	f.logger.Info("extraction handed off", "token", token, "documents", len(docs), "duration", time.Since(start))
	f.token = token
	f.transitionLocked(StateHandedOff)
}

func (f *Flow) execute(ctx context.Context, snap handoff.Snapshot, docs []models.Document) (string, error) {
	out, err := f.extractor.Extract(ctx, extract.Request{Query: snap.Query, Documents: docs})
	if err != nil {
		return "", err
	}

	token := uuid.New().String()
	set := results.Aggregate(token, snap, out.Combined, out.Documents)

	if err := f.results.Save(ctx, set); err != nil {
		return "", fmt.Errorf("saving results: %w", err)
	}
	if err := handoff.Write(ctx, f.handoffs, token, snap); err != nil {
		f.results.Delete(context.Background(), token)
		return "", fmt.Errorf("writing hand-off: %w", err)
	}
	return token, nil
}

// Reset returns a handed-off flow to composing so the session can be reused.
func (f *Flow) Reset() (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateSubmitting {
		return f.statusLocked(), ErrSubmitting
	}
	f.token = ""
	f.lastErr = ""
	f.transitionLocked(StateComposing)
	return f.statusLocked(), nil
}

// Status returns the current status.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

// Token returns the hand-off token once handed off.
func (f *Flow) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateHandedOff {
		return "", ErrNotHandedOff
	}
	return f.token, nil
}

// Wait blocks until any in-flight submission finishes.
func (f *Flow) Wait(ctx context.Context) (Status, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return f.Status(), ctx.Err()
		}
	}
	return f.Status(), nil
}

// Subscribe streams status transitions until ctx is done. Slow subscribers
// miss intermediate transitions rather than blocking the flow.
func (f *Flow) Subscribe(ctx context.Context) <-chan Status {
	ch := make(chan Status, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.ctx.Done():
		}
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}()

	return ch
}

// Close cancels any in-flight extraction and ends all subscriptions.
func (f *Flow) Close() {
	f.cancel()

	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (f *Flow) transitionLocked(to State) {
	from := f.state
	f.state = to
	f.updatedAt = time.Now()
	f.logger.Debug("submission transition", "from", from, "to", to)

	st := f.statusLocked()
	for ch := range f.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}

func (f *Flow) statusLocked() Status {
	st := Status{
		State:     f.state,
		Query:     f.query,
		Error:     f.lastErr,
		Documents: f.submitted,
		UpdatedAt: f.updatedAt,
	}
	if f.state == StateHandedOff {
		st.Token = f.token
	}
	return st
}
