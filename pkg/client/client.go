// Package client talks to a tradeflow server over HTTP.
//
// Await follows a workflow to its terminal snapshot. It listens on the stream first
// and falls back to polling the status endpoint when the stream fails. Both paths
// decode the same domain.WorkflowSnapshot.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/cenkalti/backoff/v5"
)

// DefaultPollInterval is the status polling period used after a stream failure.
const DefaultPollInterval = 500 * time.Millisecond

// errNotTerminal keeps the poll loop going.
var errNotTerminal = errors.New("workflow not terminal")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradeflow: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the domain error the server reported.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrWorkflowExists
	case http.StatusServiceUnavailable:
		return domain.ErrClosed
	}
	return nil
}

// Client is a tradeflow API client.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. It must not set a global timeout
// shorter than the streams you intend to hold open.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPollInterval sets the fallback polling period.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger used to report stream fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         http.DefaultClient,
		pollInterval: DefaultPollInterval,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitLeague stores league, replacing any previous state.
func (c *Client) InitLeague(ctx context.Context, league *domain.League) error {
	if league == nil || league.LeagueID == "" {
		return fmt.Errorf("%w: league with leagueId required", domain.ErrValidation)
	}
	return c.do(ctx, http.MethodPut, "/api/leagues/"+url.PathEscape(league.LeagueID)+"/state", league, nil)
}

// League fetches the stored league.
func (c *Client) League(ctx context.Context, leagueID string) (*domain.League, error) {
	var league domain.League
	if err := c.do(ctx, http.MethodGet, "/api/leagues/"+url.PathEscape(leagueID)+"/state", nil, &league); err != nil {
		return nil, err
	}
	return &league, nil
}

// Memory fetches the league's memory summary.
func (c *Client) Memory(ctx context.Context, leagueID string) (domain.MemorySummary, error) {
	var mem domain.MemorySummary
	err := c.do(ctx, http.MethodGet, "/api/leagues/"+url.PathEscape(leagueID)+"/memory", nil, &mem)
	return mem, err
}

// EvaluateRequest starts a workflow. ID is optional.
type EvaluateRequest struct {
	ID       string               `json:"id,omitempty"`
	Proposal domain.TradeProposal `json:"proposal"`
	Persona  string               `json:"persona,omitempty"`
}

// Evaluate submits a proposal and returns the queued snapshot.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (domain.WorkflowSnapshot, error) {
	var snap domain.WorkflowSnapshot
	err := c.do(ctx, http.MethodPost, "/api/trade/evaluate", req, &snap)
	return snap, err
}

// Status polls the workflow once.
func (c *Client) Status(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	var snap domain.WorkflowSnapshot
	err := c.do(ctx, http.MethodGet, "/api/trade/status?id="+url.QueryEscape(id), nil, &snap)
	return snap, err
}

// Stream holds the event stream open and returns the first payload it carries.
// A stream that closes without a payload returns domain.ErrStreamDisconnected.
func (c *Client) Stream(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream?id="+url.QueryEscape(id), nil)
	if err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("%w: %v", domain.ErrStreamDisconnected, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.WorkflowSnapshot{}, readAPIError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var snap domain.WorkflowSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return domain.WorkflowSnapshot{}, fmt.Errorf("decode stream event: %w", err)
		}
		return snap, nil
	}
	if err := sc.Err(); err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("%w: %v", domain.ErrStreamDisconnected, err)
	}
	return domain.WorkflowSnapshot{}, fmt.Errorf("%w: closed without payload", domain.ErrStreamDisconnected)
}

// Await returns the workflow's terminal snapshot. A workflow that is already terminal is
// returned from status at once. Otherwise the stream and status polling race, and the
// first terminal snapshot either produces wins, so a payload consumed by an earlier
// listener or swept from the hub never leaves Await waiting on keep-alives.
func (c *Client) Await(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	snap, err := c.Status(ctx, id)
	if err == nil && snap.Status.IsTerminal() {
		return snap, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return domain.WorkflowSnapshot{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		snap   domain.WorkflowSnapshot
		err    error
		stream bool
	}
	results := make(chan result, 2)
	go func() {
		snap, err := c.Stream(ctx, id)
		results <- result{snap: snap, err: err, stream: true}
	}()
	go func() {
		snap, err := c.Poll(ctx, id)
		results <- result{snap: snap, err: err}
	}()

	for {
		r := <-results
		if r.err == nil && r.snap.Status.IsTerminal() {
			return r.snap, nil
		}
		if r.stream {
			c.logger.Debug("stream ended without a result, polling status", "workflow_id", id, "err", r.err)
			continue
		}
		return domain.WorkflowSnapshot{}, r.err
	}
}

// Poll queries the status endpoint until the workflow is terminal or ctx ends.
func (c *Client) Poll(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	op := func() (domain.WorkflowSnapshot, error) {
		snap, err := c.Status(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return snap, backoff.Permanent(err)
			}
			return snap, err
		}
		if !snap.Status.IsTerminal() {
			return snap, errNotTerminal
		}
		return snap, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(0),
	)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = resp.Status
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
