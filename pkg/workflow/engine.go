package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultAttempts is how many times the evaluate step is tried.
	DefaultAttempts = 3

	// DefaultMaxConcurrent bounds the number of workflows executing at once.
	DefaultMaxConcurrent = 64

	tracerName = "github.com/aretw0/tradeflow/pkg/workflow"
)

// Leagues is the league state a workflow reads and appends to.
type Leagues interface {
	Get(ctx context.Context, leagueID string) (*domain.League, error)
	AppendHistory(ctx context.Context, leagueID string, proposal domain.TradeProposal, result domain.TradeEvaluation) (domain.MemorySummary, error)
	GetMemory(ctx context.Context, leagueID string) (domain.MemorySummary, error)
}

// Engine creates, runs, and reports on evaluation workflows.
type Engine struct {
	store     ports.WorkflowStore
	leagues   Leagues
	evaluator ports.Evaluator
	notifier  ports.Notifier
	comps     ports.CompsIndex
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	tracer    trace.Tracer
	attempts  int
	retryWait time.Duration
	maxConc   int64
	now       func() time.Time
	newID     func() string

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{}
	closed bool
	wg     sync.WaitGroup

	// recordMu serializes read-modify-write of stored records between runners and Terminate.
	recordMu sync.Mutex
}

// Option configures the Engine.
type Option func(*Engine)

// WithNotifier sets where completion payloads are pushed.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithCompsIndex makes the append-history step index each trade for future comparisons.
func WithCompsIndex(idx ports.CompsIndex) Option {
	return func(e *Engine) { e.comps = idx }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithAttempts sets how many times evaluation is tried before the workflow errors.
func WithAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithRetryBackoff waits d between evaluation attempts. Zero retries immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryWait = d }
}

// WithMaxConcurrent bounds concurrently executing workflows.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConc = int64(n)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the uuid generator used when a workflow is created without an id.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New creates an Engine. Call Resume after construction to pick up interrupted workflows.
func New(store ports.WorkflowStore, leagues Leagues, evaluator ports.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		leagues:   leagues,
		evaluator: evaluator,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		attempts:  DefaultAttempts,
		maxConc:   DefaultMaxConcurrent,
		now:       time.Now,
		newID:     uuid.NewString,
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.maxConc)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Create decodes loosely typed params into an EvaluateTradeInput and submits it.
// A non-empty id overrides any workflowId in params.
func (e *Engine) Create(ctx context.Context, id string, params map[string]any) (domain.WorkflowSnapshot, error) {
	var in domain.EvaluateTradeInput
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return domain.WorkflowSnapshot{}, err
	}
	if err := dec.Decode(params); err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if id != "" {
		in.WorkflowID = id
	}
	return e.Submit(ctx, in)
}

// Submit persists a queued workflow for in, schedules it, and returns without waiting.
func (e *Engine) Submit(ctx context.Context, in domain.EvaluateTradeInput) (domain.WorkflowSnapshot, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.WorkflowSnapshot{}, err
	}
	if in.WorkflowID == "" {
		in.WorkflowID = e.newID()
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return domain.WorkflowSnapshot{}, domain.ErrClosed
	}

	rec := domain.NewWorkflowRecord(in.WorkflowID, in, e.now())
	e.recordMu.Lock()
	_, err := e.store.Load(ctx, rec.ID)
	switch {
	case err == nil:
		e.recordMu.Unlock()
		return domain.WorkflowSnapshot{}, fmt.Errorf("%w: %s", domain.ErrWorkflowExists, rec.ID)
	case !errors.Is(err, domain.ErrNotFound):
		e.recordMu.Unlock()
		return domain.WorkflowSnapshot{}, fmt.Errorf("check workflow %s: %w", rec.ID, err)
	}
	err = e.store.Save(ctx, rec.ID, rec)
	e.recordMu.Unlock()
	if err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("save workflow %s: %w", rec.ID, err)
	}

	e.logger.Info("Workflow queued", "workflow_id", rec.ID, "league_id", in.LeagueID, "persona", in.Persona)
	e.statusChanged(ctx, rec.ID, "", domain.StatusQueued)
	e.schedule(rec.ID)
	return rec.Snapshot(), nil
}

// Status returns the caller-visible snapshot of a workflow.
func (e *Engine) Status(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	rec, err := e.Inspect(ctx, id)
	if err != nil {
		return domain.WorkflowSnapshot{}, err
	}
	return rec.Snapshot(), nil
}

// Await polls the stored record every interval until the workflow is terminal or ctx ends.
func (e *Engine) Await(ctx context.Context, id string, interval time.Duration) (domain.WorkflowSnapshot, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return backoff.Retry(ctx, func() (domain.WorkflowSnapshot, error) {
		snap, err := e.Status(ctx, id)
		if err != nil {
			return snap, backoff.Permanent(err)
		}
		if !snap.Status.IsTerminal() {
			return snap, errNotTerminal
		}
		return snap, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(interval)), backoff.WithMaxElapsedTime(0))
}

// Inspect returns the full stored record, checkpoints included.
func (e *Engine) Inspect(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	rec, err := e.store.Load(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	return rec, nil
}

// List returns every stored workflow id.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// Delete removes a workflow record that is not currently executing.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if e.isActive(id) {
		return fmt.Errorf("%w: workflow %s is executing", domain.ErrInvalidTransition, id)
	}
	return e.store.Delete(ctx, id)
}

// Terminate marks a non-terminal workflow terminated. A running workflow stops before its next step.
func (e *Engine) Terminate(ctx context.Context, id string) (domain.WorkflowSnapshot, error) {
	e.recordMu.Lock()
	rec, err := e.store.Load(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		e.recordMu.Unlock()
		return domain.WorkflowSnapshot{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	if err != nil {
		e.recordMu.Unlock()
		return domain.WorkflowSnapshot{}, fmt.Errorf("load workflow %s: %w", id, err)
	}
	from := rec.Status
	if err := rec.Transition(domain.StatusTerminated, e.now()); err != nil {
		e.recordMu.Unlock()
		return domain.WorkflowSnapshot{}, err
	}
	rec.Error = "workflow terminated"
	err = e.store.Save(ctx, id, rec)
	e.recordMu.Unlock()
	if err != nil {
		return domain.WorkflowSnapshot{}, fmt.Errorf("save workflow %s: %w", id, err)
	}

	e.logger.Info("Workflow terminated", "workflow_id", id, "from", from)
	e.statusChanged(ctx, id, from, domain.StatusTerminated)
	e.push(ctx, rec)
	return rec.Snapshot(), nil
}

// Resume schedules every stored workflow that still has steps to run and returns how many.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	ids, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list workflows: %w", err)
	}
	resumed := 0
	for _, id := range ids {
		rec, err := e.store.Load(ctx, id)
		if err != nil {
			e.logger.Warn("Skipping unreadable workflow on resume", "workflow_id", id, "err", err)
			continue
		}
		if rec.Pending(len(pipeline)) && e.schedule(id) {
			resumed++
		}
	}
	if resumed > 0 {
		e.logger.Info("Resumed workflows", "count", resumed)
	}
	return resumed, nil
}

// Shutdown stops accepting workflows and waits for running ones. If ctx ends first the
// remaining runs are cancelled and left in the store for the next Resume.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

// Running returns the number of workflows currently scheduled or executing.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) isActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[id]
	return ok
}

// schedule starts a runner for id unless one is already active.
func (e *Engine) schedule(id string) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if _, ok := e.active[id]; ok {
		e.mu.Unlock()
		return false
	}
	e.active[id] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, id)
			e.mu.Unlock()
		}()

		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		e.run(e.ctx, id)
	}()
	return true
}

// push sends the record's snapshot to the notifier, logging failures.
func (e *Engine) push(ctx context.Context, rec *domain.WorkflowRecord) (bool, error) {
	if e.notifier == nil {
		return false, nil
	}
	payload, err := json.Marshal(rec.Snapshot())
	if err != nil {
		return false, err
	}
	delivered, err := e.notifier.Notify(ctx, rec.ID, payload)
	if err != nil {
		e.logger.Warn("Stream notification failed, polling remains available",
			"workflow_id", rec.ID,
			"err", err,
		)
	}
	return delivered, err
}

func (e *Engine) statusChanged(ctx context.Context, id string, from, to domain.WorkflowStatus) {
	if e.hooks.OnStatusChange == nil {
		return
	}
	e.hooks.OnStatusChange(ctx, &domain.StatusEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventStatusChange, WorkflowID: id},
		From:      from,
		To:        to,
	})
}
