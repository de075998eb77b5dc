package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// errStopped means the stored record reached a terminal state behind the runner's back.
var errStopped = errors.New("workflow stopped externally")

// errNotTerminal keeps Await polling.
var errNotTerminal = errors.New("workflow not terminal")

// execution is the in-memory state of one run.
type execution struct {
	rec      *domain.WorkflowRecord
	league   *domain.League
	eval     domain.TradeEvaluation
	memory   domain.MemorySummary
	attempts int
}

type step struct {
	name       string
	bestEffort bool
	run        func(e *Engine, ctx context.Context, x *execution) (any, error)
	restore    func(x *execution, output json.RawMessage) error
}

var pipeline = []step{
	{
		name: domain.StepFetchLeague,
		run:  (*Engine).fetchLeague,
		restore: func(x *execution, out json.RawMessage) error {
			return json.Unmarshal(out, &x.league)
		},
	},
	{
		name: domain.StepEvaluate,
		run:  (*Engine).evaluate,
		restore: func(x *execution, out json.RawMessage) error {
			return json.Unmarshal(out, &x.eval)
		},
	},
	{name: domain.StepAppendHistory, bestEffort: true, run: (*Engine).appendHistory},
	{name: domain.StepFetchMemory, bestEffort: true, run: (*Engine).fetchMemory},
	{name: domain.StepNotify, bestEffort: true, run: (*Engine).notify},
}

// Steps returns the step names in execution order.
func Steps() []string {
	names := make([]string, len(pipeline))
	for i, s := range pipeline {
		names[i] = s.name
	}
	return names
}

// IsBestEffort reports whether a failure of the named step leaves the result intact.
func IsBestEffort(name string) bool {
	for _, s := range pipeline {
		if s.name == name {
			return s.bestEffort
		}
	}
	return false
}

func (e *Engine) run(ctx context.Context, id string) {
	rec, err := e.store.Load(ctx, id)
	if err != nil {
		e.logger.Error("Workflow could not be loaded", "workflow_id", id, "err", err)
		return
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", id),
		attribute.String("league.id", rec.Input.LeagueID),
	))
	defer span.End()

	x := &execution{rec: rec}
	if rec.Status == domain.StatusQueued {
		if err := e.advance(ctx, x, domain.StatusRunning); err != nil {
			e.logStop(id, err)
			return
		}
	}

	for i, st := range pipeline {
		if cp, ok := rec.Checkpoint(st.name); ok {
			if st.restore != nil && len(cp.Output) > 0 {
				if err := st.restore(x, cp.Output); err != nil {
					e.fail(ctx, x, st.name, fmt.Errorf("restore %s checkpoint: %w", st.name, err))
					return
				}
			}
			e.stepEvent(ctx, e.hooks.OnStepComplete, domain.EventStepComplete, id, st, cp.Attempts, 0, nil, true)
			continue
		}
		if !rec.Pending(len(pipeline)) {
			return
		}

		if err := e.runStep(ctx, x, i, st); err != nil {
			if errors.Is(err, errStopped) || ctx.Err() != nil {
				e.logStop(id, err)
				return
			}
			e.fail(ctx, x, st.name, err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
	}
	e.logger.Info("Workflow finished", "workflow_id", id, "status", rec.Status, "grade", x.eval.Grade)
}

// runStep executes one step and checkpoints its outcome. Only critical-step failures are returned.
func (e *Engine) runStep(ctx context.Context, x *execution, index int, st step) error {
	id := x.rec.ID
	if err := e.checkStopped(ctx, x); err != nil {
		return err
	}

	stepCtx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.id", id),
		attribute.String("workflow.step", st.name),
		attribute.Bool("workflow.best_effort", st.bestEffort),
	))
	defer span.End()

	x.attempts = 1
	e.stepEvent(stepCtx, e.hooks.OnStepStart, domain.EventStepStart, id, st, 0, 0, nil, false)
	start := time.Now()
	out, err := st.run(e, stepCtx, x)
	elapsed := time.Since(start)

	cp := domain.StepCheckpoint{Name: st.name, Attempts: x.attempts, CompletedAt: e.now()}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.stepEvent(stepCtx, e.hooks.OnStepFailed, domain.EventStepFailed, id, st, x.attempts, elapsed, err, false)
		if !st.bestEffort {
			return err
		}
		e.logger.Warn("Best-effort step failed",
			"workflow_id", id,
			"step", st.name,
			"err", fmt.Errorf("%w: %v", domain.ErrSideEffect, err),
		)
		cp.Error = err.Error()
	} else if out != nil {
		raw, merr := json.Marshal(out)
		if merr != nil {
			return fmt.Errorf("encode %s output: %w", st.name, merr)
		}
		cp.Output = raw
	}

	next := x.rec.Status
	if st.name == domain.StepEvaluate && err == nil {
		next = domain.StatusComplete
	}
	perr := e.commit(ctx, x, next, func(rec *domain.WorkflowRecord) {
		rec.Steps = append(rec.Steps, cp)
		rec.Cursor = index + 1
		if next == domain.StatusComplete && rec.Status != domain.StatusComplete {
			rec.Output = &domain.WorkflowOutput{OK: true, Evaluation: x.eval}
		}
	})
	if perr != nil {
		return perr
	}

	if err == nil {
		e.stepEvent(stepCtx, e.hooks.OnStepComplete, domain.EventStepComplete, id, st, x.attempts, elapsed, nil, false)
	}
	return nil
}

// advance transitions the record (when next differs) and persists it.
func (e *Engine) advance(ctx context.Context, x *execution, next domain.WorkflowStatus) error {
	return e.commit(ctx, x, next, nil)
}

// commit applies change and the transition to next, then persists the record.
// When the transition or the save fails the in-memory record is put back as it was.
func (e *Engine) commit(ctx context.Context, x *execution, next domain.WorkflowStatus, change func(*domain.WorkflowRecord)) error {
	prev := *x.rec
	from := x.rec.Status
	if change != nil {
		change(x.rec)
	}
	if next != from {
		if err := x.rec.Transition(next, e.now()); err != nil {
			*x.rec = prev
			return err
		}
	} else {
		x.rec.UpdatedAt = e.now()
	}
	if err := e.persist(ctx, x.rec); err != nil {
		*x.rec = prev
		return err
	}
	if next != from {
		e.statusChanged(ctx, x.rec.ID, from, next)
	}
	return nil
}

// persist saves rec unless the stored copy was moved to a different terminal state.
func (e *Engine) persist(ctx context.Context, rec *domain.WorkflowRecord) error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	stored, err := e.store.Load(ctx, rec.ID)
	if err == nil && stored.Status.IsTerminal() && stored.Status != rec.Status {
		return fmt.Errorf("%w: now %s", errStopped, stored.Status)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load workflow %s: %w", rec.ID, err)
	}
	if err := e.store.Save(ctx, rec.ID, rec); err != nil {
		return fmt.Errorf("save workflow %s: %w", rec.ID, err)
	}
	return nil
}

func (e *Engine) checkStopped(ctx context.Context, x *execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.recordMu.Lock()
	stored, err := e.store.Load(ctx, x.rec.ID)
	e.recordMu.Unlock()
	if err != nil {
		return nil
	}
	if stored.Status.IsTerminal() && stored.Status != x.rec.Status {
		return fmt.Errorf("%w: now %s", errStopped, stored.Status)
	}
	return nil
}

// fail moves the workflow to errored with err's message and pushes the failure.
// The errored record is saved with the engine's retry policy.
func (e *Engine) fail(ctx context.Context, x *execution, stepName string, err error) {
	msg := err.Error()
	_, perr := backoff.Retry(ctx, func() (struct{}, error) {
		cerr := e.commit(ctx, x, domain.StatusErrored, func(rec *domain.WorkflowRecord) { rec.Error = msg })
		if errors.Is(cerr, errStopped) || errors.Is(cerr, domain.ErrInvalidTransition) {
			return struct{}{}, backoff.Permanent(cerr)
		}
		return struct{}{}, cerr
	}, e.retryOptions()...)
	if perr != nil {
		e.logStop(x.rec.ID, perr)
		return
	}
	e.logger.Error("Workflow errored", "workflow_id", x.rec.ID, "step", stepName, "err", err)
	_, _ = e.push(ctx, x.rec)
}

// retryOptions is the engine's retry policy: e.attempts tries, retryWait apart.
func (e *Engine) retryOptions() []backoff.RetryOption {
	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if e.retryWait > 0 {
		policy = backoff.NewConstantBackOff(e.retryWait)
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(e.attempts)),
	}
}

func (e *Engine) logStop(id string, err error) {
	e.logger.Info("Workflow run stopped", "workflow_id", id, "reason", err)
}

func (e *Engine) stepEvent(ctx context.Context, hook func(context.Context, *domain.StepEvent), typ domain.EventType, id string, st step, attempt int, d time.Duration, err error, skipped bool) {
	if hook == nil {
		return
	}
	ev := &domain.StepEvent{
		EventBase:  domain.EventBase{Timestamp: e.now(), Type: typ, WorkflowID: id},
		Step:       st.name,
		Attempt:    attempt,
		Duration:   d,
		Skipped:    skipped,
		BestEffort: st.bestEffort,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	hook(ctx, ev)
}

func (e *Engine) fetchLeague(ctx context.Context, x *execution) (any, error) {
	league, err := e.leagues.Get(ctx, x.rec.Input.LeagueID)
	if err != nil {
		return nil, err
	}
	x.league = league
	return league, nil
}

func (e *Engine) evaluate(ctx context.Context, x *execution) (any, error) {
	in := x.rec.Input
	x.attempts = 0
	op := func() (domain.TradeEvaluation, error) {
		x.attempts++
		ev, err := e.evaluator.Evaluate(ctx, x.league, in.Proposal, in.Persona)
		if err != nil && (errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotInitialized)) {
			return ev, backoff.Permanent(err)
		}
		return ev, err
	}

	eval, err := backoff.Retry(ctx, op, append(e.retryOptions(),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.logger.Warn("Evaluation attempt failed, retrying",
				"workflow_id", x.rec.ID,
				"attempt", x.attempts,
				"wait", wait,
				"err", err,
			)
		}),
	)...)
	if err != nil {
		return nil, err
	}
	x.eval = eval
	return eval, nil
}

func (e *Engine) appendHistory(ctx context.Context, x *execution) (any, error) {
	in := x.rec.Input
	mem, err := e.leagues.AppendHistory(ctx, in.LeagueID, in.Proposal, x.eval)
	if err != nil {
		return nil, err
	}
	x.memory = mem

	if e.comps != nil {
		if err := e.comps.Add(ctx, x.rec.ID, in.Proposal.Text()); err != nil {
			e.logger.Warn("Comparable trade indexing failed", "workflow_id", x.rec.ID, "err", err)
		}
	}
	return mem, nil
}

func (e *Engine) fetchMemory(ctx context.Context, x *execution) (any, error) {
	mem, err := e.leagues.GetMemory(ctx, x.rec.Input.LeagueID)
	if err != nil {
		return nil, err
	}
	x.memory = mem
	e.logger.Debug("League memory after trade",
		"workflow_id", x.rec.ID,
		"league_id", x.rec.Input.LeagueID,
		"trade_count", mem.TradeCount,
	)
	return mem, nil
}

type notifyOutput struct {
	Delivered bool `json:"delivered"`
}

func (e *Engine) notify(ctx context.Context, x *execution) (any, error) {
	delivered, err := e.push(ctx, x.rec)
	if err != nil {
		return nil, err
	}
	return notifyOutput{Delivered: delivered}, nil
}
