package league

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// errRetired tells the registry to look the actor up again.
var errRetired = errors.New("league actor retired")

// hydrateTimeout bounds the initial load of an actor's snapshot.
const hydrateTimeout = 10 * time.Second

type opFunc func(ctx context.Context, a *Actor) error

type request struct {
	ctx  context.Context
	op   opFunc
	done chan error
}

// Actor is the single owner of one league's snapshot.
// Its fields are only touched by its own goroutine.
type Actor struct {
	id       string
	registry *Registry
	snap     domain.LeagueSnapshot

	mailbox chan request
	quit    chan struct{}
	stopped chan struct{}
}

func newActor(r *Registry, id string) *Actor {
	return &Actor{
		id:       id,
		registry: r,
		mailbox:  make(chan request),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// submit hands op to the actor and waits for its result.
func (a *Actor) submit(ctx context.Context, op opFunc) error {
	req := request{ctx: ctx, op: op, done: make(chan error, 1)}
	select {
	case a.mailbox <- req:
	case <-a.stopped:
		return errRetired
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) run() {
	defer a.registry.wg.Done()
	defer close(a.stopped)

	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	if err := a.hydrate(ctx); err != nil {
		a.registry.logger.Warn("League hydration failed, starting empty", "league_id", a.id, "err", err)
	}
	cancel()

	var idle <-chan time.Time
	var timer *time.Timer
	if a.registry.idle > 0 {
		timer = time.NewTimer(a.registry.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case req := <-a.mailbox:
			if err := req.ctx.Err(); err != nil {
				req.done <- err
			} else {
				req.done <- a.exec(req.ctx, req.op)
			}
			if timer != nil {
				timer.Reset(a.registry.idle)
			}
		case <-idle:
			a.registry.retire(a)
			a.registry.logger.Debug("League actor evicted after idle timeout", "league_id", a.id)
			return
		case <-a.quit:
			return
		}
	}
}

// hydrate replaces the in-memory snapshot with the stored one.
// A missing document yields the empty snapshot; other errors leave the empty snapshot in place.
func (a *Actor) hydrate(ctx context.Context) error {
	a.snap = domain.LeagueSnapshot{
		History: []domain.TradeRecord{},
		Memory:  domain.NewMemorySummary(a.registry.now()),
	}
	stored, err := a.registry.store.Load(ctx, a.id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	a.snap = *stored
	if a.snap.History == nil {
		a.snap.History = []domain.TradeRecord{}
	}
	return nil
}

func (a *Actor) exec(ctx context.Context, op opFunc) error {
	locker := a.registry.locker
	if locker == nil {
		return op(ctx, a)
	}

	unlock, err := locker.Lock(ctx, "league:"+a.id, a.registry.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			a.registry.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"league_id", a.id,
				"err", err,
			)
		}
	}()

	// Another replica may have written since we last looked.
	if err := a.hydrate(ctx); err != nil {
		return fmt.Errorf("reload league %s: %w", a.id, err)
	}
	return op(ctx, a)
}

func (a *Actor) put(ctx context.Context, league *domain.League) error {
	next := a.snap.Clone()
	next.League = league.Clone()
	if err := a.registry.store.Save(ctx, a.id, &next); err != nil {
		return fmt.Errorf("save league %s: %w", a.id, err)
	}
	a.snap = next
	return nil
}

func (a *Actor) appendHistory(ctx context.Context, proposal domain.TradeProposal, result domain.TradeEvaluation) (domain.MemorySummary, error) {
	if a.snap.League == nil {
		return domain.MemorySummary{}, fmt.Errorf("%w: league %s", domain.ErrNotInitialized, a.id)
	}

	now := a.registry.now()
	next := a.snap.Clone()
	count := next.AppendHistory(domain.TradeRecord{
		Proposal:  proposal,
		Result:    result,
		Timestamp: now,
	})

	if domain.ShouldRefreshMemory(count) && a.registry.summarizer != nil {
		notes, err := a.registry.summarizer.Summarize(ctx, next.History)
		if err != nil {
			a.registry.logger.Warn("Memory summary generation failed, keeping previous notes",
				"league_id", a.id,
				"trade_count", count,
				"err", err,
			)
		} else {
			next.Memory.PersonaNotes = notes
			next.Memory.LastUpdated = now
		}
	}

	if err := a.registry.store.Save(ctx, a.id, &next); err != nil {
		return domain.MemorySummary{}, fmt.Errorf("save history for %s: %w", a.id, err)
	}
	a.snap = next
	return next.Memory, nil
}
