package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
)

// DefaultLockTTL bounds how long one operation may hold a league's distributed lock.
const DefaultLockTTL = 30 * time.Second

// Registry maps league ids to their actors.
type Registry struct {
	store      ports.LeagueStore
	locker     ports.DistributedLocker
	summarizer ports.Summarizer
	logger     *slog.Logger
	idle       time.Duration
	lockTTL    time.Duration
	now        func() time.Time

	mu     sync.Mutex
	actors map[string]*Actor
	closed bool
	wg     sync.WaitGroup
}

// Option configures the Registry.
type Option func(*Registry)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(r *Registry) {
		r.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.lockTTL = ttl
	}
}

// WithSummarizer sets the narrative generator used every MemoryRefreshEvery trades.
// Without one the narrative is never regenerated.
func WithSummarizer(s ports.Summarizer) Option {
	return func(r *Registry) {
		r.summarizer = s
	}
}

// WithIdleTimeout stops actors that received no request for d. Zero keeps them forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.idle = d
	}
}

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a Registry persisting to store.
func NewRegistry(store ports.LeagueStore, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		logger:  logging.NewNop(),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		actors:  make(map[string]*Actor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put replaces the league record in full.
func (r *Registry) Put(ctx context.Context, league *domain.League) error {
	if err := league.Validate(); err != nil {
		return err
	}
	return r.do(ctx, league.LeagueID, func(ctx context.Context, a *Actor) error {
		return a.put(ctx, league)
	})
}

// Get returns a copy of the stored league, or ErrNotInitialized.
func (r *Registry) Get(ctx context.Context, leagueID string) (*domain.League, error) {
	var out *domain.League
	err := r.do(ctx, leagueID, func(ctx context.Context, a *Actor) error {
		if a.snap.League == nil {
			return fmt.Errorf("%w: league %s", domain.ErrNotInitialized, leagueID)
		}
		out = a.snap.League.Clone()
		return nil
	})
	return out, err
}

// AppendHistory records an evaluated proposal and returns the updated memory.
// Every MemoryRefreshEvery trades the narrative is regenerated; a failed regeneration keeps the old text.
func (r *Registry) AppendHistory(ctx context.Context, leagueID string, proposal domain.TradeProposal, result domain.TradeEvaluation) (domain.MemorySummary, error) {
	var out domain.MemorySummary
	err := r.do(ctx, leagueID, func(ctx context.Context, a *Actor) error {
		var err error
		out, err = a.appendHistory(ctx, proposal, result)
		return err
	})
	return out, err
}

// GetMemory returns the league's memory summary, the default one if nothing was ever recorded.
// It only fails when ctx ends or the registry is closed.
func (r *Registry) GetMemory(ctx context.Context, leagueID string) (domain.MemorySummary, error) {
	var out domain.MemorySummary
	err := r.do(ctx, leagueID, func(ctx context.Context, a *Actor) error {
		out = a.snap.Memory
		return nil
	})
	return out, err
}

// History returns the retained trade records, oldest first.
func (r *Registry) History(ctx context.Context, leagueID string) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := r.do(ctx, leagueID, func(ctx context.Context, a *Actor) error {
		out = append([]domain.TradeRecord{}, a.snap.History...)
		return nil
	})
	return out, err
}

// List returns the ids of every persisted league.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.store.List(ctx)
}

// Active returns the number of running actors.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Close stops every actor and waits for in-flight requests to finish or ctx to end.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for id, a := range r.actors {
		close(a.quit)
		delete(r.actors, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs op on the league's actor, starting a fresh actor if the previous one retired.
func (r *Registry) do(ctx context.Context, leagueID string, op opFunc) error {
	if leagueID == "" {
		return fmt.Errorf("%w: leagueId is required", domain.ErrValidation)
	}
	for {
		a, err := r.actor(leagueID)
		if err != nil {
			return err
		}
		err = a.submit(ctx, op)
		if errors.Is(err, errRetired) {
			continue
		}
		return err
	}
}

func (r *Registry) actor(leagueID string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrClosed
	}
	if a, ok := r.actors[leagueID]; ok {
		return a, nil
	}

	a := newActor(r, leagueID)
	r.actors[leagueID] = a
	r.wg.Add(1)
	go a.run()
	return a, nil
}

// retire removes a from the map if it is still the registered actor for its id.
func (r *Registry) retire(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.actors[a.id]; ok && cur == a {
		delete(r.actors, a.id)
	}
}
