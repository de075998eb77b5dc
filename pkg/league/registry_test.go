package league_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/adapters/redis"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/league"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSummarizer returns "notes-N" on the Nth call and fails calls listed in failOn.
type scriptedSummarizer struct {
	calls  atomic.Int32
	failOn map[int32]bool
}

func (s *scriptedSummarizer) Summarize(ctx context.Context, history []domain.TradeRecord) (string, error) {
	n := s.calls.Add(1)
	if s.failOn[n] {
		return "", errors.New("generator unavailable")
	}
	return fmt.Sprintf("notes-%d", n), nil
}

type blockingSummarizer struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSummarizer) Summarize(ctx context.Context, history []domain.TradeRecord) (string, error) {
	close(s.entered)
	<-s.release
	return "done", nil
}

type brokenStore struct {
	*memory.Store[domain.LeagueSnapshot]
}

func (brokenStore) Load(ctx context.Context, id string) (*domain.LeagueSnapshot, error) {
	return nil, errors.New("disk on fire")
}

func sampleLeague(id string) *domain.League {
	return &domain.League{
		LeagueID: id,
		Teams:    []domain.Team{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}},
		Players:  []domain.Player{{ID: "p1", Team: "A", Proj: 10}, {ID: "p2", Team: "B", Proj: 14}},
	}
}

func trade(n int) domain.TradeProposal {
	return domain.TradeProposal{LeagueID: "L1", FromTeamID: "A", ToTeamID: "B", Give: []string{fmt.Sprintf("p%d", n)}}
}

func newRegistry(t *testing.T, opts ...league.Option) (*league.Registry, *memory.Store[domain.LeagueSnapshot]) {
	t.Helper()
	store := memory.NewStore[domain.LeagueSnapshot]()
	r := league.NewRegistry(store, opts...)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, store
}

func TestRegistry_GetNotInitialized(t *testing.T) {
	r, _ := newRegistry(t)

	got, err := r.Get(context.Background(), "never-put")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Nil(t, got)
}

func TestRegistry_PutReplacesWholesale(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, sampleLeague("L1")))
	require.NoError(t, r.Put(ctx, sampleLeague("L1")), "re-put of the same payload")

	replacement := &domain.League{LeagueID: "L1", Teams: []domain.Team{{ID: "Z"}}}
	require.NoError(t, r.Put(ctx, replacement))

	got, err := r.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Team{{ID: "Z"}}, got.Teams)
	assert.Empty(t, got.Players, "no partial merge with the previous record")

	got.Teams[0].ID = "mutated"
	again, err := r.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Z", again.Teams[0].ID, "callers receive copies")
}

func TestRegistry_PutRequiresID(t *testing.T) {
	r, _ := newRegistry(t)
	err := r.Put(context.Background(), &domain.League{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegistry_AppendHistoryKeepsTenMostRecent(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, sampleLeague("L1")))

	for i := 1; i <= 25; i++ {
		mem, err := r.AppendHistory(ctx, "L1", trade(i), domain.TradeEvaluation{Grade: domain.GradeC})
		require.NoError(t, err)
		assert.Equal(t, i, mem.TradeCount)
	}

	history, err := r.History(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, history, domain.HistoryLimit)
	for i, rec := range history {
		assert.Equal(t, fmt.Sprintf("p%d", 16+i), rec.Proposal.Give[0])
	}

	// History and memory are persisted together.
	stored, err := store.Load(ctx, "L1")
	require.NoError(t, err)
	assert.Len(t, stored.History, domain.HistoryLimit)
	assert.Equal(t, 25, stored.Memory.TradeCount)
}

func TestRegistry_AppendHistoryNotInitialized(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.AppendHistory(context.Background(), "ghost", trade(1), domain.TradeEvaluation{})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestRegistry_MemoryRefreshEveryThirdTrade(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	clock := func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Minute) }

	summarizer := &scriptedSummarizer{failOn: map[int32]bool{2: true}}
	r, _ := newRegistry(t, league.WithSummarizer(summarizer), league.WithClock(clock))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, sampleLeague("L1")))

	var afterThree domain.MemorySummary
	for i := 1; i <= 9; i++ {
		mem, err := r.AppendHistory(ctx, "L1", trade(i), domain.TradeEvaluation{})
		require.NoError(t, err)

		switch i {
		case 1, 2:
			assert.Equal(t, domain.DefaultPersonaNotes, mem.PersonaNotes)
		case 3:
			assert.Equal(t, "notes-1", mem.PersonaNotes)
			afterThree = mem
		case 4, 5:
			assert.Equal(t, afterThree.PersonaNotes, mem.PersonaNotes)
		case 6:
			// Second regeneration fails: previous text and timestamp survive.
			assert.Equal(t, afterThree.PersonaNotes, mem.PersonaNotes)
			assert.Equal(t, afterThree.LastUpdated, mem.LastUpdated)
		case 9:
			assert.Equal(t, "notes-3", mem.PersonaNotes)
			assert.True(t, mem.LastUpdated.After(afterThree.LastUpdated))
		}
	}
	assert.Equal(t, int32(3), summarizer.calls.Load(), "regeneration only on multiples of three")
}

func TestRegistry_GetMemoryDefault(t *testing.T) {
	r, _ := newRegistry(t)

	mem, err := r.GetMemory(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPersonaNotes, mem.PersonaNotes)
	assert.Zero(t, mem.TradeCount)
}

func TestRegistry_HydratesFromStore(t *testing.T) {
	store := memory.NewStore[domain.LeagueSnapshot]()
	ctx := context.Background()
	seed := domain.LeagueSnapshot{
		League:  sampleLeague("L1"),
		History: []domain.TradeRecord{{Proposal: trade(1)}},
		Memory:  domain.MemorySummary{PersonaNotes: "remembered", TradeCount: 7},
	}
	require.NoError(t, store.Save(ctx, "L1", &seed))

	r := league.NewRegistry(store)
	defer r.Close(ctx)

	got, err := r.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "L1", got.LeagueID)

	mem, err := r.AppendHistory(ctx, "L1", trade(2), domain.TradeEvaluation{})
	require.NoError(t, err)
	assert.Equal(t, 8, mem.TradeCount)
	assert.Equal(t, "remembered", mem.PersonaNotes)
}

func TestRegistry_HydrationFailureDegradesToEmpty(t *testing.T) {
	r := league.NewRegistry(brokenStore{memory.NewStore[domain.LeagueSnapshot]()})
	defer r.Close(context.Background())
	ctx := context.Background()

	_, err := r.Get(ctx, "L1")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	mem, err := r.GetMemory(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPersonaNotes, mem.PersonaNotes)
}

func TestRegistry_SerializesSameLeague(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, sampleLeague("L1")))
	require.NoError(t, r.Put(ctx, sampleLeague("L2")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, id := range []string{"L1", "L2"} {
			wg.Add(1)
			go func(id string, n int) {
				defer wg.Done()
				_, err := r.AppendHistory(ctx, id, trade(n), domain.TradeEvaluation{})
				assert.NoError(t, err)
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range []string{"L1", "L2"} {
		stored, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 50, stored.Memory.TradeCount, "no lost updates on %s", id)
		assert.Len(t, stored.History, domain.HistoryLimit)
	}
}

func TestRegistry_QueuedCallerHonorsContext(t *testing.T) {
	summarizer := &blockingSummarizer{entered: make(chan struct{}), release: make(chan struct{})}
	r, _ := newRegistry(t, league.WithSummarizer(summarizer))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, sampleLeague("L1")))

	for i := 1; i <= 2; i++ {
		_, err := r.AppendHistory(ctx, "L1", trade(i), domain.TradeEvaluation{})
		require.NoError(t, err)
	}

	go func() {
		_, _ = r.AppendHistory(ctx, "L1", trade(3), domain.TradeEvaluation{})
	}()
	<-summarizer.entered

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := r.GetMemory(timeoutCtx, "L1")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the actor is busy with the third append")

	_, err = r.GetMemory(timeoutCtx, "other-league")
	assert.Error(t, err, "expired context fails fast on any key")

	close(summarizer.release)
	assert.Eventually(t, func() bool {
		mem, err := r.GetMemory(ctx, "L1")
		return err == nil && mem.PersonaNotes == "done"
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_IdleEvictionRehydrates(t *testing.T) {
	r, _ := newRegistry(t, league.WithIdleTimeout(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, sampleLeague("L1")))
	assert.Equal(t, 1, r.Active())

	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 5*time.Millisecond)

	got, err := r.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "L1", got.LeagueID)
}

func TestRegistry_Close(t *testing.T) {
	r := league.NewRegistry(memory.NewStore[domain.LeagueSnapshot]())
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, sampleLeague("L1")))

	require.NoError(t, r.Close(ctx))
	assert.Zero(t, r.Active())

	_, err := r.Get(ctx, "L1")
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.NoError(t, r.Close(ctx), "second close is a no-op")
}

func TestRegistry_DistributedLockAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(mr.Addr(), "", 0)
	defer client.Close()

	store := redis.NewStore[domain.LeagueSnapshot](client, "league")
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	replicaA := league.NewRegistry(store, league.WithLocker(locker))
	replicaB := league.NewRegistry(store, league.WithLocker(locker))
	defer replicaA.Close(ctx)
	defer replicaB.Close(ctx)

	require.NoError(t, replicaA.Put(ctx, sampleLeague("L1")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, r := range []*league.Registry{replicaA, replicaB} {
			wg.Add(1)
			go func(r *league.Registry, n int) {
				defer wg.Done()
				_, err := r.AppendHistory(ctx, "L1", trade(n), domain.TradeEvaluation{})
				assert.NoError(t, err)
			}(r, i)
		}
	}
	wg.Wait()

	mem, err := replicaA.GetMemory(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 20, mem.TradeCount, "replicas must not overwrite each other's appends")
	assert.False(t, mr.Exists("test:lock:league:L1"), "lock released")
}
