package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tradeflow/pkg/adapters/redis"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	ports.RunStoreContract(t, redis.NewStore[domain.LeagueSnapshot](client, "league"), ports.SampleSnapshot)
	ports.RunStoreContract(t, redis.NewStore[domain.WorkflowRecord](client, "workflow"), ports.SampleWorkflow)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewStore[domain.WorkflowRecord](client, "workflow", redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "wf-ttl", ports.SampleWorkflow("wf-ttl")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "wf-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "wf-ttl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStore_PrefixAndNamespace(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewStore[domain.LeagueSnapshot](client, "league", redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "L1", ports.SampleSnapshot("L1")))

	assert.True(t, mr.Exists("custom:app:league:L1"), "document key should carry prefix and namespace")
	assert.True(t, mr.Exists("custom:app:league:index"), "index key should carry prefix and namespace")

	other := redis.NewStore[domain.WorkflowRecord](client, "workflow", redis.WithPrefix("custom:app:"))
	ids, err := other.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "namespaces must not share an index")
}

func TestRedisCompsIndex(t *testing.T) {
	_, client := newClient(t)
	idx := redis.NewCompsIndex(client, "test:", 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "1", "A sent p1 for p2 to B"))
	require.NoError(t, idx.Add(ctx, "2", "A sent p5 for p6 to B"))
	require.NoError(t, idx.Add(ctx, "3", "C sent p1 for p9 to D"))

	got, err := idx.Similar(ctx, "give:p1 get:p2", 5)
	require.NoError(t, err)
	// Oldest entry was trimmed, so only the newest p1 trade remains comparable.
	assert.Equal(t, []string{"C sent p1 for p9 to D"}, got)
}
