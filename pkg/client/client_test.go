package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	api "github.com/aretw0/tradeflow/pkg/adapters/http"
	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/client"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/evaluation"
	"github.com/aretw0/tradeflow/pkg/league"
	"github.com/aretw0/tradeflow/pkg/stream"
	"github.com/aretw0/tradeflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var l1 = &domain.League{
	LeagueID: "L1",
	Teams:    []domain.Team{{ID: "A"}, {ID: "B"}},
	Players: []domain.Player{
		{ID: "p1", Name: "One", Team: "A", Proj: 10},
		{ID: "p2", Name: "Two", Team: "B", Proj: 14},
	},
}

func proposal() domain.TradeProposal {
	return domain.TradeProposal{LeagueID: "L1", FromTeamID: "A", ToTeamID: "B", Give: []string{"p1"}, Get: []string{"p2"}}
}

// newServer runs the API; wrap may replace routes to simulate a broken stream.
func newServer(t *testing.T, wrap func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	leagues := league.NewRegistry(memory.NewStore[domain.LeagueSnapshot]())
	hub := stream.NewHub()
	engine := workflow.New(memory.NewStore[domain.WorkflowRecord](), leagues, evaluation.New(), workflow.WithNotifier(hub))

	var h http.Handler = api.NewHandler(leagues, engine, hub)
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		_ = leagues.Close(ctx)
	})
	return srv
}

func TestClient_LeagueRoundTrip(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL)
	ctx := context.Background()

	_, err := c.League(ctx, "L1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.InitLeague(ctx, l1))
	got, err := c.League(ctx, "L1")
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)

	mem, err := c.Memory(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPersonaNotes, mem.PersonaNotes)

	assert.ErrorIs(t, c.InitLeague(ctx, &domain.League{}), domain.ErrValidation)
}

func TestClient_AwaitViaStream(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.InitLeague(ctx, l1))

	queued, err := c.Evaluate(ctx, client.EvaluateRequest{ID: "wf-1", Proposal: proposal()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, queued.Status)

	snap, err := c.Await(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusComplete, snap.Status)
	assert.Equal(t, 4.0, snap.Output.Evaluation.DeltaValueFrom)

	polled, err := c.Status(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, polled, snap)
}

func TestClient_AwaitTwiceReturnsSameResult(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.InitLeague(ctx, l1))

	_, err := c.Evaluate(ctx, client.EvaluateRequest{ID: "wf-twice", Proposal: proposal()})
	require.NoError(t, err)

	first, err := c.Await(ctx, "wf-twice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusComplete, first.Status)

	// The single stream payload is spent; the second wait is served by status.
	secondCtx, secondCancel := context.WithTimeout(ctx, time.Second)
	defer secondCancel()
	second, err := c.Await(secondCtx, "wf-twice")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClient_AwaitWhenStreamNeverDelivers(t *testing.T) {
	srv := newServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/stream" {
				// Accept the stream but never send an event.
				w.Header().Set("Content-Type", "text/event-stream")
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				<-r.Context().Done()
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.InitLeague(ctx, l1))

	_, err := c.Evaluate(ctx, client.EvaluateRequest{ID: "wf-silent", Proposal: proposal()})
	require.NoError(t, err)

	snap, err := c.Await(ctx, "wf-silent")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, snap.Status)
}

func TestClient_AwaitUnknownWorkflow(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL)

	_, err := c.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_AwaitFallsBackToPolling(t *testing.T) {
	srv := newServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/stream" {
				http.Error(w, "stream offline", http.StatusBadGateway)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.InitLeague(ctx, l1))

	_, err := c.Stream(ctx, "wf-2")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)

	_, err = c.Evaluate(ctx, client.EvaluateRequest{ID: "wf-2", Proposal: proposal()})
	require.NoError(t, err)

	snap, err := c.Await(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, snap.Status)
	require.NotNil(t, snap.Output)
}

func TestClient_AwaitErroredWorkflow(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// No league stored: the workflow errors at fetch-league.
	_, err := c.Evaluate(ctx, client.EvaluateRequest{ID: "wf-3", Proposal: proposal()})
	require.NoError(t, err)

	snap, err := c.Await(ctx, "wf-3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusErrored, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Nil(t, snap.Output)
}

func TestClient_PollUnknownStopsImmediately(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))

	_, err := c.Poll(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_EvaluateConflict(t *testing.T) {
	srv := newServer(t, nil)
	c := client.New(srv.URL)
	ctx := context.Background()
	require.NoError(t, c.InitLeague(ctx, l1))

	_, err := c.Evaluate(ctx, client.EvaluateRequest{ID: "dup", Proposal: proposal()})
	require.NoError(t, err)
	_, err = c.Evaluate(ctx, client.EvaluateRequest{ID: "dup", Proposal: proposal()})
	assert.ErrorIs(t, err, domain.ErrWorkflowExists)
}
