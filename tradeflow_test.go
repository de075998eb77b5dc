package tradeflow_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tradeflow"
	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, app *tradeflow.App) {
	t.Helper()
	require.NoError(t, app.Leagues.Put(context.Background(), &domain.League{
		LeagueID: "L1",
		Teams:    []domain.Team{{ID: "A"}, {ID: "B"}},
		Players: []domain.Player{
			{ID: "p1", Name: "One", Team: "A", Proj: 10},
			{ID: "p2", Name: "Two", Team: "B", Proj: 14, Injury: &domain.Injury{Status: domain.InjuryOut}},
		},
	}))
}

func input(id string) domain.EvaluateTradeInput {
	return domain.EvaluateTradeInput{
		WorkflowID: id,
		Proposal:   domain.TradeProposal{LeagueID: "L1", FromTeamID: "A", ToTeamID: "B", Give: []string{"p1"}, Get: []string{"p2"}},
	}
}

func TestApp_MetricsExposed(t *testing.T) {
	app := tradeflow.New(tradeflow.WithMetrics(true))
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	seed(t, app)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := app.Engine.Submit(ctx, input("wf-1"))
	require.NoError(t, err)
	snap, err := app.Engine.Await(ctx, "wf-1", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.StatusComplete, snap.Status)
	assert.Contains(t, snap.Output.Evaluation.Risks, "Two: OUT")

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		text := string(body)
		return strings.Contains(text, `tradeflow_workflow_status_total{status="complete"} 1`) &&
			strings.Contains(text, `tradeflow_stream_emits_total{delivered="false"} 1`) &&
			strings.Contains(text, "tradeflow_league_actors")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_CompsFeedLaterEvaluations(t *testing.T) {
	app := tradeflow.New()
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	seed(t, app)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := app.Engine.Submit(ctx, input("wf-a"))
	require.NoError(t, err)
	_, err = app.Engine.Await(ctx, "wf-a", 5*time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, err := app.Engine.Inspect(ctx, "wf-a")
		return err == nil && rec.Cursor == len(workflow.Steps())
	}, 2*time.Second, 5*time.Millisecond)

	_, err = app.Engine.Submit(ctx, input("wf-b"))
	require.NoError(t, err)
	snap, err := app.Engine.Await(ctx, "wf-b", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"A sent p1 for p2 to B"}, snap.Output.Evaluation.Comps)
}

func TestApp_ResumesPendingWorkflows(t *testing.T) {
	leagues := memory.NewStore[domain.LeagueSnapshot]()
	workflows := memory.NewStore[domain.WorkflowRecord]()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A record left queued by a process that stopped before running it.
	require.NoError(t, workflows.Save(ctx, "wf-left", domain.NewWorkflowRecord("wf-left", input("wf-left"), time.Now())))

	app := tradeflow.New(tradeflow.WithStores(leagues, workflows))
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	seed(t, app)

	n, err := app.Start(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := app.Engine.Await(ctx, "wf-left", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, snap.Status)
}

func TestApp_CloseRunsClosersInReverse(t *testing.T) {
	var order []string
	app := tradeflow.New(
		tradeflow.WithCloser(func(context.Context) error { order = append(order, "first"); return nil }),
		tradeflow.WithCloser(func(context.Context) error { order = append(order, "second"); return nil }),
	)
	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, tradeflow.Version)
	assert.Equal(t, strings.TrimSpace(tradeflow.Version), tradeflow.Version)
}
