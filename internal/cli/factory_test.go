package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tradeflow/internal/config"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return cfg
}

func sampleLeague() *domain.League {
	return &domain.League{
		LeagueID: "L1",
		Teams:    []domain.Team{{ID: "A"}, {ID: "B"}},
		Players: []domain.Player{
			{ID: "p1", Team: "A", Proj: 10},
			{ID: "p2", Team: "B", Proj: 12},
		},
	}
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, err := OpenStores(context.Background(), config.Config{Store: "etcd"})
	assert.ErrorContains(t, err, `unknown store "etcd"`)
}

func TestBuild_DurableBackendsSurviveRestart(t *testing.T) {
	tests := []struct {
		name string
		env  func(dir string) map[string]string
	}{
		{"file", func(dir string) map[string]string {
			return map[string]string{"TRADEFLOW_STORE": "file", "TRADEFLOW_DATA_DIR": dir}
		}},
		{"sqlite", func(dir string) map[string]string {
			return map[string]string{"TRADEFLOW_STORE": "sqlite", "TRADEFLOW_SQLITE_PATH": filepath.Join(dir, "tf.db")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadConfig(t, tt.env(t.TempDir()))
			ctx := context.Background()

			first, err := Build(ctx, cfg, nil)
			require.NoError(t, err)
			require.NoError(t, first.App.Leagues.Put(ctx, sampleLeague()))
			require.NoError(t, first.Close(ctx))

			second, err := Build(ctx, cfg, nil)
			require.NoError(t, err)
			defer second.Close(ctx)

			got, err := second.App.Leagues.Get(ctx, "L1")
			require.NoError(t, err)
			assert.Len(t, got.Players, 2)
		})
	}
}

func TestBuild_EncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, map[string]string{
		"TRADEFLOW_STORE":          "file",
		"TRADEFLOW_DATA_DIR":       dir,
		"TRADEFLOW_ENCRYPTION_KEY": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32)),
	})
	ctx := context.Background()

	stack, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, stack.App.Leagues.Put(ctx, sampleLeague()))
	require.NoError(t, stack.Close(ctx))

	raw, err := os.ReadFile(filepath.Join(dir, "leagues", "L1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ciphertext")
	assert.NotContains(t, string(raw), `"p1"`)

	reopened, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer reopened.Close(ctx)
	got, err := reopened.App.Leagues.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)
}

func TestBuild_RedisReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"TRADEFLOW_STORE":            "redis",
		"TRADEFLOW_REDIS_ADDR":       mr.Addr(),
		"TRADEFLOW_DISTRIBUTED_LOCK": "true",
	})
	ctx := context.Background()

	stack, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer stack.Close(ctx)

	require.NoError(t, stack.App.Leagues.Put(ctx, sampleLeague()))
	assert.True(t, mr.Exists("tradeflow:leagues:L1"))

	srv := httptest.NewServer(stack.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBuild_RunsWorkflowWithConfiguredRetries(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"TRADEFLOW_EVAL_ATTEMPTS": "1"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stack, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer stack.Close(context.Background())
	require.NoError(t, stack.Start(ctx))
	require.NoError(t, stack.App.Leagues.Put(ctx, sampleLeague()))

	_, err = stack.App.Engine.Submit(ctx, domain.EvaluateTradeInput{
		WorkflowID: "wf-1",
		Proposal:   domain.TradeProposal{LeagueID: "L1", FromTeamID: "A", ToTeamID: "B", Give: []string{"p1"}, Get: []string{"p2"}},
	})
	require.NoError(t, err)

	snap, err := stack.App.Engine.Await(ctx, "wf-1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, snap.Status)
	assert.Equal(t, domain.GradeD, snap.Output.Evaluation.Grade)
}

func TestLoadLeagueFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "league.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
leagueId: L9
teams:
  - id: A
    needs: [RB]
players:
  - id: p1
    name: One
    team: A
    proj: 12.5
    injury:
      status: DTD
`), 0o644))

	league, err := LoadLeagueFile(yamlPath, "")
	require.NoError(t, err)
	assert.Equal(t, "L9", league.LeagueID)
	assert.Equal(t, []string{"RB"}, league.Teams[0].Needs)
	require.NotNil(t, league.Players[0].Injury)
	assert.Equal(t, domain.InjuryDayToDay, league.Players[0].Injury.Status)
	assert.Equal(t, 12.5, league.Players[0].Proj)

	jsonPath := filepath.Join(dir, "league.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"teams":[],"players":[]}`), 0o644))

	_, err = LoadLeagueFile(jsonPath, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	league, err = LoadLeagueFile(jsonPath, "L10")
	require.NoError(t, err)
	assert.Equal(t, "L10", league.LeagueID)
}
