package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a Store implementation
// adheres to the defined interface contract. newDoc builds a distinct document per id.
func RunStoreContract[T any](t *testing.T, store Store[T], newDoc func(id string) *T) {
	t.Helper()
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		id := prefix + "-save"
		doc := newDoc(id)

		require.NoError(t, store.Save(ctx, id, doc), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assertSameJSON(t, doc, loaded)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		id := prefix + "-replace"
		require.NoError(t, store.Save(ctx, id, newDoc(id+"-old")))

		replacement := newDoc(id + "-new")
		require.NoError(t, store.Save(ctx, id, replacement))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assertSameJSON(t, replacement, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+prefix)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		require.NoError(t, store.Save(ctx, id, newDoc(id)))

		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")

		assert.NoError(t, store.Delete(ctx, id), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := prefix + "-list-1"
		id2 := prefix + "-list-2"
		require.NoError(t, store.Save(ctx, id1, newDoc(id1)))
		require.NoError(t, store.Save(ctx, id2, newDoc(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// SampleSnapshot returns a league snapshot suitable for store contract tests.
func SampleSnapshot(id string) *domain.LeagueSnapshot {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.LeagueSnapshot{
		League: &domain.League{
			LeagueID: id,
			Teams:    []domain.Team{{ID: "A", Name: "Alpha", Roster: []string{"p1"}}},
			Players:  []domain.Player{{ID: "p1", Name: "One", Team: "A", Proj: 10}},
			Rules:    map[string]any{"scoring": "points"},
		},
		History: []domain.TradeRecord{{
			Proposal:  domain.TradeProposal{LeagueID: id, Give: []string{"p1"}},
			Result:    domain.TradeEvaluation{Grade: domain.GradeC, Risks: []string{}, Comps: []string{}},
			Timestamp: now,
		}},
		Memory: domain.MemorySummary{PersonaNotes: "notes for " + id, TradeCount: 1, LastUpdated: now},
	}
}

// SampleWorkflow returns a workflow record suitable for store contract tests.
func SampleWorkflow(id string) *domain.WorkflowRecord {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := domain.NewWorkflowRecord(id, domain.EvaluateTradeInput{
		WorkflowID: id,
		LeagueID:   "L1",
		Proposal:   domain.TradeProposal{LeagueID: "L1", Give: []string{"p1"}, Get: []string{"p2"}},
		Persona:    domain.DefaultPersona,
	}, now)
	rec.Steps = append(rec.Steps, domain.StepCheckpoint{
		Name:        domain.StepFetchLeague,
		Output:      json.RawMessage(fmt.Sprintf(`{"leagueId":%q}`, "L1")),
		Attempts:    1,
		CompletedAt: now,
	})
	rec.Cursor = 1
	return rec
}

func assertSameJSON(t *testing.T, want, got any) {
	t.Helper()
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}
