package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/evaluation"
	"github.com/aretw0/tradeflow/pkg/league"
	"github.com/aretw0/tradeflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcResult struct {
	Result struct {
		IsError           bool            `json:"isError"`
		StructuredContent json.RawMessage `json:"structuredContent"`
		Content           []struct {
			Text string `json:"text"`
		} `json:"content"`
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	srv *Server
	seq int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	leagues := league.NewRegistry(memory.NewStore[domain.LeagueSnapshot]())
	engine := workflow.New(memory.NewStore[domain.WorkflowRecord](), leagues, evaluation.New())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		_ = leagues.Close(ctx)
	})

	h := &harness{srv: NewServer(leagues, engine, WithVersion("test"))}
	h.rpc(t, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
		"capabilities":    map[string]any{},
	})
	return h
}

func (h *harness) rawRPC(t *testing.T, method string, params any) []byte {
	t.Helper()
	h.seq++
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": h.seq, "method": method, "params": params})
	require.NoError(t, err)

	raw, err := json.Marshal(h.srv.MCPServer().HandleMessage(context.Background(), msg))
	require.NoError(t, err)
	return raw
}

func (h *harness) rpc(t *testing.T, method string, params any) rpcResult {
	t.Helper()
	raw := h.rawRPC(t, method, params)
	var out rpcResult
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	require.Nil(t, out.Error, string(raw))
	return out
}

func (h *harness) call(t *testing.T, tool string, args map[string]any) rpcResult {
	t.Helper()
	return h.rpc(t, "tools/call", map[string]any{"name": tool, "arguments": args})
}

const leagueJSON = `{"leagueId":"L1","teams":[{"id":"A"},{"id":"B"}],"players":[{"id":"p1","name":"One","team":"A","proj":10},{"id":"p2","name":"Two","team":"B","proj":14}]}`

func TestTools_Listed(t *testing.T) {
	h := newHarness(t)
	listed := h.rawRPC(t, "tools/list", map[string]any{})
	for _, name := range []string{"init_league", "get_league", "get_memory", "evaluate_trade", "trade_status"} {
		assert.Contains(t, string(listed), fmt.Sprintf("%q", name))
	}
}

func TestTools_EvaluateAndWait(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "init_league", map[string]any{"league_id": "L1", "league": leagueJSON})
	require.False(t, res.Result.IsError, res.Result.Content)
	assert.JSONEq(t, `{"ok":true,"leagueId":"L1"}`, string(res.Result.StructuredContent))

	res = h.call(t, "evaluate_trade", map[string]any{
		"league_id": "L1", "from_team_id": "A", "to_team_id": "B",
		"give": []string{"p1"}, "get": []string{"p2"}, "id": "wf-mcp", "wait": true,
	})
	require.False(t, res.Result.IsError, res.Result.Content)

	var snap domain.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(res.Result.StructuredContent, &snap))
	assert.Equal(t, "wf-mcp", snap.ID)
	require.Equal(t, domain.StatusComplete, snap.Status)
	assert.Equal(t, 4.0, snap.Output.Evaluation.DeltaValueFrom)

	res = h.call(t, "trade_status", map[string]any{"id": "wf-mcp"})
	var polled domain.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(res.Result.StructuredContent, &polled))
	assert.Equal(t, snap, polled)

	// History is appended after the status turns complete.
	assert.Eventually(t, func() bool {
		var mem domain.MemorySummary
		out := h.call(t, "get_memory", map[string]any{"league_id": "L1"})
		return json.Unmarshal(out.Result.StructuredContent, &mem) == nil && mem.TradeCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTools_Errors(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "get_league", map[string]any{"league_id": "nope"})
	assert.True(t, res.Result.IsError)

	res = h.call(t, "init_league", map[string]any{"league_id": "L1", "league": "{bad"})
	assert.True(t, res.Result.IsError)

	res = h.call(t, "init_league", map[string]any{"league_id": "L1", "league": `{"leagueId":"L2"}`})
	assert.True(t, res.Result.IsError)

	res = h.call(t, "trade_status", map[string]any{"id": "missing"})
	assert.True(t, res.Result.IsError)
}

func TestResource_Leagues(t *testing.T) {
	h := newHarness(t)
	h.call(t, "init_league", map[string]any{"league_id": "L1", "league": leagueJSON})

	res := h.rpc(t, "resources/read", map[string]any{"uri": "tradeflow://leagues"})
	require.Len(t, res.Result.Contents, 1)
	assert.JSONEq(t, `["L1"]`, res.Result.Contents[0].Text)
}
