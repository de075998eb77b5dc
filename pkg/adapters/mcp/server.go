package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// Leagues is the league surface exposed as tools.
type Leagues interface {
	Put(ctx context.Context, league *domain.League) error
	Get(ctx context.Context, leagueID string) (*domain.League, error)
	GetMemory(ctx context.Context, leagueID string) (domain.MemorySummary, error)
	List(ctx context.Context) ([]string, error)
}

// Workflows is the workflow surface exposed as tools.
type Workflows interface {
	Submit(ctx context.Context, in domain.EvaluateTradeInput) (domain.WorkflowSnapshot, error)
	Status(ctx context.Context, id string) (domain.WorkflowSnapshot, error)
	Await(ctx context.Context, id string, interval time.Duration) (domain.WorkflowSnapshot, error)
}

// LeagueResult is returned by init_league.
type LeagueResult struct {
	OK       bool   `json:"ok" jsonschema_description:"True when the league was stored"`
	LeagueID string `json:"leagueId" jsonschema_description:"The stored league id"`
}

// InitLeagueArgs are the init_league arguments.
type InitLeagueArgs struct {
	LeagueID string `json:"league_id"`
	League   string `json:"league"`
}

// LeagueArgs identify a league.
type LeagueArgs struct {
	LeagueID string `json:"league_id"`
}

// EvaluateArgs are the evaluate_trade arguments.
type EvaluateArgs struct {
	ID         string   `json:"id"`
	LeagueID   string   `json:"league_id"`
	FromTeamID string   `json:"from_team_id"`
	ToTeamID   string   `json:"to_team_id"`
	Give       []string `json:"give"`
	Get        []string `json:"get"`
	Persona    string   `json:"persona"`
	Wait       bool     `json:"wait"`
}

// StatusArgs identify a workflow.
type StatusArgs struct {
	ID string `json:"id"`
}

// Server exposes league and workflow operations over the Model Context Protocol.
type Server struct {
	leagues   Leagues
	workflows Workflows
	mcpServer *server.MCPServer
	logger    *slog.Logger
	waitLimit time.Duration
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	version   string
	logger    *slog.Logger
	waitLimit time.Duration
}

// WithVersion sets the version reported during initialization.
func WithVersion(v string) Option {
	return func(c *serverConfig) { c.version = v }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serverConfig) { c.logger = l }
}

// WithWaitLimit bounds how long evaluate_trade with wait=true blocks.
func WithWaitLimit(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.waitLimit = d
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(leagues Leagues, workflows Workflows, opts ...Option) *Server {
	cfg := serverConfig{version: "dev", logger: logging.NewNop(), waitLimit: 2 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		leagues:   leagues,
		workflows: workflows,
		mcpServer: server.NewMCPServer("tradeflow-mcp", cfg.version, server.WithToolCapabilities(false)),
		logger:    cfg.logger,
		waitLimit: cfg.waitLimit,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, for in-process transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout until the stream closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("init_league",
		mcp.WithDescription("Store a league (teams, players, rules), replacing any previous state."),
		mcp.WithString("league_id", mcp.Required(), mcp.Description("League identifier")),
		mcp.WithString("league", mcp.Required(), mcp.Description("League JSON document")),
		mcp.WithOutputSchema[LeagueResult](),
	), mcp.NewStructuredToolHandler(s.handleInitLeague))

	s.mcpServer.AddTool(mcp.NewTool("get_league",
		mcp.WithDescription("Fetch the stored league."),
		mcp.WithString("league_id", mcp.Required(), mcp.Description("League identifier")),
		mcp.WithOutputSchema[domain.League](),
	), mcp.NewStructuredToolHandler(s.handleGetLeague))

	s.mcpServer.AddTool(mcp.NewTool("get_memory",
		mcp.WithDescription("Fetch the league's running trade narrative."),
		mcp.WithString("league_id", mcp.Required(), mcp.Description("League identifier")),
		mcp.WithOutputSchema[domain.MemorySummary](),
	), mcp.NewStructuredToolHandler(s.handleGetMemory))

	s.mcpServer.AddTool(mcp.NewTool("evaluate_trade",
		mcp.WithDescription("Start a trade evaluation workflow. With wait=true, block until it finishes."),
		mcp.WithString("league_id", mcp.Required(), mcp.Description("League identifier")),
		mcp.WithArray("give", mcp.Required(), mcp.WithStringItems(), mcp.Description("Player ids leaving from_team")),
		mcp.WithArray("get", mcp.WithStringItems(), mcp.Description("Player ids leaving to_team")),
		mcp.WithString("from_team_id", mcp.Description("Proposing team")),
		mcp.WithString("to_team_id", mcp.Description("Receiving team")),
		mcp.WithString("persona", mcp.Description("Writeup persona label")),
		mcp.WithString("id", mcp.Description("Workflow id (generated when omitted)")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the terminal status")),
		mcp.WithOutputSchema[domain.WorkflowSnapshot](),
	), mcp.NewStructuredToolHandler(s.handleEvaluate))

	s.mcpServer.AddTool(mcp.NewTool("trade_status",
		mcp.WithDescription("Poll a trade evaluation workflow."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow id")),
		mcp.WithOutputSchema[domain.WorkflowSnapshot](),
	), mcp.NewStructuredToolHandler(s.handleStatus))
}

func (s *Server) handleInitLeague(ctx context.Context, _ mcp.CallToolRequest, args InitLeagueArgs) (LeagueResult, error) {
	var league domain.League
	if err := json.Unmarshal([]byte(args.League), &league); err != nil {
		return LeagueResult{}, fmt.Errorf("%w: league must be JSON: %v", domain.ErrValidation, err)
	}
	if league.LeagueID == "" {
		league.LeagueID = args.LeagueID
	}
	if league.LeagueID != args.LeagueID {
		return LeagueResult{}, fmt.Errorf("%w: league.leagueId %q does not match %q", domain.ErrValidation, league.LeagueID, args.LeagueID)
	}
	if err := s.leagues.Put(ctx, &league); err != nil {
		return LeagueResult{}, err
	}
	return LeagueResult{OK: true, LeagueID: league.LeagueID}, nil
}

func (s *Server) handleGetLeague(ctx context.Context, _ mcp.CallToolRequest, args LeagueArgs) (domain.League, error) {
	league, err := s.leagues.Get(ctx, args.LeagueID)
	if err != nil {
		return domain.League{}, err
	}
	return *league, nil
}

func (s *Server) handleGetMemory(ctx context.Context, _ mcp.CallToolRequest, args LeagueArgs) (domain.MemorySummary, error) {
	return s.leagues.GetMemory(ctx, args.LeagueID)
}

func (s *Server) handleEvaluate(ctx context.Context, _ mcp.CallToolRequest, args EvaluateArgs) (domain.WorkflowSnapshot, error) {
	snap, err := s.workflows.Submit(ctx, domain.EvaluateTradeInput{
		WorkflowID: args.ID,
		LeagueID:   args.LeagueID,
		Proposal: domain.TradeProposal{
			LeagueID:   args.LeagueID,
			FromTeamID: args.FromTeamID,
			ToTeamID:   args.ToTeamID,
			Give:       args.Give,
			Get:        args.Get,
		},
		Persona: args.Persona,
	})
	if err != nil || !args.Wait {
		return snap, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitLimit)
	defer cancel()
	final, err := s.workflows.Await(waitCtx, snap.ID, 0)
	if err != nil {
		s.logger.Warn("MCP evaluate: wait ended early", "workflow_id", snap.ID, "err", err)
		// The workflow keeps running; callers can poll trade_status.
		return snap, nil
	}
	return final, nil
}

func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest, args StatusArgs) (domain.WorkflowSnapshot, error) {
	return s.workflows.Status(ctx, args.ID)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("tradeflow://leagues", "Stored leagues",
		mcp.WithResourceDescription("Ids of every league with stored state"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.leagues.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list leagues: %w", err)
		}
		jsonBytes, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "tradeflow://leagues",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
