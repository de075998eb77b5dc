package tradeflow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	api "github.com/aretw0/tradeflow/pkg/adapters/http"
	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/evaluation"
	"github.com/aretw0/tradeflow/pkg/league"
	"github.com/aretw0/tradeflow/pkg/observability"
	"github.com/aretw0/tradeflow/pkg/ports"
	"github.com/aretw0/tradeflow/pkg/stream"
	"github.com/aretw0/tradeflow/pkg/workflow"
)

// DefaultCompsLimit bounds the in-memory comparable-trade index.
const DefaultCompsLimit = 500

// App wires the league actors, the stream hub and the workflow engine over one set of stores.
type App struct {
	Leagues *league.Registry
	Engine  *workflow.Engine
	Hub     *stream.Hub
	Metrics *observability.Metrics

	logger  *slog.Logger
	closers []func(context.Context) error
}

type settings struct {
	logger        *slog.Logger
	leagueStore   ports.LeagueStore
	workflowStore ports.WorkflowStore
	locker        ports.DistributedLocker
	comps         ports.CompsIndex
	writer        ports.TextGenerator
	summarizer    ports.TextGenerator
	evaluator     ports.Evaluator
	hooks         domain.LifecycleHooks
	metrics       bool
	leagueOpts    []league.Option
	workflowOpts  []workflow.Option
	closers       []func(context.Context) error
}

// Option configures an App.
type Option func(*settings)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithStores sets the persistence for league snapshots and workflow records.
func WithStores(leagues ports.LeagueStore, workflows ports.WorkflowStore) Option {
	return func(s *settings) {
		s.leagueStore = leagues
		s.workflowStore = workflows
	}
}

// WithLocker serializes league mutations across processes sharing the stores.
func WithLocker(l ports.DistributedLocker) Option {
	return func(s *settings) { s.locker = l }
}

// WithCompsIndex sets the comparable-trade index.
func WithCompsIndex(idx ports.CompsIndex) Option {
	return func(s *settings) { s.comps = idx }
}

// WithTextGenerator produces persona writeups. Without one a template is used.
func WithTextGenerator(g ports.TextGenerator) Option {
	return func(s *settings) { s.writer = g }
}

// WithSummaryGenerator regenerates league narratives. Without one a trend summary is used.
func WithSummaryGenerator(g ports.TextGenerator) Option {
	return func(s *settings) { s.summarizer = g }
}

// WithEvaluator replaces the built-in evaluator.
func WithEvaluator(ev ports.Evaluator) Option {
	return func(s *settings) { s.evaluator = ev }
}

// WithLifecycleHooks adds hooks alongside the logging and metrics hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(s *settings) { s.hooks = h }
}

// WithMetrics enables the Prometheus registry.
func WithMetrics(enabled bool) Option {
	return func(s *settings) { s.metrics = enabled }
}

// WithLeagueOptions passes options through to the league registry.
func WithLeagueOptions(opts ...league.Option) Option {
	return func(s *settings) { s.leagueOpts = append(s.leagueOpts, opts...) }
}

// WithWorkflowOptions passes options through to the workflow engine.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(s *settings) { s.workflowOpts = append(s.workflowOpts, opts...) }
}

// WithCloser registers a release function run by Close, after the engine stops.
func WithCloser(fn func(context.Context) error) Option {
	return func(s *settings) { s.closers = append(s.closers, fn) }
}

// New builds an App. Stores default to process memory.
func New(opts ...Option) *App {
	s := &settings{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.leagueStore == nil {
		s.leagueStore = memory.NewStore[domain.LeagueSnapshot]()
	}
	if s.workflowStore == nil {
		s.workflowStore = memory.NewStore[domain.WorkflowRecord]()
	}
	if s.comps == nil {
		s.comps = memory.NewCompsIndex(DefaultCompsLimit)
	}

	app := &App{logger: s.logger, closers: s.closers}

	leagueOpts := []league.Option{
		league.WithLogger(s.logger),
		league.WithSummarizer(evaluation.NewSummarizer(s.summarizer)),
	}
	if s.locker != nil {
		leagueOpts = append(leagueOpts, league.WithLocker(s.locker))
	}
	app.Leagues = league.NewRegistry(s.leagueStore, append(leagueOpts, s.leagueOpts...)...)

	app.Hub = stream.NewHub(stream.WithLogger(s.logger))

	if s.evaluator == nil {
		s.evaluator = evaluation.New(
			evaluation.WithCompsIndex(s.comps),
			evaluation.WithTextGenerator(s.writer),
			evaluation.WithLogger(s.logger),
		)
	}

	hooks := []domain.LifecycleHooks{observability.LoggingHooks(s.logger), s.hooks}
	var notifier ports.Notifier = app.Hub
	if s.metrics {
		app.Metrics = observability.NewMetrics()
		hooks = append(hooks, app.Metrics.Hooks())
		notifier = observedNotifier{next: app.Hub, observe: app.Metrics.ObserveEmit}
	}

	workflowOpts := []workflow.Option{
		workflow.WithLogger(s.logger),
		workflow.WithNotifier(notifier),
		workflow.WithCompsIndex(s.comps),
		workflow.WithLifecycleHooks(observability.CombineHooks(hooks...)),
	}
	app.Engine = workflow.New(s.workflowStore, app.Leagues, s.evaluator, append(workflowOpts, s.workflowOpts...)...)

	if app.Metrics != nil {
		app.Metrics.Gauge("workflows_running", "Workflows currently executing.", func() float64 {
			return float64(app.Engine.Running())
		})
		app.Metrics.Gauge("league_actors", "League actors currently resident.", func() float64 {
			return float64(app.Leagues.Active())
		})
		app.Metrics.Gauge("stream_waiting", "Stream subscribers waiting for a payload.", func() float64 {
			waiting, _ := app.Hub.Stats()
			return float64(waiting)
		})
		app.Metrics.Gauge("stream_buffered", "Stream payloads buffered without a subscriber.", func() float64 {
			_, buffered := app.Hub.Stats()
			return float64(buffered)
		})
	}
	return app
}

// Handler returns the HTTP API over this App.
func (a *App) Handler(opts ...api.Option) http.Handler {
	base := []api.Option{api.WithLogger(a.logger)}
	if a.Metrics != nil {
		base = append(base,
			api.WithMetricsHandler(a.Metrics.Handler()),
			api.WithEmitObserver(a.Metrics.ObserveEmit),
		)
	}
	return api.NewHandler(a.Leagues, a.Engine, a.Hub, append(base, opts...)...)
}

// Start resumes workflows left pending by a previous process and sweeps stale stream
// channels until ctx ends. A zero streamTTL disables the sweeper.
func (a *App) Start(ctx context.Context, streamTTL time.Duration) (int, error) {
	if streamTTL > 0 {
		go a.Hub.RunSweeper(ctx, streamTTL/2, streamTTL)
	}
	n, err := a.Engine.Resume(ctx)
	if n > 0 {
		a.logger.Info("Resumed pending workflows", "count", n)
	}
	return n, err
}

// Close stops the engine, then the league actors, then any registered closers.
func (a *App) Close(ctx context.Context) error {
	errs := []error{a.Engine.Shutdown(ctx), a.Leagues.Close(ctx)}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

type observedNotifier struct {
	next    ports.Notifier
	observe func(delivered bool)
}

func (n observedNotifier) Notify(ctx context.Context, workflowID string, payload []byte) (bool, error) {
	delivered, err := n.next.Notify(ctx, workflowID, payload)
	if err == nil {
		n.observe(delivered)
	}
	return delivered, err
}
