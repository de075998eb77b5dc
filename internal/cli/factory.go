package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aretw0/tradeflow"
	"github.com/aretw0/tradeflow/internal/config"
	"github.com/aretw0/tradeflow/internal/logging"
	api "github.com/aretw0/tradeflow/pkg/adapters/http"
	"github.com/aretw0/tradeflow/pkg/adapters/file"
	"github.com/aretw0/tradeflow/pkg/adapters/llm"
	"github.com/aretw0/tradeflow/pkg/adapters/memory"
	"github.com/aretw0/tradeflow/pkg/adapters/redis"
	"github.com/aretw0/tradeflow/pkg/adapters/sqlite"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/league"
	"github.com/aretw0/tradeflow/pkg/observability"
	"github.com/aretw0/tradeflow/pkg/persistence/middleware"
	"github.com/aretw0/tradeflow/pkg/ports"
	"github.com/aretw0/tradeflow/pkg/workflow"
	backend "github.com/redis/go-redis/v9"
)

// Stores is the persistence selected by configuration.
type Stores struct {
	Leagues   ports.LeagueStore
	Workflows ports.WorkflowStore
	Locker    ports.DistributedLocker
	Comps     ports.CompsIndex

	closers []func(context.Context) error
	ready   []func(context.Context) error
}

// Close releases backend connections.
func (s *Stores) Close(ctx context.Context) error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stack is a fully wired App plus the HTTP options derived from configuration.
type Stack struct {
	App *tradeflow.App

	cfg   config.Config
	ready []func(context.Context) error
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.Format(cfg.LogFormat)), nil
}

// backends holds the shared connections namespaced stores are carved from.
type backends struct {
	kind   string
	cfg    config.Config
	redis  *backend.Client
	sqlite *sqlite.DB
}

func newStore[T any](b *backends, namespace string) ports.Store[T] {
	switch b.kind {
	case config.StoreFile:
		return file.New[T](filepath.Join(b.cfg.DataDir, namespace))
	case config.StoreRedis:
		return redis.NewStore[T](b.redis, namespace, redis.WithPrefix(b.cfg.RedisPrefix))
	case config.StoreSQLite:
		return sqlite.NewStore[T](b.sqlite, namespace)
	}
	return memory.NewStore[T]()
}

// sealedStore returns a plain store, or one that encrypts documents when a key is configured.
func sealedStore[T any](b *backends, namespace string, enc *middleware.EncryptionConfig) (ports.Store[T], error) {
	if enc == nil {
		return newStore[T](b, namespace), nil
	}
	st, err := middleware.NewEncryption[T](newStore[middleware.Sealed](b, namespace), *enc)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// OpenStores opens the league and workflow stores for cfg.Store.
func OpenStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	b := &backends{kind: strings.ToLower(cfg.Store), cfg: cfg}
	s := &Stores{Comps: memory.NewCompsIndex(tradeflow.DefaultCompsLimit)}

	switch b.kind {
	case config.StoreMemory, config.StoreFile, "":
	case config.StoreRedis:
		b.redis = redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		s.Comps = redis.NewCompsIndex(b.redis, cfg.RedisPrefix, tradeflow.DefaultCompsLimit)
		if cfg.DistributedLock {
			s.Locker = redis.NewLocker(b.redis, cfg.RedisPrefix)
		}
		s.closers = append(s.closers, func(context.Context) error { return b.redis.Close() })
		s.ready = append(s.ready, func(ctx context.Context) error { return b.redis.Ping(ctx).Err() })
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		b.sqlite = db
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	var enc *middleware.EncryptionConfig
	if active != nil {
		enc = &middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback}
	}

	if s.Leagues, err = sealedStore[domain.LeagueSnapshot](b, "leagues", enc); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	if s.Workflows, err = sealedStore[domain.WorkflowRecord](b, "workflows", enc); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Build wires an App from configuration: stores, text generators, tracing, and engine tuning.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Service:  "tradeflow",
		Version:  tradeflow.Version,
		Exporter: cfg.OTelExporter,
		Endpoint: cfg.OTelEndpoint,
	})
	if err != nil {
		_ = stores.Close(ctx)
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	opts := []tradeflow.Option{
		tradeflow.WithLogger(logger),
		tradeflow.WithStores(stores.Leagues, stores.Workflows),
		tradeflow.WithCompsIndex(stores.Comps),
		tradeflow.WithMetrics(true),
		tradeflow.WithLeagueOptions(league.WithIdleTimeout(cfg.ActorIdle)),
		tradeflow.WithWorkflowOptions(
			workflow.WithAttempts(cfg.EvalAttempts),
			workflow.WithRetryBackoff(cfg.RetryBackoff),
			workflow.WithMaxConcurrent(cfg.MaxConcurrent),
		),
		tradeflow.WithCloser(stores.Close),
		tradeflow.WithCloser(shutdownTracing),
	}
	if stores.Locker != nil {
		opts = append(opts, tradeflow.WithLocker(stores.Locker))
	}
	if cfg.LLMEnabled() {
		writer := newGenerator(cfg, cfg.LLMModel, logger)
		summaryModel := cfg.SummaryModel
		if summaryModel == "" {
			summaryModel = cfg.LLMModel
		}
		opts = append(opts,
			tradeflow.WithTextGenerator(writer),
			tradeflow.WithSummaryGenerator(newGenerator(cfg, summaryModel, logger)),
		)
		logger.Info("LLM text generation enabled", "model", cfg.LLMModel, "summary_model", summaryModel)
	}

	return &Stack{
		App:   tradeflow.New(opts...),
		cfg:   cfg,
		ready: stores.ready,
	}, nil
}

// Handler returns the HTTP API with CORS, keep-alive and readiness taken from configuration.
func (s *Stack) Handler() http.Handler {
	opts := []api.Option{
		api.WithKeepAlive(s.cfg.KeepAlive),
		api.WithCORSOrigins(s.cfg.CORSOrigins...),
	}
	for _, check := range s.ready {
		opts = append(opts, api.WithReadyCheck(check))
	}
	return s.App.Handler(opts...)
}

// Start resumes pending workflows and starts the stream sweeper.
func (s *Stack) Start(ctx context.Context) error {
	_, err := s.App.Start(ctx, s.cfg.StreamTTL)
	return err
}

// Close stops the App and releases every backend.
func (s *Stack) Close(ctx context.Context) error {
	return s.App.Close(ctx)
}

func newGenerator(cfg config.Config, model string, logger *slog.Logger) *llm.Generator {
	return llm.New(model,
		llm.WithBaseURL(cfg.LLMBaseURL),
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithLogger(logger),
	)
}
