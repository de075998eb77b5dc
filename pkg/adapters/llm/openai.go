// Package llm adapts OpenAI-compatible chat completion endpoints to ports.TextGenerator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when the provider answers without any choice text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Generator implements ports.TextGenerator over the chat completions API.
type Generator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*config)

type config struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	extra      []option.RequestOption
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets SDK-level retries. Workflow steps retry on their own, so the default is 0.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRequestOptions appends raw SDK request options (e.g. a custom HTTP client).
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

// New creates a Generator for model.
func New(model string, opts ...Option) *Generator {
	cfg := config{timeout: 30 * time.Second, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(cfg.maxRetries)}
	if cfg.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &Generator{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		timeout: cfg.timeout,
		logger:  cfg.logger,
	}
}

// Generate sends one system and one user message and returns the first choice's text.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", g.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	g.logger.Debug("Completion received", "model", g.model, "duration", time.Since(start), "chars", len(text))
	return text, nil
}
