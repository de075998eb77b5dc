// Package config loads process configuration from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends accepted by TRADEFLOW_STORE.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

const encryptionKeySize = 32

// Config is the full set of TRADEFLOW_* settings. Command flags override it.
type Config struct {
	Addr string `env:"TRADEFLOW_ADDR" envDefault:":8080"`

	Store      string `env:"TRADEFLOW_STORE" envDefault:"memory"`
	DataDir    string `env:"TRADEFLOW_DATA_DIR" envDefault:".tradeflow/data"`
	SQLitePath string `env:"TRADEFLOW_SQLITE_PATH" envDefault:".tradeflow/tradeflow.db"`

	RedisAddr     string `env:"TRADEFLOW_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TRADEFLOW_REDIS_PASSWORD"`
	RedisDB       int    `env:"TRADEFLOW_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"TRADEFLOW_REDIS_PREFIX" envDefault:"tradeflow:"`

	DistributedLock bool `env:"TRADEFLOW_DISTRIBUTED_LOCK" envDefault:"false"`

	// Base64 AES-256 keys. When EncryptionKey is set every stored document is sealed.
	EncryptionKey          string   `env:"TRADEFLOW_ENCRYPTION_KEY"`
	EncryptionFallbackKeys []string `env:"TRADEFLOW_ENCRYPTION_FALLBACK_KEYS" envSeparator:","`

	LLMBaseURL   string `env:"TRADEFLOW_LLM_BASE_URL"`
	LLMAPIKey    string `env:"TRADEFLOW_LLM_API_KEY"`
	LLMModel     string `env:"TRADEFLOW_LLM_MODEL"`
	SummaryModel string `env:"TRADEFLOW_LLM_SUMMARY_MODEL"`

	KeepAlive     time.Duration `env:"TRADEFLOW_KEEPALIVE" envDefault:"15s"`
	EvalAttempts  int           `env:"TRADEFLOW_EVAL_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"TRADEFLOW_RETRY_BACKOFF" envDefault:"0s"`
	MaxConcurrent int           `env:"TRADEFLOW_MAX_CONCURRENT" envDefault:"64"`
	ActorIdle     time.Duration `env:"TRADEFLOW_ACTOR_IDLE" envDefault:"10m"`
	StreamTTL     time.Duration `env:"TRADEFLOW_STREAM_TTL" envDefault:"10m"`

	LogLevel  string `env:"TRADEFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TRADEFLOW_LOG_FORMAT" envDefault:"text"`

	OTelExporter string `env:"TRADEFLOW_OTEL_EXPORTER" envDefault:"none"`
	OTelEndpoint string `env:"TRADEFLOW_OTEL_ENDPOINT"`

	CORSOrigins []string `env:"TRADEFLOW_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file, then parses the environment.
// A missing .env is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values the runtime cannot honor.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store) {
	case StoreMemory, StoreFile, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.EvalAttempts < 1 {
		return fmt.Errorf("config: TRADEFLOW_EVAL_ATTEMPTS must be >= 1, got %d", c.EvalAttempts)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("config: TRADEFLOW_MAX_CONCURRENT must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.KeepAlive <= 0 {
		return fmt.Errorf("config: TRADEFLOW_KEEPALIVE must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("config: TRADEFLOW_RETRY_BACKOFF must not be negative")
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	return nil
}

// EncryptionKeys decodes the at-rest encryption keys. A nil active key means encryption is off.
func (c Config) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		if len(c.EncryptionFallbackKeys) > 0 {
			return nil, nil, errors.New("config: TRADEFLOW_ENCRYPTION_FALLBACK_KEYS requires TRADEFLOW_ENCRYPTION_KEY")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(c.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("config: TRADEFLOW_ENCRYPTION_KEY: %w", err)
	}
	for i, k := range c.EncryptionFallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("config: TRADEFLOW_ENCRYPTION_FALLBACK_KEYS[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("want %d bytes, got %d", encryptionKeySize, len(key))
	}
	return key, nil
}

// LLMEnabled reports whether a chat-completions endpoint is configured.
func (c Config) LLMEnabled() bool {
	return c.LLMModel != "" && (c.LLMBaseURL != "" || c.LLMAPIKey != "")
}
