package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRADEFLOW_STORE", "")
	os.Unsetenv("TRADEFLOW_STORE")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive)
	assert.Equal(t, 3, cfg.EvalAttempts)
	assert.Equal(t, time.Duration(0), cfg.RetryBackoff)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.LLMEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRADEFLOW_STORE", "redis")
	t.Setenv("TRADEFLOW_REDIS_DB", "2")
	t.Setenv("TRADEFLOW_EVAL_ATTEMPTS", "5")
	t.Setenv("TRADEFLOW_RETRY_BACKOFF", "250ms")
	t.Setenv("TRADEFLOW_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("TRADEFLOW_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("TRADEFLOW_LLM_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5, cfg.EvalAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.LLMEnabled())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TRADEFLOW_ADDR=:9999\n"), 0o644))
	// godotenv never overrides variables that are already set.
	t.Setenv("TRADEFLOW_ADDR", "")
	os.Unsetenv("TRADEFLOW_ADDR")
	t.Cleanup(func() { os.Unsetenv("TRADEFLOW_ADDR") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreMemory, EvalAttempts: 1, MaxConcurrent: 1, KeepAlive: time.Second}
	require.NoError(t, base.Validate())

	bad := base
	bad.Store = "etcd"
	assert.Error(t, bad.Validate())

	bad = base
	bad.EvalAttempts = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.KeepAlive = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.RetryBackoff = -time.Second
	assert.Error(t, bad.Validate())
}

func TestEncryptionKeys(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	old := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, 32))

	active, fallback, err := Config{}.EncryptionKeys()
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Nil(t, fallback)

	active, fallback, err = Config{EncryptionKey: key, EncryptionFallbackKeys: []string{old}}.EncryptionKeys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Equal(t, byte(9), fallback[0][0])

	_, _, err = Config{EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))}.EncryptionKeys()
	assert.ErrorContains(t, err, "want 32 bytes")

	_, _, err = Config{EncryptionKey: "%%%"}.EncryptionKeys()
	assert.ErrorContains(t, err, "not base64")

	_, _, err = Config{EncryptionFallbackKeys: []string{old}}.EncryptionKeys()
	assert.ErrorContains(t, err, "requires TRADEFLOW_ENCRYPTION_KEY")
}
