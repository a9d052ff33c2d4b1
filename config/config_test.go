package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ESSAY_ID", "1001")
	t.Setenv("ADMIN_PAYMENT_ID", "1002")
	t.Setenv("CHECKER_API_KEY", "sk-test")
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, int64(1001), cfg.Admin.EssayAdminID)
	assert.Equal(t, int64(1002), cfg.Admin.PaymentAdminID)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Review.Delay)
	assert.Equal(t, 30*time.Minute, cfg.Review.VoiceDelay)
	assert.Equal(t, 100, cfg.Review.MinWords)
	assert.Equal(t, 350, cfg.Review.MaxWords)
	assert.Equal(t, int64(1), cfg.Payment.Amount)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("REVIEW_DELAY", "1m")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
database:
  driver: postgres
  dsn: postgres://bot@localhost/essays
  max_open_conns: 5
review:
  delay: 5m
  voice_delay: 45m
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Minute, cfg.Review.Delay)
	assert.Equal(t, 45*time.Minute, cfg.Review.VoiceDelay)
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("ADMIN_ESSAY_ID", "1")
	t.Setenv("ADMIN_PAYMENT_ID", "1")
	t.Setenv("CHECKER_API_KEY", "k")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRedisBackendNeedsAddr(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCK_BACKEND", "redis")

	_, err := Load("")
	assert.ErrorContains(t, err, "redis.addr")
}

func TestValidateWordBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("REVIEW_MIN_WORDS", "400")

	_, err := Load("")
	assert.Error(t, err)
}
