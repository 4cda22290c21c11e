package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "AWS_REGION",
	"LLM_PROFILE", "SYMPOSIUM_MODEL", "SYMPOSIUM_STORE", "SYMPOSIUM_DATA_DIR",
	"SYMPOSIUM_SQLITE_PATH", "DATABASE_URL", "DYNAMODB_TABLE", "S3_BUCKET", "CDN_BASE_URL",
	"REDIS_ADDR", "SYMPOSIUM_PHILOSOPHERS_FILE", "SYMPOSIUM_TURN_DELAY", "LOG_LEVEL",
	"PORT", "SECRET_PREFIX",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMPOSIUM_DATA_DIR", "/tmp/sym")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store)
	assert.Equal(t, "debug", cfg.LLMProfile)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, filepath.Join("/tmp/sym", "symposium.db"), cfg.SQLitePath)
	assert.Equal(t, 500*time.Millisecond, cfg.TurnDelay)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "symposium", cfg.TableName)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMPOSIUM_STORE", "sqlite")
	t.Setenv("SYMPOSIUM_MODEL", "haiku")
	t.Setenv("SYMPOSIUM_TURN_DELAY", "0")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "haiku", cfg.Model)
	assert.Zero(t, cfg.TurnDelay)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)

	t.Setenv("SYMPOSIUM_TURN_DELAY", "1.5s")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.TurnDelay)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"SYMPOSIUM_STORE":      "mongo",
		"PORT":                 "eighty",
		"SYMPOSIUM_TURN_DELAY": "soon",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LLM_PROFILE")
	os.Unsetenv("REDIS_ADDR")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LLM_PROFILE=production\nREDIS_ADDR=cache:6379\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("LLM_PROFILE")
		os.Unsetenv("REDIS_ADDR")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.LLMProfile)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}
