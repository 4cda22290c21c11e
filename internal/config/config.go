// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the CLI and the MCP server. CLI flags override it.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	AWSRegion       string

	LLMProfile string
	Model      string // overrides every stage when set

	Store       string // file | sqlite | postgres | dynamodb
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	TableName   string
	S3Bucket    string
	CDNBaseURL  string
	RedisAddr   string

	PhilosophersFile string
	TurnDelay        time.Duration

	LogLevel     string
	Port         int
	SecretPrefix string
}

// Load reads .env from the working directory when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (Config, error) {
	dataDir := envOr("SYMPOSIUM_DATA_DIR", defaultDataDir())
	cfg := Config{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),

		LLMProfile: envOr("LLM_PROFILE", "debug"),
		Model:      os.Getenv("SYMPOSIUM_MODEL"),

		Store:       envOr("SYMPOSIUM_STORE", "file"),
		DataDir:     dataDir,
		SQLitePath:  envOr("SYMPOSIUM_SQLITE_PATH", filepath.Join(dataDir, "symposium.db")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		TableName:   envOr("DYNAMODB_TABLE", "symposium"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		CDNBaseURL:  os.Getenv("CDN_BASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		PhilosophersFile: os.Getenv("SYMPOSIUM_PHILOSOPHERS_FILE"),

		LogLevel:     envOr("LOG_LEVEL", "info"),
		SecretPrefix: os.Getenv("SECRET_PREFIX"),
	}

	var err error
	if cfg.TurnDelay, err = envDuration("SYMPOSIUM_TURN_DELAY", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = envInt("PORT", 8000); err != nil {
		return Config{}, err
	}
	switch cfg.Store {
	case "file", "sqlite", "postgres", "dynamodb":
	default:
		return Config{}, fmt.Errorf("SYMPOSIUM_STORE: unknown store %q (want file, sqlite, postgres or dynamodb)", cfg.Store)
	}
	return cfg, nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".symposium")
	}
	return ".symposium"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: %q is not a valid duration", key, v)
	}
	return d, nil
}
