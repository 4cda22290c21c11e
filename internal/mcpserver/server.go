package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/symposium/internal/config"
	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/observability"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/realtime"
	"github.com/apresai/symposium/internal/storage"
)

// Version is reported to MCP clients.
var Version = "1.0.0"

// Server is the MCP server for philosopher discussions.
type Server struct {
	cfg       config.Config
	mcp       *server.MCPServer
	tasks     *TaskManager
	store     storage.Store
	publisher *realtime.RedisPublisher
	log       *slog.Logger
}

// New creates and configures the MCP server. ctx is the server's lifetime:
// background discussions are cancelled with it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	awsConfig := func(ctx context.Context) (aws.Config, error) {
		return observability.LoadAWSConfig(ctx, cfg.AWSRegion)
	}

	// Fetch secrets if running in AWS
	if cfg.SecretPrefix != "" {
		awsCfg, err := awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		loadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SecretPrefix, logger)
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	catalog, err := philosopher.LoadCatalog(cfg.PhilosophersFile)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Store,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		TableName:   cfg.TableName,
		AWSConfig:   awsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	router := llm.NewRouter(llm.Keys{
		OpenAI:    cfg.OpenAIAPIKey,
		Anthropic: cfg.AnthropicAPIKey,
		Gemini:    cfg.GeminiAPIKey,
		AWSConfig: awsConfig,
	}, logger)
	profile := llm.ProfileByName(cfg.LLMProfile, logger).WithModel(cfg.Model)

	s := &Server{cfg: cfg, store: store, log: logger}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithTurnDelay(cfg.TurnDelay),
	}
	if cfg.RedisAddr != "" {
		pub, err := realtime.NewRedisPublisher(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Warn("Redis unavailable, state events disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			s.publisher = pub
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}
	if cfg.S3Bucket != "" {
		awsCfg, err := awsConfig(ctx)
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, pipeline.WithExporter(storage.NewExporter(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.CDNBaseURL)))
	}

	runner := pipeline.New(router, store, catalog, profile, opts...)
	s.tasks = NewTaskManager(ctx, runner, logger)
	s.mcp = newMCPServer(NewHandlers(s.tasks, runner, logger))

	logger.Info("MCP server configured",
		"store", cfg.Store, "profile", profile.Name, "philosophers", len(catalog.All()),
		"redis", s.publisher != nil, "export", cfg.S3Bucket != "")
	return s, nil
}

func newMCPServer(h *Handlers) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"symposium",
		Version,
		server.WithToolCapabilities(true),
	)
	h.Register(mcpServer)
	return mcpServer
}

// Start runs the HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("Starting MCP server", "addr", addr)

	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)
	return httpServer.Start(addr)
}

// Close waits for the running discussion to stop, then releases the store and
// the Redis connection.
func (s *Server) Close() error {
	s.tasks.Wait()
	if s.publisher != nil {
		s.publisher.Close()
	}
	return s.store.Close()
}

type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// loadSecrets fetches provider API keys from Secrets Manager and sets them as
// env vars. Keys already in the environment win.
func loadSecrets(ctx context.Context, client secretGetter, prefix string, logger *slog.Logger) {
	for _, envVar := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
		if os.Getenv(envVar) != "" {
			continue
		}
		secretID := prefix + envVar
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
}
