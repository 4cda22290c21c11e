package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/apresai/symposium/internal/config"
	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/observability"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/realtime"
	"github.com/apresai/symposium/internal/storage"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "symposium",
	Short:         "Stage AI philosopher discussions and turn them into short video scripts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "symposium %s\n", Version)
	},
}

var (
	flagVerbose          bool
	flagProfile          string
	flagModel            string
	flagStore            string
	flagDataDir          string
	flagPhilosophersFile string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
	pf.StringVar(&flagProfile, "profile", "", "LLM profile: production, balanced or debug (overrides LLM_PROFILE)")
	pf.StringVarP(&flagModel, "model", "m", "", "Use one model for every stage (overrides SYMPOSIUM_MODEL)")
	pf.StringVar(&flagStore, "store", "", "Storage backend: file, sqlite, postgres or dynamodb (overrides SYMPOSIUM_STORE)")
	pf.StringVar(&flagDataDir, "data-dir", "", "Directory for the file and sqlite stores (overrides SYMPOSIUM_DATA_DIR)")
	pf.StringVar(&flagPhilosophersFile, "philosophers-file", "", "YAML persona catalog replacing the built-in set")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// env is the per-invocation state built by setup.
type env struct {
	cfg     config.Config
	log     *slog.Logger
	catalog *philosopher.Catalog
	tp      *sdktrace.TracerProvider

	store     storage.Store
	publisher *realtime.RedisPublisher
}

var current *env

func setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	level := observability.ParseLevel(cfg.LogLevel, slog.LevelInfo)
	if !flagVerbose {
		level = slog.LevelWarn
	}
	log := observability.NewLogger(os.Stderr, level, false)
	slog.SetDefault(log)

	tp, err := observability.InitTracer(ctx, "symposium", Version)
	if err != nil {
		return err
	}

	catalog, err := philosopher.LoadCatalog(cfg.PhilosophersFile)
	if err != nil {
		return err
	}
	current = &env{cfg: cfg, log: log, catalog: catalog, tp: tp}
	return nil
}

func applyFlags(cfg *config.Config) {
	if flagProfile != "" {
		cfg.LLMProfile = flagProfile
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagStore != "" {
		cfg.Store = flagStore
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
		cfg.SQLitePath = filepath.Join(flagDataDir, "symposium.db")
	}
	if flagPhilosophersFile != "" {
		cfg.PhilosophersFile = flagPhilosophersFile
	}
}

func teardown() {
	if current == nil {
		return
	}
	if current.store != nil {
		_ = current.store.Close()
	}
	if current.publisher != nil {
		_ = current.publisher.Close()
	}
	if current.tp != nil {
		_ = current.tp.Shutdown(context.Background())
	}
	current = nil
}

func (e *env) awsConfig(ctx context.Context) (aws.Config, error) {
	return observability.LoadAWSConfig(ctx, e.cfg.AWSRegion)
}

func (e *env) openStore(ctx context.Context) (storage.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	s, err := storage.Open(ctx, storage.Options{
		Backend:     e.cfg.Store,
		DataDir:     e.cfg.DataDir,
		SQLitePath:  e.cfg.SQLitePath,
		DatabaseURL: e.cfg.DatabaseURL,
		TableName:   e.cfg.TableName,
		AWSConfig:   e.awsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", e.cfg.Store, err)
	}
	e.store = s
	return s, nil
}

func (e *env) profile() llm.Profile {
	return llm.ProfileByName(e.cfg.LLMProfile, e.log).WithModel(e.cfg.Model)
}

// runner wires the LLM router, store and optional Redis and S3 integrations.
func (e *env) runner(ctx context.Context, opts ...pipeline.Option) (*pipeline.Runner, error) {
	store, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	router := llm.NewRouter(llm.Keys{
		OpenAI:    e.cfg.OpenAIAPIKey,
		Anthropic: e.cfg.AnthropicAPIKey,
		Gemini:    e.cfg.GeminiAPIKey,
		AWSConfig: e.awsConfig,
	}, e.log)

	base := []pipeline.Option{
		pipeline.WithLogger(e.log),
		pipeline.WithTurnDelay(e.cfg.TurnDelay),
	}
	if e.cfg.RedisAddr != "" {
		pub, err := realtime.NewRedisPublisher(ctx, e.cfg.RedisAddr, e.log)
		if err != nil {
			e.log.Warn("Redis unavailable, state events disabled", "addr", e.cfg.RedisAddr, "error", err)
		} else {
			e.publisher = pub
			base = append(base, pipeline.WithPublisher(pub))
		}
	}
	if e.cfg.S3Bucket != "" {
		awsCfg, err := e.awsConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for S3 export: %w", err)
		}
		base = append(base, pipeline.WithExporter(storage.NewExporter(s3.NewFromConfig(awsCfg), e.cfg.S3Bucket, e.cfg.CDNBaseURL)))
	}
	return pipeline.New(router, store, e.catalog, e.profile(), append(base, opts...)...), nil
}

// checkAPIKeys reports missing provider keys for the models a profile will call.
func checkAPIKeys(cfg config.Config, p llm.Profile) error {
	needed := map[string]bool{}
	for _, name := range []string{p.Philosophical, p.Summarization, p.Director} {
		m, err := llm.Lookup(name)
		if err != nil {
			return err
		}
		switch m.Provider {
		case llm.ProviderOpenAI:
			if cfg.OpenAIAPIKey == "" {
				needed["OPENAI_API_KEY"] = true
			}
		case llm.ProviderAnthropic:
			if cfg.AnthropicAPIKey == "" {
				needed["ANTHROPIC_API_KEY"] = true
			}
		case llm.ProviderGemini:
			if cfg.GeminiAPIKey == "" {
				needed["GEMINI_API_KEY"] = true
			}
		}
	}
	if len(needed) == 0 {
		return nil
	}
	var missing []string
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
		if needed[k] {
			missing = append(missing, k)
		}
	}
	return fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
}
