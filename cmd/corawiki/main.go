package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"corawiki/internal/artifact"
	"corawiki/internal/config"
	"corawiki/internal/llm"
	"corawiki/internal/research"
)

var (
	logger     *zap.Logger
	cfg        *config.Config
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "corawiki",
	Short: "Research an unfamiliar code workspace and write an architecture report",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Load(configPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "corawiki.yaml", "YAML configuration file (optional)")
	rootCmd.AddCommand(researchCmd, checkPythonCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds the Gemini client with logging, retry and rate limiting.
func newClient(ctx context.Context) (llm.Client, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	gc, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	return llm.Wrap(gc,
		llm.Logging(logger),
		llm.Retry(cfg.LLM.MaxRetries, 0),
		llm.RateLimit(cfg.LLM.RPS, cfg.LLM.Burst),
	), nil
}

// openStore returns nil when no artifact backend is configured.
func openStore() (*artifact.CachedStore, error) {
	store, err := artifact.Open(cfg.Artifact, logger)
	if errors.Is(err, artifact.ErrNotConfigured) {
		return nil, nil
	}
	return store, err
}

func newAgent(client llm.Client, store *artifact.CachedStore) *research.Agent {
	opts := []research.AgentOption{research.WithLogger(logger)}
	if store != nil {
		opts = append(opts, research.WithStore(store))
	}
	return research.NewAgent(client, opts...)
}

// baseOptions maps configuration onto research options.
func baseOptions() research.Options {
	th := cfg.Quality
	opts := research.Options{
		MaxSteps:       cfg.Research.MaxSteps,
		MaxTotalTokens: cfg.Research.MaxTotalTokens,
		PythonEnabled:  cfg.Python.Enabled,
		PythonPath:     cfg.Python.Interpreter,
		ExtensionPath:  cfg.Python.ExtensionPath,
		DebugLogDir:    cfg.Research.DebugDir,
		Thresholds:     &th,
		ReadLines:      cfg.Research.ReadLines,
		Concurrency:    cfg.Research.Concurrency,
	}
	opts.OnPythonFailure = recoveryFor(cfg.Python.OnFailure)
	return opts
}

// recoveryFor answers every python failure with a fixed decision.
func recoveryFor(decision string) func(ctx context.Context, tool, failure string) string {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision == "" {
		return nil
	}
	return func(_ context.Context, tool, failure string) string {
		logger.Warn("python tool failed", zap.String("tool", tool), zap.String("error", failure), zap.String("decision", decision))
		return decision
	}
}
