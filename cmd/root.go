package cmd

import (
	"context"
	"fmt"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/config"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/abhisek/assessgen/internal/logging"
	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/service"
	"github.com/abhisek/assessgen/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "assessgen",
	Short: "Generate and score curriculum assessments",
	Long: `assessgen generates multiple-choice, true/false and fill-in-the-blank
assessments for a curriculum context, stores them and scores submitted answers.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./assessgen.yaml)")
	rootCmd.PersistentFlags().String("store", "", "Store driver: sqlite, postgres or memory (overrides config)")
	rootCmd.PersistentFlags().String("db", "", "SQLite path or Postgres DSN (overrides ASSESSGEN_DB and config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and environment, then applies the
// persistent flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if driver, _ := cmd.Flags().GetString("store"); driver != "" {
		cfg.Store.Driver = driver
	}
	dsn, err := resolveDSN(cmd, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	cfg.Store.DSN = dsn

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// resolveDSN returns the --db flag (highest priority), then the
// configured DSN. SQLite paths get their parent directory created.
func resolveDSN(cmd *cobra.Command, sc store.Config) (string, error) {
	dsn := sc.DSN
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		dsn = p
	}
	if dsn != "" && (sc.Driver == "" || sc.Driver == "sqlite") {
		return dsn, store.EnsureDir(dsn)
	}
	return dsn, nil
}

// env is what every subcommand needs, built once per invocation.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store store.Backend
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, log: log, store: st}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("close store", zap.Error(err))
	}
	_ = e.log.Sync()
}

// provider builds the configured generation provider. Calls are
// recorded in the store's call log.
func (e *env) provider(ctx context.Context) (llm.Provider, error) {
	p, err := llm.NewProvider(ctx, e.cfg.LLM, e.store, e.log.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("LLM provider: %w", err)
	}
	return p, nil
}

// service wires the generation pipeline. m may be nil.
func (e *env) service(ctx context.Context, m *metrics.Metrics) (*service.Service, error) {
	p, err := e.provider(ctx)
	if err != nil {
		return nil, err
	}
	gen := assessment.NewGenerator(p, e.cfg.Generation, e.log.Named("generator"))
	return service.New(gen, e.store, m, e.log.Named("service")), nil
}
