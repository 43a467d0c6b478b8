// Package main provides the citecheck CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/factchecker/citecheck/internal/cache"
	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/database"
	"github.com/factchecker/citecheck/internal/llm"
	"github.com/factchecker/citecheck/internal/metrics"
	"github.com/factchecker/citecheck/internal/registry"
	"github.com/factchecker/citecheck/internal/scoring"
	"github.com/factchecker/citecheck/internal/search"
	"github.com/factchecker/citecheck/internal/verify"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

func main() {
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "citecheck",
	Short: "Verify bibliographic references against Crossref and the web",
	Long: `citecheck checks whether bibliographic references point at real publications.

Each reference is looked up in the Crossref registry by DOI or metadata and,
failing that, scored against web search evidence. Verdicts are best-effort:
a reference that is not found is not proven to be fabricated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.Version = Version
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// app bundles the wired components shared by the serve and verify commands.
type app struct {
	store   *database.SQLiteStore
	cache   *cache.Cache
	metrics *metrics.Metrics
	engine  *verify.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := database.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider, err := llm.NewProvider(&cfg.LLM)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	var resultCache *cache.Cache
	if cfg.Cache.Enabled {
		resultCache = cache.New(cfg.Cache, store)
		if n, err := resultCache.Purge(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to purge expired cache entries")
		} else if n > 0 {
			log.Info().Int64("removed", n).Msg("Purged expired cache entries")
		}
	}

	m := metrics.New()

	deps := verify.Dependencies{
		Extractor: verify.NewLLMExtractor(provider),
		Registry:  registry.NewCrossrefClient(cfg.Registry),
		Scorer:    scoring.NewScorerFromConfig(cfg.Scoring),
		Cache:     resultCache,
		Store:     store,
		Metrics:   m,
	}
	if searcher := search.NewFromConfig(cfg.Search); searcher.HasClients() {
		deps.Searcher = searcher
		log.Info().Strs("sources", searcher.Names()).Msg("Web search sources enabled")
	}

	log.Info().Str("provider", provider.Name()).Msg("Extraction provider ready")

	return &app{
		store:   store,
		cache:   resultCache,
		metrics: m,
		engine:  verify.NewEngine(cfg, deps),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
