// Command memoryd runs the long-term memory engine as an MCP stdio server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/recallkit/memoryd/config"
	memlogger "github.com/recallkit/memoryd/logger"
	"github.com/recallkit/memoryd/memory"
	"github.com/recallkit/memoryd/memory/ollama"
	"github.com/recallkit/memoryd/memory/openai"
	"github.com/recallkit/memoryd/migrations"
	"github.com/recallkit/memoryd/server"
	"github.com/recallkit/memoryd/session"
	"github.com/recallkit/memoryd/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     = flag.String("config", config.DefaultPath(), "Path to YAML config file")
		dbPath         = flag.String("db", "", "Path to SQLite database file (overrides config)")
		migrationsPath = flag.String("migrations", "./migrations", "Path to migration files")
		logFile        = flag.String("logfile", "memoryd.log", "Path to log file. Stdio carries the protocol, so logs never go to stdout")
		pretty         = flag.Bool("pretty", false, "Use pretty console output on stderr (only valid when logfile is empty)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := memlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Str("config", *configPath).
		Str("db", cfg.Database.Path).
		Str("embedder", cfg.Embedder.Provider).
		Msg("memoryd starting")

	db, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, *migrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	index, err := memory.NewIndex(db, cfg.Embedder.Dimensions(), logger)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	manager, err := memory.NewManager(index, embedder, memory.Config{
		DedupThreshold:     cfg.Dedup.DistanceThreshold,
		RetrievalThreshold: cfg.Retrieval.DistanceThreshold,
		DefaultLimit:       cfg.Retrieval.DefaultLimit,
		MaxLimit:           cfg.Retrieval.MaxLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create memory manager: %w", err)
	}

	registry := tools.NewRegistry(logger)
	registry.RegisterMemoryTools(manager)

	if cfg.Extraction.Enabled {
		extractor, err := memory.NewExtractor(cfg.Extraction.APIKey, cfg.Extraction.Model, logger)
		if err != nil {
			return fmt.Errorf("failed to create extractor: %w", err)
		}
		registry.RegisterExtractionTool(manager, extractor)
	}

	defaultScope := session.Scope{
		UserID:   cfg.Session.DefaultUserID,
		ThreadID: cfg.Session.DefaultThreadID,
	}
	srv, err := server.New(registry, defaultScope, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sweeper := startRetention(cfg, manager, logger)
	if sweeper != nil {
		defer sweeper.Stop()
	}

	// ServeStdio blocks until the client disconnects or we get a signal.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeStdio()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info().Msg("Client disconnected, shutting down")
		return nil
	}
}

// buildEmbedder constructs the embedding provider named by the config.
func buildEmbedder(cfg *config.Config) (memory.Embedder, error) {
	switch cfg.Embedder.Provider {
	case "openai":
		oc := cfg.Embedder.OpenAI
		return openai.NewEmbedder(oc.APIKey, oc.BaseURL, oc.Model, oc.Dimensions)
	default:
		oc := cfg.Embedder.Ollama
		return ollama.NewEmbedder(oc.Host, ollama.Model(oc.Model), oc.Dimensions)
	}
}

// startRetention schedules the periodic retention sweep when enabled.
func startRetention(cfg *config.Config, manager *memory.Manager, logger zerolog.Logger) *cron.Cron {
	if !cfg.Retention.Enabled {
		return nil
	}

	policy := memory.RetentionPolicy{
		MaxAge: time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
		Types:  []memory.MemoryType{memory.MemoryTypeEpisodic},
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := manager.Sweep(ctx, policy); err != nil {
			logger.Error().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		logger.Error().Err(err).Str("schedule", cfg.Retention.Schedule).Msg("Failed to schedule retention sweep, retention disabled")
		return nil
	}

	c.Start()
	logger.Info().
		Str("schedule", cfg.Retention.Schedule).
		Int("max_age_days", cfg.Retention.MaxAgeDays).
		Msg("Retention sweep scheduled")
	return c
}
