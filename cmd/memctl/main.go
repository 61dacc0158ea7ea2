// Command memctl is an admin CLI for the memory store. It opens the
// database directly rather than going through the MCP server, so it works
// against a store no daemon is serving.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/recallkit/memoryd/config"
	memlogger "github.com/recallkit/memoryd/logger"
	"github.com/recallkit/memoryd/memory"
	"github.com/recallkit/memoryd/memory/ollama"
	"github.com/recallkit/memoryd/memory/openai"
	"github.com/recallkit/memoryd/migrations"
)

const usage = `Usage: memctl [flags] <command> [args]

Commands:
  store <user_id> <memory_type> <content>   Store a memory
  retrieve <user_id> <memory_type> <query>  Retrieve similar memories
  delete <user_id> <memory_id>              Delete a memory by ID
  sweep <max_age_days>                      Delete episodic memories older than N days

Flags:
`

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
		limit          = flag.Int("limit", 0, "Maximum results for retrieve (default from config)")
		metadataJSON   = flag.String("metadata", "", "Metadata for store as a JSON object of strings")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("no command given")
	}

	// Admin output goes to stdout; keep the log quiet unless LOG_LEVEL says
	// otherwise.
	logger, err := memlogger.InitWithOptions("", false)
	if err != nil {
		return err
	}
	logger = logger.Level(zerolog.WarnLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

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
		return err
	}
	manager, err := memory.NewManager(index, embedder, memory.Config{
		DedupThreshold:     cfg.Dedup.DistanceThreshold,
		RetrievalThreshold: cfg.Retrieval.DistanceThreshold,
		DefaultLimit:       cfg.Retrieval.DefaultLimit,
		MaxLimit:           cfg.Retrieval.MaxLimit,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch args[0] {
	case "store":
		if len(args) != 4 {
			return fmt.Errorf("usage: memctl store <user_id> <memory_type> <content>")
		}
		return cmdStore(ctx, manager, args[1], args[2], args[3], *metadataJSON)
	case "retrieve":
		if len(args) != 4 {
			return fmt.Errorf("usage: memctl retrieve <user_id> <memory_type> <query>")
		}
		return cmdRetrieve(ctx, manager, args[1], args[2], args[3], *limit)
	case "delete":
		if len(args) != 3 {
			return fmt.Errorf("usage: memctl delete <user_id> <memory_id>")
		}
		return cmdDelete(ctx, manager, args[1], args[2])
	case "sweep":
		if len(args) != 2 {
			return fmt.Errorf("usage: memctl sweep <max_age_days>")
		}
		return cmdSweep(ctx, manager, args[1])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func cmdStore(ctx context.Context, manager *memory.Manager, userID, memType, content, metadataJSON string) error {
	typ, err := memory.ParseMemoryType(memType)
	if err != nil {
		return err
	}

	var metadata map[string]string
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}

	outcome, err := manager.StoreMemory(ctx, memory.StoreRequest{
		UserID:     userID,
		MemoryType: typ,
		Content:    content,
		Metadata:   metadata,
	})
	if err != nil {
		return err
	}

	if outcome.Status == memory.StoreStatusSkippedDuplicate {
		fmt.Println("Skipped: a similar memory already exists.")
		return nil
	}
	fmt.Printf("Stored %s memory %s.\n", outcome.Record.MemoryType, outcome.Record.MemoryID)
	return nil
}

func cmdRetrieve(ctx context.Context, manager *memory.Manager, userID, memType, query string, limit int) error {
	typ, err := memory.ParseMemoryType(memType)
	if err != nil {
		return err
	}

	records, err := manager.RetrieveMemories(ctx, memory.RetrievalQuery{
		Query:       query,
		UserID:      userID,
		MemoryTypes: []memory.MemoryType{typ},
		Limit:       limit,
	})
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No relevant memories found.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  [%s] %s\n",
			rec.MemoryID, rec.CreatedAt.Format(time.RFC3339), rec.MemoryType, rec.Content)
	}
	return nil
}

func cmdDelete(ctx context.Context, manager *memory.Manager, userID, memoryID string) error {
	deleted, err := manager.DeleteMemory(ctx, memoryID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Println("Not found: no memory with that ID belongs to the user.")
		return nil
	}
	fmt.Println("Deleted.")
	return nil
}

func cmdSweep(ctx context.Context, manager *memory.Manager, daysArg string) error {
	var days int
	if _, err := fmt.Sscanf(daysArg, "%d", &days); err != nil || days <= 0 {
		return fmt.Errorf("max_age_days must be a positive integer")
	}

	removed, err := manager.Sweep(ctx, memory.RetentionPolicy{
		MaxAge: time.Duration(days) * 24 * time.Hour,
		Types:  []memory.MemoryType{memory.MemoryTypeEpisodic},
	})
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired memories.\n", removed)
	return nil
}

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
