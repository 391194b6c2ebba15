package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/cache"
	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/pipeline"
	"github.com/andresuchdata/paperview/backend-go/internal/service"
	"github.com/andresuchdata/paperview/backend-go/internal/types"
	"github.com/andresuchdata/paperview/backend-go/pkg/logger"
	zlog "github.com/rs/zerolog/log"
)

func initCatalog(c *cli.Context) error {
	cfg := config.Load()

	db, err := catalog.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Store the database handle in the context for the command
	c.Context = context.WithValue(c.Context, types.DBKey, db)
	return nil
}

func closeCatalog(c *cli.Context) error {
	if db, ok := c.Context.Value(types.DBKey).(*catalog.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func catalogFrom(c *cli.Context) (*catalog.Repository, error) {
	db, ok := c.Context.Value(types.DBKey).(*catalog.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database is not initialized")
	}
	return catalog.NewRepository(db), nil
}

// signalContext cancels the command's context on SIGINT/SIGTERM so a
// running ingestion winds down instead of being killed mid-unit.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "ingest",
		Usage: "Ingest bulk archive dumps from the remote object store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			if lvl := c.String("log-level"); lvl != "" {
				logger.Setup(lvl)
			}
			return nil
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newLsCommand(),
			newSweepCommand(),
			newCacheFlushCommand(),
			newRunsCommand(),
			newReportCommand(),
			newRequeueCommand(),
			newBiorxivDetailsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "List, download, extract and catalog every archive under a prefix",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "prefix",
				Usage:   "Key prefix to ingest, empty for the whole bucket",
				EnvVars: []string{"INGEST_PREFIX"},
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of archive units processed in parallel",
				EnvVars: []string{"INGEST_CONCURRENCY"},
			},
			&cli.StringFlag{
				Name:    "scratch-dir",
				Usage:   "Directory for per-unit scratch space",
				EnvVars: []string{"INGEST_SCRATCH_DIR"},
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Download attempts per object before giving up",
				EnvVars: []string{"INGEST_MAX_ATTEMPTS"},
			},
			storeBackendFlag(),
			localRootFlag(),
		},
		Before: initCatalog,
		After:  closeCatalog,
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	cfg := config.Load()

	repo, err := catalogFrom(c)
	if err != nil {
		return err
	}

	schemaCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	if err := repo.EnsureSchema(schemaCtx); err != nil {
		return fmt.Errorf("failed to ensure catalog schema: %w", err)
	}

	store, err := buildStore(c, cfg)
	if err != nil {
		return err
	}

	manifests, err := cache.NewManifestCache(cfg.Cache)
	if err != nil {
		zlog.Warn().Err(err).Msg("manifest cache unavailable, continuing without it")
		manifests = cache.NewNoopManifestCache()
	}

	svc := service.NewIngestService(store, repo, manifests, cfg.Store.Bucket)

	ctx, stop := signalContext(c)
	defer stop()

	started := time.Now()
	run, runErr := svc.RunIngest(ctx, pipelineConfig(c, cfg))
	if run != nil {
		fmt.Printf("run %d finished: status=%s total=%d ingested=%d failed=%d elapsed=%s\n",
			run.ID, run.Status, run.TotalObjects, run.IngestedCount, run.FailedCount,
			time.Since(started).Round(time.Millisecond))
	}
	return runErr
}

func pipelineConfig(c *cli.Context, cfg *config.Config) pipeline.Config {
	concurrency := c.Int("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.Ingest.Concurrency
	}
	scratch := c.String("scratch-dir")
	if scratch == "" {
		scratch = cfg.Ingest.ScratchDir
	}
	maxAttempts := c.Int("max-attempts")
	if maxAttempts <= 0 {
		maxAttempts = cfg.Ingest.MaxAttempts
	}

	return pipeline.Config{
		Prefix:      c.String("prefix"),
		Concurrency: concurrency,
		ScratchRoot: scratch,
		Retry: pipeline.RetryPolicy{
			MaxAttempts:    maxAttempts,
			InitialBackoff: time.Duration(cfg.Ingest.RetryBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Ingest.MaxBackoffMS) * time.Millisecond,
			Multiplier:     2,
		},
	}
}
