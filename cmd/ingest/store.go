package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/cache"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/pipeline"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

func storeBackendFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "backend",
		Usage:   "Object store backend (s3 or local)",
		EnvVars: []string{"STORE_BACKEND"},
	}
}

func localRootFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "local-root",
		Usage:   "Root directory when using the local backend",
		EnvVars: []string{"STORE_LOCAL_ROOT"},
	}
}

// buildStore picks the object store backend. Credentials and bucket
// come from the environment config, flags only override the backend
// selection so a local dump can be ingested without touching .env.
func buildStore(c *cli.Context, cfg *config.Config) (storage.Store, error) {
	backend := c.String("backend")
	if backend == "" {
		backend = cfg.Store.Backend
	}

	switch backend {
	case "local":
		root := c.String("local-root")
		if root == "" {
			root = cfg.Store.LocalRoot
		}
		return storage.NewLocalStore(root)
	case "s3", "":
		return storage.NewS3Store(storage.S3Config{
			Endpoint:      cfg.Store.Endpoint,
			AccessKey:     cfg.Store.AccessKey,
			SecretKey:     cfg.Store.SecretKey,
			Bucket:        cfg.Store.Bucket,
			Region:        cfg.Store.Region,
			UseSSL:        cfg.Store.UseSSL,
			RequesterPays: cfg.Store.RequesterPays,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newLsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "List archive objects under a prefix without downloading them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "prefix",
				Usage:   "Key prefix to list",
				EnvVars: []string{"INGEST_PREFIX"},
			},
			&cli.IntFlag{
				Name:  "max",
				Usage: "Stop after this many objects (0 for all)",
			},
			storeBackendFlag(),
			localRootFlag(),
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			store, err := buildStore(c, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c)
			defer stop()

			listing := store.List(ctx, c.String("prefix"))
			defer listing.Close()

			max := c.Int("max")
			count := 0
			for listing.Next() {
				d := listing.Descriptor()
				fmt.Printf("%12d  %s  %s\n", d.Size, d.LastModified.Format(time.RFC3339), d.Key)
				count++
				if max > 0 && count >= max {
					break
				}
			}
			if err := listing.Err(); err != nil {
				return err
			}
			fmt.Printf("%d objects\n", count)
			return nil
		},
	}
}

func newSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove scratch directories left behind by interrupted runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scratch-dir",
				Usage:   "Directory holding per-unit scratch space",
				EnvVars: []string{"INGEST_SCRATCH_DIR"},
			},
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Only remove scratch dirs older than this (default from INGEST_STALE_AFTER_MIN)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()

			root := c.String("scratch-dir")
			if root == "" {
				root = cfg.Ingest.ScratchDir
			}
			olderThan := c.Duration("older-than")
			if olderThan <= 0 {
				olderThan = time.Duration(cfg.Ingest.StaleAfterMin) * time.Minute
			}

			ctx, stop := signalContext(c)
			defer stop()

			res := pipeline.CleanStale(ctx, root, olderThan)
			fmt.Printf("removed %d stale scratch dirs (%d errors)\n", len(res.Removed), len(res.Errors))
			for _, cleanupErr := range res.Errors {
				fmt.Printf("  failed: %s: %v\n", cleanupErr.Path, cleanupErr.Err)
			}
			return nil
		},
	}
}

func newCacheFlushCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache-flush",
		Usage: "Drop every cached manifest for the configured bucket",
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			if !cfg.Cache.Enabled {
				return fmt.Errorf("manifest cache is not enabled")
			}

			manifests, err := cache.NewManifestCache(cfg.Cache)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c)
			defer stop()

			if err := manifests.InvalidateBucket(ctx, cfg.Store.Bucket); err != nil {
				return fmt.Errorf("failed to flush manifest cache: %w", err)
			}
			fmt.Printf("flushed cached manifests for bucket %s\n", cfg.Store.Bucket)
			return nil
		},
	}
}
