package main

import (
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/cache"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/report"
	"github.com/andresuchdata/paperview/backend-go/internal/service"
)

// reportObjectLimit caps how many catalog rows a report pulls. A monthly
// dump tops out in the low tens of thousands, so this is generous.
const reportObjectLimit = 100000

func newRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show recent ingestion runs from the catalog",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "How many runs to show",
				Value: 20,
			},
		},
		Before: initCatalog,
		After:  closeCatalog,
		Action: func(c *cli.Context) error {
			repo, err := catalogFrom(c)
			if err != nil {
				return err
			}

			runs, err := repo.RecentRuns(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to fetch runs: %w", err)
			}

			fmt.Printf("%-6s %-10s %-30s %8s %8s %8s %s\n",
				"ID", "STATUS", "PREFIX", "TOTAL", "OK", "FAILED", "STARTED")
			for _, r := range runs {
				prefix := r.Prefix
				if prefix == "" {
					prefix = "(all)"
				}
				fmt.Printf("%-6d %-10s %-30s %8d %8d %8d %s\n",
					r.ID, r.Status, prefix, r.TotalObjects, r.IngestedCount, r.FailedCount,
					r.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Export one run's catalog rows to an xlsx workbook",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "run-id",
				Usage:    "Run to export",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output path (defaults to ingest-run-<id>.xlsx)",
			},
		},
		Before: initCatalog,
		After:  closeCatalog,
		Action: func(c *cli.Context) error {
			repo, err := catalogFrom(c)
			if err != nil {
				return err
			}

			runID := c.Int64("run-id")
			run, err := repo.GetRun(c.Context, runID)
			if err != nil {
				return fmt.Errorf("failed to fetch run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %d not found", runID)
			}

			objects, err := repo.ObjectsByRun(c.Context, runID, reportObjectLimit, 0)
			if err != nil {
				return fmt.Errorf("failed to fetch run objects: %w", err)
			}

			out := c.String("out")
			if out == "" {
				out = fmt.Sprintf("ingest-run-%d.xlsx", runID)
			}
			if err := report.WriteRunReport(out, run, objects); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("report for run %d written to %s (%d objects)\n", runID, out, len(objects))
			return nil
		},
	}
}

func newRequeueCommand() *cli.Command {
	return &cli.Command{
		Name:  "requeue",
		Usage: "Re-ingest every object that failed in an earlier run",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "run-id",
				Usage:    "Run whose failures should be retried",
				Required: true,
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
		Action: func(c *cli.Context) error {
			cfg := config.Load()

			repo, err := catalogFrom(c)
			if err != nil {
				return err
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
			run, runErr := svc.RequeueFailed(ctx, c.Int64("run-id"), pipelineConfig(c, cfg))
			if run == nil && runErr == nil {
				fmt.Printf("run %d has no failed objects, nothing to requeue\n", c.Int64("run-id"))
				return nil
			}
			if run != nil {
				fmt.Printf("requeue run %d finished: status=%s total=%d ingested=%d failed=%d elapsed=%s\n",
					run.ID, run.Status, run.TotalObjects, run.IngestedCount, run.FailedCount,
					time.Since(started).Round(time.Millisecond))
			}
			return runErr
		},
	}
}
