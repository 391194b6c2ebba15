package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/paperview/backend-go/internal/cache"
	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
	"github.com/andresuchdata/paperview/backend-go/internal/pipeline"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

// Catalog is the bookkeeping surface the services need from the catalog
// repository.
type Catalog interface {
	CreateRun(ctx context.Context, run *catalog.IngestRun) error
	FinishRun(ctx context.Context, run *catalog.IngestRun) error
	RecordObject(ctx context.Context, obj *catalog.IngestObject) error
	GetRun(ctx context.Context, id int64) (*catalog.IngestRun, error)
	RecentRuns(ctx context.Context, limit int) ([]catalog.IngestRun, error)
	ObjectsByRun(ctx context.Context, runID int64, limit, offset int) ([]catalog.IngestObject, error)
	FailuresByRun(ctx context.Context, runID int64) ([]catalog.IngestObject, error)
	FailedKeys(ctx context.Context, runID int64) ([]string, error)
	Stats(ctx context.Context, since time.Time) (*catalog.IngestStats, error)
}

// IngestService drives pipeline runs and records every outcome in the
// catalog, caching parsed manifests along the way.
type IngestService struct {
	store     storage.Store
	repo      Catalog
	manifests cache.ManifestCache
	bucket    string
}

func NewIngestService(store storage.Store, repo Catalog, manifests cache.ManifestCache, bucket string) *IngestService {
	if manifests == nil {
		manifests = cache.NewNoopManifestCache()
	}
	return &IngestService{store: store, repo: repo, manifests: manifests, bucket: bucket}
}

// RunIngest executes one ingestion run over cfg.Prefix. Per-object
// failures are recorded and never abort the run; the returned error is
// the run-level one (listing failure or cancellation), if any.
func (s *IngestService) RunIngest(ctx context.Context, cfg pipeline.Config) (*catalog.IngestRun, error) {
	orch, err := pipeline.NewOrchestrator(s.store, cfg)
	if err != nil {
		return nil, err
	}

	run := &catalog.IngestRun{
		Bucket:      s.bucket,
		Prefix:      cfg.Prefix,
		Concurrency: cfg.Concurrency,
		Status:      catalog.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("could not create run record: %w", err)
	}

	pr := orch.Start(ctx)
	s.consume(ctx, run, pr.Results())

	return s.finishRun(run, pr.Err())
}

// RequeueFailed re-ingests every key that failed in a previous run as a
// fresh run. Each key is its own unique prefix, so the pipeline fetches
// exactly the failed objects again.
func (s *IngestService) RequeueFailed(ctx context.Context, runID int64, base pipeline.Config) (*catalog.IngestRun, error) {
	keys, err := s.repo.FailedKeys(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("could not load failed keys for run %d: %w", runID, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	run := &catalog.IngestRun{
		Bucket:      s.bucket,
		Prefix:      fmt.Sprintf("requeue:%d", runID),
		Concurrency: base.Concurrency,
		Status:      catalog.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("could not create run record: %w", err)
	}

	log.Info().Int64("source_run", runID).Int("keys", len(keys)).Msg("ingest: requeueing failed objects")

	var runErr error
	for _, key := range keys {
		// Drop any cached manifest before re-deriving it from the store.
		if err := s.manifests.Invalidate(ctx, s.bucket, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ingest: manifest cache invalidate failed")
		}

		cfg := base
		cfg.Prefix = key

		orch, err := pipeline.NewOrchestrator(s.store, cfg)
		if err != nil {
			runErr = err
			break
		}
		pr := orch.Start(ctx)
		s.consume(ctx, run, pr.Results())
		if err := pr.Err(); err != nil {
			runErr = err
			break
		}
	}

	return s.finishRun(run, runErr)
}

// consume drains a result stream into the catalog. It always reads to
// the end of the channel so the pipeline can release its resources.
func (s *IngestService) consume(ctx context.Context, run *catalog.IngestRun, results <-chan pipeline.Result) {
	for res := range results {
		obj := s.toIngestObject(run.ID, res)

		if res.Failed() {
			run.FailedCount++
			log.Warn().
				Err(res.Err).
				Str("key", res.Descriptor.Key).
				Str("stage", string(res.Stage)).
				Int("attempts", res.Attempts).
				Msg("ingest: unit failed")
		} else {
			run.IngestedCount++
			if err := s.manifests.Set(ctx, s.bucket, res.Descriptor.Key, res.Manifest); err != nil {
				log.Warn().Err(err).Str("key", res.Descriptor.Key).Msg("ingest: manifest cache set failed")
			}
		}

		if err := s.repo.RecordObject(ctx, obj); err != nil {
			log.Error().Err(err).Str("key", obj.ObjectKey).Msg("ingest: could not record object")
		}
	}
}

// finishRun stamps the terminal state. Bookkeeping uses a detached
// context so a cancelled run still gets recorded.
func (s *IngestService) finishRun(run *catalog.IngestRun, runErr error) (*catalog.IngestRun, error) {
	run.TotalObjects = run.IngestedCount + run.FailedCount
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	switch {
	case runErr == nil:
		run.Status = catalog.RunStatusCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = catalog.RunStatusCancelled
		run.ErrorMessage = runErr.Error()
	default:
		run.Status = catalog.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}

	finCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.FinishRun(finCtx, run); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("ingest: could not finalize run record")
	}

	return run, runErr
}

func (s *IngestService) toIngestObject(runID int64, res pipeline.Result) *catalog.IngestObject {
	obj := &catalog.IngestObject{
		RunID:       runID,
		ObjectKey:   res.Descriptor.Key,
		Size:        res.Descriptor.Size,
		Attempts:    res.Attempts,
		ElapsedMS:   res.Elapsed.Milliseconds(),
		ProcessedAt: time.Now().UTC(),
	}

	if res.Failed() {
		obj.Status = catalog.ObjectStatusFailed
		obj.Stage = string(res.Stage)
		obj.ErrorMessage = res.Err.Error()
		return obj
	}

	obj.Status = catalog.ObjectStatusIngested
	obj.Title = res.Manifest.Title
	obj.MemberCount = len(res.Manifest.Members)
	for _, m := range res.Manifest.Members {
		obj.MemberBytes += int64(m.Size)
	}
	return obj
}
