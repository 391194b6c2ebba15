package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository handles database operations for ingestion tracking
type Repository struct {
	db *DB
}

// NewRepository creates a new catalog repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the catalog tables when they do not exist yet
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ingest_runs (
			id             BIGSERIAL PRIMARY KEY,
			bucket         TEXT NOT NULL,
			prefix         TEXT NOT NULL DEFAULT '',
			concurrency    INT NOT NULL,
			status         TEXT NOT NULL,
			total_objects  INT NOT NULL DEFAULT 0,
			ingested_count INT NOT NULL DEFAULT 0,
			failed_count   INT NOT NULL DEFAULT 0,
			started_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ,
			error_message  TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS ingest_objects (
			id            BIGSERIAL PRIMARY KEY,
			run_id        BIGINT NOT NULL REFERENCES ingest_runs(id) ON DELETE CASCADE,
			object_key    TEXT NOT NULL,
			size          BIGINT NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			stage         TEXT NOT NULL DEFAULT '',
			title         TEXT,
			member_count  INT NOT NULL DEFAULT 0,
			member_bytes  BIGINT NOT NULL DEFAULT 0,
			attempts      INT NOT NULL DEFAULT 0,
			elapsed_ms    BIGINT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			processed_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ingest_objects_run ON ingest_objects(run_id);
		CREATE INDEX IF NOT EXISTS idx_ingest_objects_status ON ingest_objects(run_id, status);
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
}

// CreateRun creates a new ingestion run record
func (r *Repository) CreateRun(ctx context.Context, run *IngestRun) error {
	query := `
		INSERT INTO ingest_runs (
			bucket, prefix, concurrency, status, started_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		run.Bucket, run.Prefix, run.Concurrency, run.Status, run.StartedAt,
	).Scan(&run.ID)
}

// FinishRun records the terminal state of a run
func (r *Repository) FinishRun(ctx context.Context, run *IngestRun) error {
	query := `
		UPDATE ingest_runs
		SET status = $1, total_objects = $2, ingested_count = $3,
		    failed_count = $4, completed_at = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalObjects, run.IngestedCount, run.FailedCount,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)

	return err
}

// RecordObject persists the outcome of one archive unit
func (r *Repository) RecordObject(ctx context.Context, obj *IngestObject) error {
	query := `
		INSERT INTO ingest_objects (
			run_id, object_key, size, status, stage, title,
			member_count, member_bytes, attempts, elapsed_ms,
			error_message, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		obj.RunID, obj.ObjectKey, obj.Size, obj.Status, obj.Stage, obj.Title,
		obj.MemberCount, obj.MemberBytes, obj.Attempts, obj.ElapsedMS,
		obj.ErrorMessage, obj.ProcessedAt,
	).Scan(&obj.ID)
}

// GetRun retrieves a run by ID, nil when it does not exist
func (r *Repository) GetRun(ctx context.Context, id int64) (*IngestRun, error) {
	query := `
		SELECT id, bucket, prefix, concurrency, status, total_objects,
		       ingested_count, failed_count, started_at, completed_at, error_message
		FROM ingest_runs
		WHERE id = $1
	`

	run := &IngestRun{}
	err := r.db.GetContext(ctx, run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// RecentRuns retrieves the most recently started runs
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	query := `
		SELECT id, bucket, prefix, concurrency, status, total_objects,
		       ingested_count, failed_count, started_at, completed_at, error_message
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	runs := []IngestRun{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// ObjectsByRun retrieves a run's objects in ingestion order
func (r *Repository) ObjectsByRun(ctx context.Context, runID int64, limit, offset int) ([]IngestObject, error) {
	query := `
		SELECT id, run_id, object_key, size, status, stage, title,
		       member_count, member_bytes, attempts, elapsed_ms,
		       error_message, processed_at
		FROM ingest_objects
		WHERE run_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`

	objects := []IngestObject{}
	if err := r.db.SelectContext(ctx, &objects, query, runID, limit, offset); err != nil {
		return nil, err
	}
	return objects, nil
}

// FailuresByRun retrieves the failed objects of a run
func (r *Repository) FailuresByRun(ctx context.Context, runID int64) ([]IngestObject, error) {
	query := `
		SELECT id, run_id, object_key, size, status, stage, title,
		       member_count, member_bytes, attempts, elapsed_ms,
		       error_message, processed_at
		FROM ingest_objects
		WHERE run_id = $1 AND status = $2
		ORDER BY id
	`

	objects := []IngestObject{}
	if err := r.db.SelectContext(ctx, &objects, query, runID, ObjectStatusFailed); err != nil {
		return nil, err
	}
	return objects, nil
}

// FailedKeys retrieves the distinct keys that failed in a run, for requeueing
func (r *Repository) FailedKeys(ctx context.Context, runID int64) ([]string, error) {
	query := `
		SELECT DISTINCT object_key
		FROM ingest_objects
		WHERE run_id = $1 AND status = $2
		ORDER BY object_key
	`

	keys := []string{}
	if err := r.db.SelectContext(ctx, &keys, query, runID, ObjectStatusFailed); err != nil {
		return nil, err
	}
	return keys, nil
}

// Stats aggregates catalog activity since the given time
func (r *Repository) Stats(ctx context.Context, since time.Time) (*IngestStats, error) {
	query := `
		SELECT
			COUNT(DISTINCT r.id) AS runs,
			COUNT(o.id) FILTER (WHERE o.status = $2) AS objects_ingested,
			COUNT(o.id) FILTER (WHERE o.status = $3) AS objects_failed,
			COALESCE(SUM(o.member_bytes) FILTER (WHERE o.status = $2), 0) AS member_bytes,
			MAX(r.completed_at) AS last_completed_at
		FROM ingest_runs r
		LEFT JOIN ingest_objects o ON o.run_id = r.id
		WHERE r.started_at >= $1
	`

	stats := &IngestStats{}
	err := r.db.GetContext(ctx, stats, query, since, ObjectStatusIngested, ObjectStatusFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return &IngestStats{}, nil
	}
	if err != nil {
		return nil, err
	}

	return stats, nil
}
