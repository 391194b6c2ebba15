package catalog

import "time"

// RunStatus represents the current state of an ingestion run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ObjectStatus represents the terminal state of a single archive unit
type ObjectStatus string

const (
	ObjectStatusIngested ObjectStatus = "ingested"
	ObjectStatusFailed   ObjectStatus = "failed"
)

// IngestRun tracks a single execution of the ingestion pipeline
type IngestRun struct {
	ID            int64      `db:"id" json:"id"`
	Bucket        string     `db:"bucket" json:"bucket"`
	Prefix        string     `db:"prefix" json:"prefix"`
	Concurrency   int        `db:"concurrency" json:"concurrency"`
	Status        RunStatus  `db:"status" json:"status"`
	TotalObjects  int        `db:"total_objects" json:"total_objects"`
	IngestedCount int        `db:"ingested_count" json:"ingested_count"`
	FailedCount   int        `db:"failed_count" json:"failed_count"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage  string     `db:"error_message" json:"error_message,omitempty"`
}

// IngestObject tracks the outcome of one archive unit within a run
type IngestObject struct {
	ID           int64        `db:"id" json:"id"`
	RunID        int64        `db:"run_id" json:"run_id"`
	ObjectKey    string       `db:"object_key" json:"object_key"`
	Size         int64        `db:"size" json:"size"`
	Status       ObjectStatus `db:"status" json:"status"`
	Stage        string       `db:"stage" json:"stage,omitempty"` // failed stage, empty on success
	Title        *string      `db:"title" json:"title,omitempty"` // nullable, manifests may omit it
	MemberCount  int          `db:"member_count" json:"member_count"`
	MemberBytes  int64        `db:"member_bytes" json:"member_bytes"`
	Attempts     int          `db:"attempts" json:"attempts"`
	ElapsedMS    int64        `db:"elapsed_ms" json:"elapsed_ms"`
	ErrorMessage string       `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt  time.Time    `db:"processed_at" json:"processed_at"`
}

// IngestStats aggregates catalog activity for the status API
type IngestStats struct {
	Runs            int64      `db:"runs" json:"runs"`
	ObjectsIngested int64      `db:"objects_ingested" json:"objects_ingested"`
	ObjectsFailed   int64      `db:"objects_failed" json:"objects_failed"`
	MemberBytes     int64      `db:"member_bytes" json:"member_bytes"`
	LastCompletedAt *time.Time `db:"last_completed_at" json:"last_completed_at,omitempty"`
}
