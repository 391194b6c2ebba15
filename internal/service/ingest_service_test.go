package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
	"github.com/andresuchdata/paperview/backend-go/internal/manifest"
	"github.com/andresuchdata/paperview/backend-go/internal/pipeline"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

type memCatalog struct {
	mu      sync.Mutex
	nextID  int64
	runs    map[int64]catalog.IngestRun
	objects []catalog.IngestObject
}

func newMemCatalog() *memCatalog {
	return &memCatalog{runs: make(map[int64]catalog.IngestRun)}
}

func (m *memCatalog) CreateRun(ctx context.Context, run *catalog.IngestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.runs[run.ID] = *run
	return nil
}

func (m *memCatalog) FinishRun(ctx context.Context, run *catalog.IngestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memCatalog) RecordObject(ctx context.Context, obj *catalog.IngestObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	obj.ID = m.nextID
	m.objects = append(m.objects, *obj)
	return nil
}

func (m *memCatalog) GetRun(ctx context.Context, id int64) (*catalog.IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *memCatalog) RecentRuns(ctx context.Context, limit int) ([]catalog.IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]catalog.IngestRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func (m *memCatalog) ObjectsByRun(ctx context.Context, runID int64, limit, offset int) ([]catalog.IngestObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.IngestObject
	for _, obj := range m.objects {
		if obj.RunID == runID {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (m *memCatalog) FailuresByRun(ctx context.Context, runID int64) ([]catalog.IngestObject, error) {
	objs, _ := m.ObjectsByRun(ctx, runID, 0, 0)
	var out []catalog.IngestObject
	for _, obj := range objs {
		if obj.Status == catalog.ObjectStatusFailed {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (m *memCatalog) FailedKeys(ctx context.Context, runID int64) ([]string, error) {
	failures, _ := m.FailuresByRun(ctx, runID)
	keys := make([]string, 0, len(failures))
	for _, obj := range failures {
		keys = append(keys, obj.ObjectKey)
	}
	return keys, nil
}

func (m *memCatalog) Stats(ctx context.Context, since time.Time) (*catalog.IngestStats, error) {
	return &catalog.IngestStats{}, nil
}

type recordingCache struct {
	mu            sync.Mutex
	sets          map[string]*manifest.Record
	invalidations []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{sets: make(map[string]*manifest.Record)}
}

func (c *recordingCache) Get(ctx context.Context, bucket, key string) (*manifest.Record, bool, error) {
	return nil, false, nil
}

func (c *recordingCache) Set(ctx context.Context, bucket, key string, record *manifest.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[bucket+"/"+key] = record
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations = append(c.invalidations, bucket+"/"+key)
	return nil
}

func (c *recordingCache) InvalidateBucket(ctx context.Context, bucket string) error { return nil }

func writeStoreArchive(t *testing.T, dir, name, title string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(manifest.FileName)
	if err != nil {
		t.Fatal(err)
	}
	doc := fmt.Sprintf(`<manifest><title>%s</title><item name="body.pdf" size="100"/><item name="fig1.png" size="24"/></manifest>`, title)
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testPipelineConfig(t *testing.T) pipeline.Config {
	return pipeline.Config{
		Concurrency: 2,
		ScratchRoot: t.TempDir(),
		Retry:       pipeline.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
	}
}

func TestRunIngestRecordsOutcomes(t *testing.T) {
	storeDir := t.TempDir()
	writeStoreArchive(t, storeDir, "alpha.meca", "Alpha")
	writeStoreArchive(t, storeDir, "beta.meca", "Beta")
	if err := os.WriteFile(filepath.Join(storeDir, "gamma.meca"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewLocalStore(storeDir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	repo := newMemCatalog()
	manifests := newRecordingCache()
	svc := NewIngestService(store, repo, manifests, "test-bucket")

	cfg := testPipelineConfig(t)
	run, err := svc.RunIngest(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}

	if run.Status != catalog.RunStatusCompleted {
		t.Errorf("run status = %s, want %s", run.Status, catalog.RunStatusCompleted)
	}
	if run.TotalObjects != 3 || run.IngestedCount != 2 || run.FailedCount != 1 {
		t.Errorf("run counts = %d/%d/%d, want 3/2/1", run.TotalObjects, run.IngestedCount, run.FailedCount)
	}
	if run.CompletedAt == nil {
		t.Error("run has no completion time")
	}

	objects, _ := repo.ObjectsByRun(context.Background(), run.ID, 0, 0)
	if len(objects) != 3 {
		t.Fatalf("recorded %d objects, want 3", len(objects))
	}
	byKey := map[string]catalog.IngestObject{}
	for _, obj := range objects {
		byKey[obj.ObjectKey] = obj
	}

	alpha := byKey["alpha.meca"]
	if alpha.Status != catalog.ObjectStatusIngested {
		t.Errorf("alpha status = %s", alpha.Status)
	}
	if alpha.Title == nil || *alpha.Title != "Alpha" {
		t.Errorf("alpha title = %v", alpha.Title)
	}
	if alpha.MemberCount != 2 || alpha.MemberBytes != 124 {
		t.Errorf("alpha members = %d bytes = %d, want 2/124", alpha.MemberCount, alpha.MemberBytes)
	}

	gamma := byKey["gamma.meca"]
	if gamma.Status != catalog.ObjectStatusFailed || gamma.Stage != "extract" {
		t.Errorf("gamma status/stage = %s/%s, want failed/extract", gamma.Status, gamma.Stage)
	}
	if gamma.ErrorMessage == "" {
		t.Error("gamma has no error message")
	}

	if len(manifests.sets) != 2 {
		t.Errorf("cached %d manifests, want 2", len(manifests.sets))
	}
	if _, ok := manifests.sets["test-bucket/alpha.meca"]; !ok {
		t.Error("alpha manifest not cached")
	}

	entries, err := os.ReadDir(cfg.ScratchRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch root not empty after run")
	}
}

func TestRequeueFailedReingestsOnlyFailures(t *testing.T) {
	storeDir := t.TempDir()
	writeStoreArchive(t, storeDir, "good.meca", "Good")
	if err := os.WriteFile(filepath.Join(storeDir, "flaky.meca"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewLocalStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	repo := newMemCatalog()
	manifests := newRecordingCache()
	svc := NewIngestService(store, repo, manifests, "test-bucket")

	first, err := svc.RunIngest(context.Background(), testPipelineConfig(t))
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}
	if first.FailedCount != 1 {
		t.Fatalf("first run failed count = %d, want 1", first.FailedCount)
	}

	// the object is fixed upstream before the requeue
	writeStoreArchive(t, storeDir, "flaky.meca", "Fixed")

	second, err := svc.RequeueFailed(context.Background(), first.ID, testPipelineConfig(t))
	if err != nil {
		t.Fatalf("RequeueFailed: %v", err)
	}
	if second == nil {
		t.Fatal("expected a requeue run")
	}
	if second.TotalObjects != 1 || second.IngestedCount != 1 || second.FailedCount != 0 {
		t.Errorf("requeue counts = %d/%d/%d, want 1/1/0", second.TotalObjects, second.IngestedCount, second.FailedCount)
	}

	objects, _ := repo.ObjectsByRun(context.Background(), second.ID, 0, 0)
	if len(objects) != 1 || objects[0].ObjectKey != "flaky.meca" {
		t.Fatalf("requeue objects = %+v", objects)
	}
	if objects[0].Title == nil || *objects[0].Title != "Fixed" {
		t.Errorf("requeued title = %v, want Fixed", objects[0].Title)
	}

	if len(manifests.invalidations) != 1 || manifests.invalidations[0] != "test-bucket/flaky.meca" {
		t.Errorf("cache invalidations = %v, want just flaky.meca", manifests.invalidations)
	}
	if rec, ok := manifests.sets["test-bucket/flaky.meca"]; !ok || rec.Title == nil || *rec.Title != "Fixed" {
		t.Errorf("requeued manifest not re-cached with new title")
	}
}

func TestRequeueFailedNothingToDo(t *testing.T) {
	storeDir := t.TempDir()
	writeStoreArchive(t, storeDir, "only.meca", "Only")

	store, err := storage.NewLocalStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	repo := newMemCatalog()
	svc := NewIngestService(store, repo, nil, "test-bucket")

	first, err := svc.RunIngest(context.Background(), testPipelineConfig(t))
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}

	second, err := svc.RequeueFailed(context.Background(), first.ID, testPipelineConfig(t))
	if err != nil {
		t.Fatalf("RequeueFailed: %v", err)
	}
	if second != nil {
		t.Errorf("expected nil run when nothing failed, got %+v", second)
	}
}
