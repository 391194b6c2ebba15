package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAllocScratchFreshPerUnit(t *testing.T) {
	root := t.TempDir()

	first, err := allocScratch(root, "Current_Content/July_2025/unit one.meca")
	if err != nil {
		t.Fatalf("allocScratch: %v", err)
	}
	second, err := allocScratch(root, "Current_Content/July_2025/unit one.meca")
	if err != nil {
		t.Fatalf("allocScratch: %v", err)
	}

	if first == second {
		t.Fatalf("two allocations for the same key share a dir: %s", first)
	}
	for _, dir := range []string{first, second} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("scratch dir unreadable: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("scratch dir %s not empty on allocation", dir)
		}
		if filepath.Dir(dir) != root {
			t.Errorf("scratch dir %s created outside root %s", dir, root)
		}
		if strings.ContainsAny(filepath.Base(dir), "/ ") {
			t.Errorf("scratch dir name %s not sanitized", filepath.Base(dir))
		}
	}
}

func TestRemoveScratch(t *testing.T) {
	root := t.TempDir()
	dir, err := allocScratch(root, "x.meca")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "archive.meca"), []byte("blob"), 0o644); err != nil {
		t.Fatal(err)
	}

	removeScratch(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("scratch dir still present after removal")
	}
}

func TestCleanStaleSweepsOldDirsOnly(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "old-unit-1234")
	fresh := filepath.Join(root, "new-unit-5678")
	for _, dir := range []string{stale, fresh} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	looseFile := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(looseFile, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatal(err)
	}

	result := CleanStale(context.Background(), root, time.Hour)

	if len(result.Errors) != 0 {
		t.Fatalf("sweep errors: %+v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Errorf("removed = %v, want just %s", result.Removed, stale)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh dir was swept: %v", err)
	}
	if _, err := os.Stat(looseFile); err != nil {
		t.Errorf("loose file was swept: %v", err)
	}
}

func TestCleanStaleMissingRoot(t *testing.T) {
	result := CleanStale(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Hour)
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result for missing root, got %+v", result)
	}
}
