package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
)

func TestWriteRunReport(t *testing.T) {
	completed := time.Date(2025, 7, 31, 12, 30, 0, 0, time.UTC)
	title := "Example"
	run := &catalog.IngestRun{
		ID:            42,
		Bucket:        "biorxiv-src-monthly",
		Prefix:        "Current_Content/July_2025/",
		Concurrency:   4,
		Status:        catalog.RunStatusCompleted,
		TotalObjects:  2,
		IngestedCount: 1,
		FailedCount:   1,
		StartedAt:     completed.Add(-time.Hour),
		CompletedAt:   &completed,
	}
	objects := []catalog.IngestObject{
		{
			RunID: 42, ObjectKey: "Current_Content/July_2025/a.meca",
			Status: catalog.ObjectStatusIngested, Title: &title,
			MemberCount: 3, MemberBytes: 4096, Attempts: 1,
			ElapsedMS: 1200, ProcessedAt: completed,
		},
		{
			RunID: 42, ObjectKey: "Current_Content/July_2025/b.meca",
			Status: catalog.ObjectStatusFailed, Stage: "download",
			Attempts: 3, ErrorMessage: "download failed: connection reset",
			ProcessedAt: completed,
		},
	}

	path := filepath.Join(t.TempDir(), "run-42.xlsx")
	if err := WriteRunReport(path, run, objects); err != nil {
		t.Fatalf("WriteRunReport: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen report: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := map[string]bool{sheetOverview: false, sheetObjects: false, sheetFailures: false}
	for _, s := range sheets {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for s, seen := range want {
		if !seen {
			t.Errorf("sheet %s missing from workbook (have %v)", s, sheets)
		}
	}

	if got, _ := f.GetCellValue(sheetOverview, "B1"); got != "42" {
		t.Errorf("overview run id = %q, want 42", got)
	}
	if got, _ := f.GetCellValue(sheetObjects, "A2"); got != "Current_Content/July_2025/a.meca" {
		t.Errorf("first object key = %q", got)
	}
	if got, _ := f.GetCellValue(sheetObjects, "D2"); got != "Example" {
		t.Errorf("first object title = %q, want Example", got)
	}

	// failures sheet carries only the failed unit
	if got, _ := f.GetCellValue(sheetFailures, "A2"); got != "Current_Content/July_2025/b.meca" {
		t.Errorf("failure key = %q", got)
	}
	if got, _ := f.GetCellValue(sheetFailures, "C2"); got != "download" {
		t.Errorf("failure stage = %q, want download", got)
	}
	if got, _ := f.GetCellValue(sheetFailures, "A3"); got != "" {
		t.Errorf("failures sheet has unexpected extra row: %q", got)
	}
}
