package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
)

const (
	sheetOverview = "Overview"
	sheetObjects  = "Objects"
	sheetFailures = "Failures"
)

var objectHeader = []interface{}{
	"Object Key", "Status", "Stage", "Title", "Members", "Member Bytes",
	"Attempts", "Elapsed (ms)", "Processed At", "Error",
}

// WriteRunReport renders one ingestion run as an XLSX workbook: an
// overview sheet plus per-object and failures-only listings.
func WriteRunReport(path string, run *catalog.IngestRun, objects []catalog.IngestObject) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetOverview)
	if err := writeOverview(f, run); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetObjects); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetObjects, err)
	}
	if err := writeObjects(f, sheetObjects, objects); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetFailures); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetFailures, err)
	}
	failures := make([]catalog.IngestObject, 0)
	for _, obj := range objects {
		if obj.Status == catalog.ObjectStatusFailed {
			failures = append(failures, obj)
		}
	}
	if err := writeObjects(f, sheetFailures, failures); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report to %s: %w", path, err)
	}
	return nil
}

func writeOverview(f *excelize.File, run *catalog.IngestRun) error {
	completed := ""
	if run.CompletedAt != nil {
		completed = run.CompletedAt.Format(time.RFC3339)
	}

	rows := [][]interface{}{
		{"Run ID", run.ID},
		{"Bucket", run.Bucket},
		{"Prefix", run.Prefix},
		{"Concurrency", run.Concurrency},
		{"Status", string(run.Status)},
		{"Total Objects", run.TotalObjects},
		{"Ingested", run.IngestedCount},
		{"Failed", run.FailedCount},
		{"Started At", run.StartedAt.Format(time.RFC3339)},
		{"Completed At", completed},
		{"Error", run.ErrorMessage},
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheetOverview, cell, &row); err != nil {
			return fmt.Errorf("failed to write overview row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeObjects(f *excelize.File, sheet string, objects []catalog.IngestObject) error {
	if err := f.SetSheetRow(sheet, "A1", &objectHeader); err != nil {
		return fmt.Errorf("failed to write header on %s: %w", sheet, err)
	}

	for i, obj := range objects {
		title := ""
		if obj.Title != nil {
			title = *obj.Title
		}
		row := []interface{}{
			obj.ObjectKey, string(obj.Status), obj.Stage, title,
			obj.MemberCount, obj.MemberBytes, obj.Attempts, obj.ElapsedMS,
			obj.ProcessedAt.Format(time.RFC3339), obj.ErrorMessage,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for %s on %s: %w", obj.ObjectKey, sheet, err)
		}
	}
	return nil
}
