package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, dir string, members map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create member %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	path := filepath.Join(dir, "unit.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

func TestExtractNestedTree(t *testing.T) {
	root := t.TempDir()
	archivePath := writeZip(t, root, map[string]string{
		"manifest.xml":     "<manifest/>",
		"content/fig1.png": "png-bytes",
		"content/data.csv": "a,b,c",
	})

	scratch := filepath.Join(root, "scratch")
	contents, err := Extract(archivePath, scratch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if contents.Dir != scratch {
		t.Errorf("contents dir = %s, want %s", contents.Dir, scratch)
	}
	if len(contents.Files) != 3 {
		t.Fatalf("extracted %d files, want 3", len(contents.Files))
	}

	body, err := os.ReadFile(filepath.Join(scratch, "content", "data.csv"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(body) != "a,b,c" {
		t.Errorf("extracted body = %q, want %q", body, "a,b,c")
	}
}

func TestExtractCreatesScratchDir(t *testing.T) {
	root := t.TempDir()
	archivePath := writeZip(t, root, map[string]string{"manifest.xml": "<manifest/>"})

	scratch := filepath.Join(root, "deep", "scratch")
	if _, err := Extract(archivePath, scratch); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "manifest.xml")); err != nil {
		t.Errorf("manifest not extracted: %v", err)
	}
}

func TestExtractRejectsNonEmptyScratch(t *testing.T) {
	root := t.TempDir()
	archivePath := writeZip(t, root, map[string]string{"manifest.xml": "<manifest/>"})

	scratch := filepath.Join(root, "scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(scratch, "leftover"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Extract(archivePath, scratch)
	if err == nil {
		t.Fatal("expected error for non-empty scratch dir")
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		t.Errorf("non-empty scratch should be a usage error, got extraction cause %s", extErr.Cause)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "bad.zip")
	if err := os.WriteFile(archivePath, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Extract(archivePath, filepath.Join(root, "scratch"))
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extErr.Cause != CauseCorruptArchive {
		t.Errorf("cause = %s, want %s", extErr.Cause, CauseCorruptArchive)
	}
}

func TestExtractRejectsEscapingMember(t *testing.T) {
	root := t.TempDir()
	archivePath := writeZip(t, root, map[string]string{
		"../evil.txt": "outside",
	})

	scratch := filepath.Join(root, "jail", "scratch")
	_, err := Extract(archivePath, scratch)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extErr.Cause != CauseCorruptArchive {
		t.Errorf("cause = %s, want %s", extErr.Cause, CauseCorruptArchive)
	}
	if _, statErr := os.Stat(filepath.Join(root, "jail", "evil.txt")); !os.IsNotExist(statErr) {
		t.Errorf("escaping member was written outside the scratch dir")
	}
}
