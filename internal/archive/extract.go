package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractionCause classifies a failed extraction.
type ExtractionCause string

const (
	CauseCorruptArchive ExtractionCause = "corrupt_archive"
	CauseIO             ExtractionCause = "io_error"
	CauseUnsupported    ExtractionCause = "unsupported_format"
)

// ExtractionError reports a failed archive expansion. Extraction may have
// partially completed; callers must remove the whole scratch dir regardless.
type ExtractionError struct {
	Archive string
	Cause   ExtractionCause
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Archive, e.Cause, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Contents is the result of one extraction: the scratch directory and the
// paths of every extracted regular file.
type Contents struct {
	Dir   string
	Files []string
}

// Extract expands the zip archive at archivePath into scratchDir and returns
// the produced file paths. scratchDir must be fresh for this invocation: an
// existing non-empty directory is a caller usage error, never merged into.
func Extract(archivePath, scratchDir string) (Contents, error) {
	if err := ensureFresh(scratchDir); err != nil {
		return Contents{}, err
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return Contents{}, classifyExtraction(archivePath, err)
	}
	defer r.Close()

	contents := Contents{Dir: scratchDir}
	for _, f := range r.File {
		dest, err := memberPath(scratchDir, f.Name)
		if err != nil {
			return Contents{}, &ExtractionError{Archive: archivePath, Cause: CauseCorruptArchive, Err: err}
		}

		mode := f.Mode()
		switch {
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return Contents{}, &ExtractionError{Archive: archivePath, Cause: CauseIO, Err: err}
			}
		case mode.IsRegular():
			if err := extractFile(f, dest); err != nil {
				return Contents{}, classifyExtraction(archivePath, err)
			}
			contents.Files = append(contents.Files, dest)
		default:
			// symlinks and other special entries are not part of the
			// archive contract; skip them rather than write through them
			continue
		}
	}

	return contents, nil
}

func ensureFresh(scratchDir string) error {
	entries, err := os.ReadDir(scratchDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(scratchDir, 0o755); err != nil {
			return &ExtractionError{Archive: "", Cause: CauseIO, Err: err}
		}
		return nil
	case err != nil:
		return &ExtractionError{Archive: "", Cause: CauseIO, Err: err}
	case len(entries) > 0:
		return fmt.Errorf("scratch dir %s is not empty; each extraction needs a fresh directory", scratchDir)
	default:
		return nil
	}
}

// memberPath resolves a member name inside scratchDir, rejecting anything
// that would escape it.
func memberPath(scratchDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("archive member with empty name")
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes the scratch dir", name)
	}
	return filepath.Join(scratchDir, cleaned), nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, rc)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func classifyExtraction(archivePath string, err error) error {
	switch {
	case errors.Is(err, zip.ErrFormat), errors.Is(err, zip.ErrChecksum):
		return &ExtractionError{Archive: archivePath, Cause: CauseCorruptArchive, Err: err}
	case errors.Is(err, zip.ErrAlgorithm):
		return &ExtractionError{Archive: archivePath, Cause: CauseUnsupported, Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &ExtractionError{Archive: archivePath, Cause: CauseCorruptArchive, Err: err}
	default:
		return &ExtractionError{Archive: archivePath, Cause: CauseIO, Err: err}
	}
}
