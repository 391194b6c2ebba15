package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const scratchNameLimit = 40

// allocScratch creates a fresh scratch directory for one unit under root.
// The name embeds a sanitized fragment of the object key plus a random
// token, so no two units ever share a directory.
func allocScratch(root, key string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("scratch root is not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch root %s: %w", root, err)
	}

	dir := filepath.Join(root, scratchName(key))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, nil
}

func scratchName(key string) string {
	base := path.Base(key)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := b.String()
	if len(name) > scratchNameLimit {
		name = name[:scratchNameLimit]
	}
	if name == "" || name == "." {
		name = "unit"
	}
	return name + "-" + uuid.New().String()
}

// removeScratch deletes the exact directory that was allocated. It takes
// the concrete path rather than rederiving it, so renames or key quirks
// can never make cleanup miss.
func removeScratch(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to remove scratch dir")
	}
}

// CleanupError records one path that could not be swept.
type CleanupError struct {
	Path string
	Err  error
}

// CleanStaleResult summarizes one sweep of the scratch root.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanStale removes scratch directories older than maxAge. Directories
// can outlive their run when the process is killed mid-unit; a periodic
// sweep keeps the scratch root from growing without bound.
func CleanStale(ctx context.Context, root string, maxAge time.Duration) CleanStaleResult {
	var result CleanStaleResult

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return result
		}
		result.Errors = append(result.Errors, CleanupError{Path: root, Err: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: entry.Name(), Err: err})
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Err: err})
			continue
		}
		result.Removed = append(result.Removed, dir)
	}

	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		log.Info().
			Int("removed", len(result.Removed)).
			Int("errors", len(result.Errors)).
			Str("root", root).
			Msg("swept stale scratch dirs")
	}
	return result
}
