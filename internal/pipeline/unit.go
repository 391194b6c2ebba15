package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/paperview/backend-go/internal/archive"
	"github.com/andresuchdata/paperview/backend-go/internal/manifest"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

// ingest runs one object through download, extract and manifest parsing.
// Whatever happens, the unit's scratch dir is gone by the time it returns.
func (o *Orchestrator) ingest(ctx context.Context, desc storage.ObjectDescriptor) (res Result) {
	res.Descriptor = desc
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
	}()

	scratch, err := allocScratch(o.cfg.ScratchRoot, desc.Key)
	if err != nil {
		res.Stage = StageDownload
		res.Err = fmt.Errorf("allocating scratch space: %w", err)
		return
	}
	defer removeScratch(scratch)

	archivePath := filepath.Join(scratch, blobName(desc.Key))
	res.Attempts, err = o.download(ctx, desc.Key, archivePath)
	if err != nil {
		res.Stage = StageDownload
		res.Err = err
		return
	}

	contents, err := archive.Extract(archivePath, filepath.Join(scratch, "contents"))
	if err != nil {
		res.Stage = StageExtract
		res.Err = err
		return
	}

	record, err := manifest.Read(contents.Dir)
	if err != nil {
		res.Stage = StageManifest
		res.Err = err
		return
	}

	res.Manifest = &record
	log.Debug().
		Str("key", desc.Key).
		Int("members", len(record.Members)).
		Int("attempts", res.Attempts).
		Msg("unit ingested")
	return
}

// download fetches the object with retries. Only network-classified
// transfer failures are retried; backoff grows per attempt and the wait
// aborts as soon as the context is cancelled.
func (o *Orchestrator) download(ctx context.Context, key, destPath string) (int, error) {
	attempts := 0
	for {
		attempts++
		err := o.store.Download(ctx, key, destPath)
		if err == nil {
			return attempts, nil
		}
		if !storage.IsRetryable(err) || attempts >= o.cfg.Retry.MaxAttempts || ctx.Err() != nil {
			return attempts, err
		}

		delay := o.cfg.Retry.backoff(attempts)
		log.Warn().
			Err(err).
			Str("key", key).
			Int("attempt", attempts).
			Int("max_attempts", o.cfg.Retry.MaxAttempts).
			Dur("backoff", delay).
			Msg("download failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempts, err
		}
	}
}

// blobName picks a file name for the downloaded archive inside the
// scratch dir. A fixed stem keeps it from colliding with the contents
// subdirectory no matter what the key looks like.
func blobName(key string) string {
	return "archive" + path.Ext(path.Base(key))
}
