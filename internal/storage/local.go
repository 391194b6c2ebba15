package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore implements Store over a directory tree. Object keys are
// slash-separated paths relative to the root. Used for development runs and
// tests; the contract matches S3Store, including atomic downloads.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local store root must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local store root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local store root %s is not a directory", root)
	}
	return &LocalStore{root: root}, nil
}

// List walks the root and yields every regular file under prefix in walk
// (lexical) order.
func (s *LocalStore) List(ctx context.Context, prefix string) Listing {
	var descriptors []ObjectDescriptor

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !hasKeyPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		descriptors = append(descriptors, ObjectDescriptor{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			StorageClass: "STANDARD",
		})
		return nil
	})

	listing := &sliceListing{descriptors: descriptors}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		listing.err = err
	case os.IsPermission(err):
		listing.err = &ListError{Prefix: prefix, Cause: ListCausePermission, Err: err}
	default:
		listing.err = &ListError{Prefix: prefix, Cause: ListCauseNetwork, Err: err}
	}
	return listing
}

// Download copies the object into destPath through a temp file; on failure
// no partial file remains at destPath.
func (s *LocalStore) Download(ctx context.Context, key, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return &TransferError{Key: key, Cause: CauseNotFound, Err: err}
		case os.IsPermission(err):
			return &TransferError{Key: key, Cause: CausePermission, Err: err}
		default:
			return &TransferError{Key: key, Cause: CauseNetwork, Err: err}
		}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}

	tmpPath := destPath + ".part"
	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed creating %s: %w", tmpPath, err)
	}

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return &TransferError{Key: key, Cause: CauseNetwork, Err: err}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed finalizing %s: %w", destPath, err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)

type sliceListing struct {
	descriptors []ObjectDescriptor
	idx         int
	cur         ObjectDescriptor
	err         error
	closed      bool
}

func (l *sliceListing) Next() bool {
	if l.closed || l.idx >= len(l.descriptors) {
		return false
	}
	l.cur = l.descriptors[l.idx]
	l.idx++
	return true
}

func (l *sliceListing) Descriptor() ObjectDescriptor { return l.cur }

func (l *sliceListing) Err() error { return l.err }

func (l *sliceListing) Close() error {
	l.closed = true
	return nil
}

func hasKeyPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}
