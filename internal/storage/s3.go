package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// requesterPaysHeader marks list/get requests as billable to the caller's
// account instead of the bucket owner's.
const (
	requesterPaysHeader = "x-amz-request-payer"
	requesterPaysValue  = "requester"
)

// S3Config encapsulates the connection info for the S3-compatible archive bucket.
type S3Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	RequesterPays bool
}

// S3Store implements Store for S3-compatible services via minio-go.
type S3Store struct {
	client        *minio.Client
	bucket        string
	requesterPays bool
}

// NewS3Store builds a new S3Store against the configured bucket.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client init failed: %w", err)
	}

	return &S3Store{
		client:        client,
		bucket:        cfg.Bucket,
		requesterPays: cfg.RequesterPays,
	}, nil
}

// List starts a lazy listing of the bucket under prefix. Pages are fetched
// on demand as the iterator advances.
func (s *S3Store) List(ctx context.Context, prefix string) Listing {
	lctx, cancel := context.WithCancel(ctx)

	return &s3Listing{
		prefix: prefix,
		ch:     s.client.ListObjects(lctx, s.bucket, s.listOptions(prefix)),
		cancel: cancel,
	}
}

func (s *S3Store) listOptions(prefix string) minio.ListObjectsOptions {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	if s.requesterPays {
		opts.Set(requesterPaysHeader, requesterPaysValue)
	}
	return opts
}

func (s *S3Store) getOptions() minio.GetObjectOptions {
	opts := minio.GetObjectOptions{}
	if s.requesterPays {
		opts.Set(requesterPaysHeader, requesterPaysValue)
	}
	return opts
}

type s3Listing struct {
	prefix string
	ch     <-chan minio.ObjectInfo
	cancel context.CancelFunc
	cur    ObjectDescriptor
	err    error
	closed bool
}

func (l *s3Listing) Next() bool {
	if l.closed || l.err != nil {
		return false
	}

	obj, ok := <-l.ch
	if !ok {
		return false
	}
	if obj.Err != nil {
		if errors.Is(obj.Err, context.Canceled) || errors.Is(obj.Err, context.DeadlineExceeded) {
			l.err = obj.Err
		} else {
			l.err = classifyList(l.prefix, obj.Err)
		}
		return false
	}

	l.cur = ObjectDescriptor{
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		StorageClass: obj.StorageClass,
	}
	return true
}

func (l *s3Listing) Descriptor() ObjectDescriptor {
	return l.cur
}

func (l *s3Listing) Err() error {
	return l.err
}

func (l *s3Listing) Close() error {
	if !l.closed {
		l.closed = true
		l.cancel()
	}
	return nil
}

// Download streams the object to destPath. The write goes through a temp
// file that is renamed into place only on success, so no partial file ever
// remains at destPath.
func (s *S3Store) Download(ctx context.Context, key, destPath string) error {
	obj, err := s.client.GetObject(ctx, s.bucket, key, s.getOptions())
	if err != nil {
		return classifyTransfer(key, err)
	}
	defer obj.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}

	tmpPath := destPath + ".part"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed creating %s: %w", tmpPath, err)
	}

	_, err = io.Copy(f, obj)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return classifyTransfer(key, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed finalizing %s: %w", destPath, err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)

// classifyTransfer maps a download failure onto the transfer taxonomy.
// Context cancellation passes through untouched so callers can tell an
// aborted run from a remote fault.
func classifyTransfer(key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return &TransferError{Key: key, Cause: CauseNotFound, Err: err}
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return &TransferError{Key: key, Cause: CausePermission, Err: err}
		case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
			return &TransferError{Key: key, Cause: CauseQuota, Err: err}
		default:
			return &TransferError{Key: key, Cause: CauseNetwork, Err: err}
		}
	}

	if isNetworkErr(err) {
		return &TransferError{Key: key, Cause: CauseNetwork, Err: err}
	}
	return fmt.Errorf("download %s: %w", key, err)
}

func classifyList(prefix string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return &ListError{Prefix: prefix, Cause: ListCausePermission, Err: err}
		}
	}
	return &ListError{Prefix: prefix, Cause: ListCauseNetwork, Err: err}
}

func isNetworkErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"broken pipe",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
