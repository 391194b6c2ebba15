package storage

import (
	"context"
	"time"
)

// ObjectDescriptor identifies one remote archive. Produced only by listing;
// treated as immutable once yielded.
type ObjectDescriptor struct {
	Key          string
	Size         int64
	LastModified time.Time
	StorageClass string
}

// Listing is a lazy iterator over object descriptors. Pages are fetched as
// the consumer advances; order is the store's native order, as-received.
// After Next returns false, Err reports the pagination failure that ended
// the sequence, if any. Restart by calling Store.List again.
type Listing interface {
	Next() bool
	Descriptor() ObjectDescriptor
	Err() error
	Close() error
}

// Store captures the operations the ingestion pipeline needs from a remote
// object store: paginated enumeration and billed download.
type Store interface {
	List(ctx context.Context, prefix string) Listing
	Download(ctx context.Context, key string, destPath string) error
}
