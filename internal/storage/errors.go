package storage

import (
	"errors"
	"fmt"
)

// TransferCause classifies a failed download.
type TransferCause string

const (
	CauseNetwork    TransferCause = "network"
	CausePermission TransferCause = "permission"
	CauseNotFound   TransferCause = "not_found"
	CauseQuota      TransferCause = "quota"
)

// TransferError reports a failed object download. Only the network cause is
// safe to retry; retrying anything else re-bills a request that cannot
// succeed.
type TransferError struct {
	Key   string
	Cause TransferCause
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s (%s): %v", e.Key, e.Cause, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ListCause classifies a failed listing page fetch.
type ListCause string

const (
	ListCauseNetwork    ListCause = "network"
	ListCausePermission ListCause = "permission"
)

// ListError reports a pagination failure. It terminates the listing at the
// point of failure; descriptors already yielded remain valid.
type ListError struct {
	Prefix string
	Cause  ListCause
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %q (%s): %v", e.Prefix, e.Cause, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a download failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Cause == CauseNetwork
}
