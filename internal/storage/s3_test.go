package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestClassifyTransferCauses(t *testing.T) {
	cases := []struct {
		code string
		want TransferCause
	}{
		{"NoSuchKey", CauseNotFound},
		{"NoSuchBucket", CauseNotFound},
		{"AccessDenied", CausePermission},
		{"InvalidAccessKeyId", CausePermission},
		{"SignatureDoesNotMatch", CausePermission},
		{"SlowDown", CauseQuota},
		{"TooManyRequests", CauseQuota},
		{"RequestLimitExceeded", CauseQuota},
		{"InternalError", CauseNetwork},
	}

	for _, tc := range cases {
		err := classifyTransfer("some/key.meca", minio.ErrorResponse{Code: tc.code, Message: tc.code})

		var te *TransferError
		if !errors.As(err, &te) {
			t.Fatalf("%s: expected TransferError, got %T", tc.code, err)
		}
		if te.Cause != tc.want {
			t.Errorf("%s: expected cause %s, got %s", tc.code, tc.want, te.Cause)
		}
		if te.Key != "some/key.meca" {
			t.Errorf("%s: key not carried through: %s", tc.code, te.Key)
		}
	}
}

func TestClassifyTransferNetworkStrings(t *testing.T) {
	for _, msg := range []string{
		"dial tcp: connection refused",
		"read tcp: connection reset by peer",
		"lookup bucket.example: no such host",
		"request timeout exceeded",
	} {
		err := classifyTransfer("k", fmt.Errorf("%s", msg))
		if !IsRetryable(err) {
			t.Errorf("%q should classify as retryable network error, got %v", msg, err)
		}
	}
}

func TestClassifyTransferContextPassthrough(t *testing.T) {
	err := classifyTransfer("k", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected raw context error, got %v", err)
	}
	var te *TransferError
	if errors.As(err, &te) {
		t.Error("context cancellation must not be wrapped as TransferError")
	}
}

func TestClassifyTransferUnknownLocal(t *testing.T) {
	err := classifyTransfer("k", fmt.Errorf("disk quota weirdness"))
	if IsRetryable(err) {
		t.Errorf("unclassified local error must not be retryable: %v", err)
	}
}

func TestClassifyListCauses(t *testing.T) {
	err := classifyList("pfx/", minio.ErrorResponse{Code: "AccessDenied"})
	var le *ListError
	if !errors.As(err, &le) {
		t.Fatalf("expected ListError, got %T", err)
	}
	if le.Cause != ListCausePermission {
		t.Errorf("expected permission cause, got %s", le.Cause)
	}

	err = classifyList("pfx/", fmt.Errorf("connection reset"))
	if !errors.As(err, &le) {
		t.Fatalf("expected ListError, got %T", err)
	}
	if le.Cause != ListCauseNetwork {
		t.Errorf("expected network cause, got %s", le.Cause)
	}
}

func TestRequesterPaysHeaderOnGet(t *testing.T) {
	s := &S3Store{bucket: "b", requesterPays: true}
	opts := s.getOptions()
	if got := opts.Header().Get(requesterPaysHeader); got != requesterPaysValue {
		t.Errorf("expected %s header on get options, got %q", requesterPaysHeader, got)
	}

	plain := &S3Store{bucket: "b"}
	if got := plain.getOptions().Header().Get(requesterPaysHeader); got != "" {
		t.Errorf("requester-pays header set on non-billed store: %q", got)
	}
}

func TestNewS3StoreValidation(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}

	_, err = NewS3Store(S3Config{Endpoint: "s3.amazonaws.com", AccessKey: "ak", SecretKey: "sk"})
	if err == nil {
		t.Fatal("expected validation error for missing bucket")
	}
}
