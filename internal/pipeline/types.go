package pipeline

import (
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/manifest"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

// Stage names the pipeline step a unit was in when it failed
type Stage string

const (
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StageManifest Stage = "manifest"
)

// Result is the outcome of one archive unit. Results are emitted in
// listing order; exactly one of Manifest and Err is set.
type Result struct {
	Descriptor storage.ObjectDescriptor
	Manifest   *manifest.Record
	Stage      Stage         // stage that failed, empty on success
	Err        error         // terminal error for this unit
	Attempts   int           // download attempts actually made
	Elapsed    time.Duration // wall time for the whole unit
}

// Failed reports whether the unit ended in an error
func (r Result) Failed() bool {
	return r.Err != nil
}

// RetryPolicy controls download retries. Only network-classified
// transfer failures are retried; every other failure is final on the
// first attempt.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts including the first
	InitialBackoff time.Duration // delay before the second attempt
	MaxBackoff     time.Duration // ceiling for the grown delay
	Multiplier     float64       // backoff growth factor
}

// DefaultRetryPolicy returns the retry settings used when a config leaves them zero
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	return time.Duration(d)
}

// Config holds the settings for one ingestion run
type Config struct {
	Prefix      string      // key prefix to list, empty for the whole bucket
	Concurrency int         // bound on units in flight and on buffered results
	ScratchRoot string      // directory under which per-unit scratch dirs are created
	Retry       RetryPolicy // download retry settings
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2
	}
	return c
}
