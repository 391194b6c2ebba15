package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/paperview/backend-go/internal/storage"
)

// Orchestrator drives archive units against a store: list the source,
// then download, extract and parse each object under a concurrency bound.
type Orchestrator struct {
	store storage.Store
	cfg   Config
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(store storage.Store, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("store must be provided")
	}
	if cfg.ScratchRoot == "" {
		return nil, fmt.Errorf("scratch root must be provided")
	}
	return &Orchestrator{store: store, cfg: cfg.withDefaults()}, nil
}

// Run is a started ingestion run. Results carries one Result per listed
// object, in listing order, and closes when the run is over. The caller
// must drain Results or cancel the context it passed to Start.
type Run struct {
	results chan Result
	err     error
}

// Results streams unit outcomes in listing order.
func (r *Run) Results() <-chan Result {
	return r.results
}

// Err reports why the run stopped before the listing was exhausted: a
// storage.ListError or the context's error. It is nil for a complete
// run and only valid once Results has been closed.
func (r *Run) Err() error {
	return r.err
}

// Start launches the run and returns immediately. Per-unit failures are
// reported through Results and never stop the run; only a listing
// failure or context cancellation ends it early.
func (o *Orchestrator) Start(ctx context.Context) *Run {
	run := &Run{results: make(chan Result)}
	go o.dispatch(ctx, run)
	return run
}

func (o *Orchestrator) dispatch(ctx context.Context, run *Run) {
	defer close(run.results)

	log.Info().
		Str("prefix", o.cfg.Prefix).
		Int("concurrency", o.cfg.Concurrency).
		Msg("starting ingestion run")

	listing := o.store.List(ctx, o.cfg.Prefix)
	defer listing.Close()

	// Each unit gets a single-slot future; the forwarder empties them in
	// dispatch order, so emission matches listing order. The forwarder
	// always holds one future while it waits, so a buffer of
	// Concurrency-1 keeps at most Concurrency units outstanding.
	pending := make(chan chan Result, o.cfg.Concurrency-1)
	var wg sync.WaitGroup

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for fut := range pending {
			res := <-fut
			select {
			case run.results <- res:
			case <-ctx.Done():
			}
		}
	}()

	var dispatched int
dispatch:
	for listing.Next() {
		desc := listing.Descriptor()
		fut := make(chan Result, 1)

		// An enqueued future must always get a unit goroutine, or the
		// forwarder would wait on it forever.
		select {
		case pending <- fut:
		case <-ctx.Done():
			break dispatch
		}

		dispatched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			fut <- o.ingest(ctx, desc)
		}()
	}

	if err := listing.Err(); err != nil {
		run.err = err
	} else if err := ctx.Err(); err != nil {
		run.err = err
	}

	// In-flight units run to completion (or to their next cancellation
	// point) so every allocated scratch dir is released before the
	// stream closes.
	wg.Wait()
	close(pending)
	<-forwarded

	evt := log.Info()
	if run.err != nil {
		evt = log.Warn().Err(run.err)
	}
	evt.Int("dispatched", dispatched).Msg("ingestion run finished")
}
