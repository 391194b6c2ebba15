package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/paperview/backend-go/internal/cache"
	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/pipeline"
	"github.com/andresuchdata/paperview/backend-go/internal/service"
	"github.com/andresuchdata/paperview/backend-go/internal/storage"
	"github.com/andresuchdata/paperview/backend-go/pkg/logger"
)

// ingestd runs the ingestion pipeline on a fixed schedule and exposes a
// small control listener so operators can check on it between sweeps.

type daemonState struct {
	mu      sync.Mutex
	running bool
	lastRun *catalog.IngestRun
	lastErr string
	nextAt  time.Time
}

func (s *daemonState) begin() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

func (s *daemonState) finish(run *catalog.IngestRun, err error, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.nextAt = next
	if run != nil {
		s.lastRun = run
	}
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

func (s *daemonState) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]interface{}{
		"running":     s.running,
		"next_run_at": s.nextAt,
	}
	if s.lastRun != nil {
		resp["last_run"] = s.lastRun
	}
	if s.lastErr != "" {
		resp["last_error"] = s.lastErr
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("failed to write status response")
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store.Backend {
	case "local":
		return storage.NewLocalStore(cfg.Store.LocalRoot)
	case "s3", "":
		return storage.NewS3Store(storage.S3Config{
			Endpoint:      cfg.Store.Endpoint,
			AccessKey:     cfg.Store.AccessKey,
			SecretKey:     cfg.Store.SecretKey,
			Bucket:        cfg.Store.Bucket,
			Region:        cfg.Store.Region,
			UseSSL:        cfg.Store.UseSSL,
			RequesterPays: cfg.Store.RequesterPays,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func main() {
	_ = godotenv.Load()
	logger.Setup(os.Getenv("LOG_LEVEL"))

	addr := flag.String("addr", ":8081", "control listener address")
	interval := flag.Duration("interval", time.Hour, "time between ingestion sweeps")
	flag.Parse()

	cfg := config.Load()

	db, err := catalog.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := catalog.NewRepository(db)
	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = repo.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure catalog schema")
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build object store")
	}

	manifests, err := cache.NewManifestCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("manifest cache unavailable, continuing without it")
		manifests = cache.NewNoopManifestCache()
	}

	svc := service.NewIngestService(store, repo, manifests, cfg.Store.Bucket)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &daemonState{nextAt: time.Now()}

	// A buffered kick lets /trigger request one extra sweep without ever
	// stacking more than one behind a run in progress.
	kick := make(chan struct{}, 1)

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.HandleFunc("/status", state.handleStatus).Methods("GET")
	r.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		scheduled := true
		select {
		case kick <- struct{}{}:
		default:
			scheduled = false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]bool{"scheduled": scheduled})
	}).Methods("POST")

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		log.Info().Str("addr", *addr).Msg("control listener starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("control listener failed")
		}
	}()

	runOnce := func() {
		// Sweep leftovers from crashed processes before taking new space.
		pipeline.CleanStale(ctx, cfg.Ingest.ScratchDir, time.Duration(cfg.Ingest.StaleAfterMin)*time.Minute)

		state.begin()
		run, runErr := svc.RunIngest(ctx, pipeline.Config{
			Prefix:      cfg.Ingest.Prefix,
			Concurrency: cfg.Ingest.Concurrency,
			ScratchRoot: cfg.Ingest.ScratchDir,
			Retry: pipeline.RetryPolicy{
				MaxAttempts:    cfg.Ingest.MaxAttempts,
				InitialBackoff: time.Duration(cfg.Ingest.RetryBackoffMS) * time.Millisecond,
				MaxBackoff:     time.Duration(cfg.Ingest.MaxBackoffMS) * time.Millisecond,
				Multiplier:     2,
			},
		})
		state.finish(run, runErr, time.Now().Add(*interval))
		if runErr != nil && ctx.Err() == nil {
			log.Error().Err(runErr).Msg("scheduled ingestion failed")
		}
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	runOnce()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down ingestd...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("control listener forced to shutdown")
			}
			cancel()
			log.Info().Msg("ingestd exiting")
			return
		case <-ticker.C:
			runOnce()
		case <-kick:
			runOnce()
		}
	}
}
