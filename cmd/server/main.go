// backend-go/cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/paperview/backend-go/internal/api"
	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/service"
	"github.com/andresuchdata/paperview/backend-go/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	if cfg.Server.Mode == "debug" {
		logger.Setup("debug")
		gin.SetMode(gin.DebugMode)
	} else {
		logger.Setup("info")
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
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

	// Initialize services
	statusService := service.NewStatusService(repo)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{
		StatusService: statusService,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
