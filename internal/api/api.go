// internal/api/api.go
package api

import (
	"strings"
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/api/handlers"
	"github.com/andresuchdata/paperview/backend-go/internal/api/middleware"
	"github.com/andresuchdata/paperview/backend-go/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	StatusService *service.StatusService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(corsFor(allowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.StatusService != nil {
		ingestHandler := handlers.NewIngestHandler(services.StatusService)
		ingestGroup := apiGroup.Group("/ingest")
		{
			ingestGroup.GET("/runs", ingestHandler.GetRuns)
			ingestGroup.GET("/runs/:id", ingestHandler.GetRun)
			ingestGroup.GET("/runs/:id/objects", ingestHandler.GetRunObjects)
			ingestGroup.GET("/runs/:id/failures", ingestHandler.GetRunFailures)
			ingestGroup.GET("/stats", ingestHandler.GetStats)
		}
	}

	return router
}

// corsFor builds the CORS layer for a read-only API. An empty or "*"
// origin list allows every origin.
func corsFor(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}

	origins, allowAll := splitOrigins(allowedOrigins)
	if allowAll || len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}

	return cors.New(cfg)
}

// splitOrigins flattens comma-separated entries; "*" anywhere switches
// to allow-all.
func splitOrigins(entries []string) ([]string, bool) {
	var origins []string
	allowAll := false
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			switch part {
			case "":
			case "*":
				allowAll = true
			default:
				origins = append(origins, part)
			}
		}
	}
	return origins, allowAll
}
