package handlers

import (
	"net/http"
	"strconv"

	"github.com/andresuchdata/paperview/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	service *service.StatusService
}

func NewIngestHandler(service *service.StatusService) *IngestHandler {
	return &IngestHandler{service: service}
}

func (h *IngestHandler) GetRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *IngestHandler) GetRun(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.service.RunDetail(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run", "details": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *IngestHandler) GetRunObjects(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	objects, err := h.service.RunObjects(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run objects", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"objects": objects,
		"count":   len(objects),
	})
}

func (h *IngestHandler) GetRunFailures(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	failures, err := h.service.RunFailures(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run failures", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"failures": failures,
		"count":    len(failures),
	})
}

func (h *IngestHandler) GetStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	stats, err := h.service.Stats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *IngestHandler) runID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return id, true
}
