package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/transformer/internal/domain"
)

// StatusReporter reports job store reachability and job counts.
type StatusReporter interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store StatusReporter
}

// NewHealthHandler creates a new health handler; store may be nil.
func NewHealthHandler(store StatusReporter) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	counts, err := h.store.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"jobs":   counts,
	})
}
