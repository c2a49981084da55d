package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/transformer/internal/api/middleware"
	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/repository"
	"github.com/timmy/transformer/internal/service"
)

// Submitter queues transformation requests.
type Submitter interface {
	Submit(ctx context.Context, req domain.TransformationRequest) (string, error)
}

// JobReader reads persisted jobs.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.TransformationJob, error)
	ListRecent(ctx context.Context, limit int) ([]domain.TransformationJob, error)
}

// JobHandler handles transformation job endpoints.
type JobHandler struct {
	submitter Submitter
	jobs      JobReader
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - submitter: dispatcher accepting new jobs.
//   - jobs: job store used for status queries.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(submitter Submitter, jobs JobReader) *JobHandler {
	return &JobHandler{submitter: submitter, jobs: jobs}
}

// SubmitJob handles POST /api/v1/jobs.
// The body is the same JSON message accepted on the queue.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var msg domain.TransformationMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	id, err := h.submitter.Submit(c.Request.Context(), msg.ToRequest())
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": id,
			"status": domain.JobStatusPending,
		})
	case errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"job_id": id,
			"error":  err.Error(),
		})
	case errors.Is(err, domain.ErrMissingProject), errors.Is(err, domain.ErrMissingSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		middleware.GetLogger(c).WithError(err).Error("Failed to submit job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job: " + err.Error(),
		})
	}
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}

	jobs, err := h.jobs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
