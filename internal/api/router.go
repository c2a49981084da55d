package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/transformer/internal/api/handler"
	"github.com/timmy/transformer/internal/api/middleware"
	"github.com/timmy/transformer/internal/config"
	"github.com/timmy/transformer/internal/logger"
)

// JobStore is what the HTTP API needs from the job repository.
type JobStore interface {
	handler.JobReader
	handler.StatusReporter
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	submitter handler.Submitter,
	jobs JobStore,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(jobs)
	jobHandler := handler.NewJobHandler(submitter, jobs)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", jobHandler.SubmitJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
	}

	return r
}
