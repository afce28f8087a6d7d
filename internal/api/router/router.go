package router

import (
	"github.com/cuongbtq/imagejob-service/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/uploads - Validate an image and get its storage URL
		v1.POST("/uploads", jobHandler.UploadFile)

		jobs := v1.Group("/image-jobs")
		{
			// POST /api/v1/image-jobs - Create a new image job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/image-jobs - List image jobs, newest first
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/image-jobs/:job_id - Get image job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/image-jobs/:job_id/remove-background - Run background removal
			jobs.POST("/:job_id/remove-background", jobHandler.RemoveBackground)

			// PATCH /api/v1/image-jobs/:job_id/status - Partial status update
			jobs.PATCH("/:job_id/status", jobHandler.UpdateJobStatus)
		}
	}

	return r
}
