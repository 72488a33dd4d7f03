package api

import (
	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/handlers"
	"github.com/domushq/domus/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, manager *monitoring.HealthManager) {
	r.GET("/health", handlers.Health())
	r.GET("/api/health", handlers.Health())

	ready := handlers.Readiness(manager)
	r.GET("/health/ready", ready)
	r.GET("/api/health/ready", ready)
}
