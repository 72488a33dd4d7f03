package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/monitoring"
	"github.com/domushq/domus/pkg/response"
)

// Health returns a simple liveness payload.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// Readiness evaluates the dependency probes and reports 503 while any of
// them is down.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(c.Request.Context())
		if !report.Ready {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Data:    report,
				Error: &response.ErrorInfo{
					Code:    "NOT_READY",
					Message: "Service is not ready",
				},
			})
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}
