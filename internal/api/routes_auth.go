package api

import (
	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/handlers"
)

func registerAuthRoutes(api, protected *gin.RouterGroup, handler *handlers.AuthHandler, limiter []gin.HandlerFunc) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", withLimiter(limiter, handler.Login)...)
		auth.POST("/refresh", withLimiter(limiter, handler.Refresh)...)
		auth.POST("/logout", handler.Logout)
	}

	protected.GET("/auth/me", handler.Me)
}

func withLimiter(limiter []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(limiter)+1)
	chain = append(chain, limiter...)
	return append(chain, handler)
}
