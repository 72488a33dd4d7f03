package api

import (
	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/handlers"
)

func registerPublicRoutes(api *gin.RouterGroup, board *handlers.BoardHandler) {
	public := api.Group("/public")
	{
		public.GET("/board/:slug", board.Show)
	}
}
