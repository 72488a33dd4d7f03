package api

import (
	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/handlers"
	"github.com/domushq/domus/internal/middleware"
	"github.com/domushq/domus/internal/permissions"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler) {
	users := api.Group("/users")
	{
		users.GET("", middleware.RequirePermission(permissions.UserRead), handler.List)
		users.POST("/admins", middleware.RequirePermission(permissions.UserCreateAdmin), handler.CreateAdmin)
		users.POST("/managers", middleware.RequirePermission(permissions.UserManagerCreate), handler.CreateManager)
		users.PATCH("/managers/:id", middleware.RequirePermission(permissions.UserManagerUpdate), handler.UpdateManager)
		users.POST("/:id/disable", middleware.RequirePermission(permissions.UserDisable), handler.Disable)
		users.POST("/:id/enable", middleware.RequirePermission(permissions.UserDisable), handler.Enable)
		users.DELETE("/:id", middleware.RequirePermission(permissions.UserDelete), handler.Delete)
		users.POST("/:id/roles", middleware.RequirePermission(permissions.RoleAssignPermissions), handler.SetRole)
		users.POST("/:id/boosts", middleware.RequirePermission(permissions.RoleAssignPermissions), handler.SetBoosts)
		users.POST("/:id/delegation-cap", middleware.RequirePermission(permissions.RoleAssignPermissions), handler.SetDelegationCap)
	}

	api.GET("/roles", middleware.RequirePermission(permissions.UserRead), handler.ListRoles)
	api.GET("/permissions", middleware.RequirePermission(permissions.RoleAssignPermissions), handler.ListPermissions)
}
