package api

import (
	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/handlers"
	"github.com/domushq/domus/internal/middleware"
	"github.com/domushq/domus/internal/permissions"
)

func registerHouseRoutes(api *gin.RouterGroup, houses *handlers.HouseHandler, residents *handlers.ResidentHandler) {
	inScope := middleware.RequireScope("house_id")
	canRead := middleware.RequirePermission(permissions.ResidentRead)
	canManage := middleware.RequirePermission(permissions.ResidentManage)

	api.GET("/houses", middleware.RequirePermission(permissions.HouseRead), houses.List)

	house := api.Group("/houses/:house_id")
	{
		house.GET("/structure", middleware.RequirePermission(permissions.HouseRead), inScope, houses.Structure)

		house.POST("/residents", canManage, inScope, residents.Create)
		house.GET("/residents/:resident_id", canRead, inScope, residents.Get)
		house.PUT("/residents/:resident_id", canManage, inScope, residents.Update)
		house.PATCH("/residents/:resident_id/privacy", canManage, inScope, residents.UpdatePrivacy)
		house.DELETE("/residents/:resident_id", canManage, inScope, residents.Delete)
	}
}
