package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/response"
)

// HouseHandler serves the staff read model of houses.
type HouseHandler struct {
	service *services.HouseService
}

// NewHouseHandler constructs a HouseHandler.
func NewHouseHandler(service *services.HouseService) *HouseHandler {
	return &HouseHandler{service: service}
}

// GET /api/houses
func (h *HouseHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	houses, err := h.service.ListVisible(requestContext(c), p.Scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, houses, &response.Meta{Total: len(houses)})
}

// GET /api/houses/:house_id/structure
func (h *HouseHandler) Structure(c *gin.Context) {
	houseID, ok := houseIDParam(c, "house_id")
	if !ok {
		return
	}

	structure, err := h.service.Structure(requestContext(c), houseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, structure)
}
