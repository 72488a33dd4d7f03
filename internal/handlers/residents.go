package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/response"
)

// ResidentHandler manages residents of a single house. Routes are nested
// under the house id so the scope gate covers every resident operation.
type ResidentHandler struct {
	service *services.ResidentService
}

// NewResidentHandler constructs a ResidentHandler.
func NewResidentHandler(service *services.ResidentService) *ResidentHandler {
	return &ResidentHandler{service: service}
}

func (h *ResidentHandler) ids(c *gin.Context) (uint, uint, bool) {
	houseID, ok := houseIDParam(c, "house_id")
	if !ok {
		return 0, 0, false
	}
	residentID, ok := houseIDParam(c, "resident_id")
	if !ok {
		return 0, 0, false
	}
	return houseID, residentID, true
}

// POST /api/houses/:house_id/residents
func (h *ResidentHandler) Create(c *gin.Context) {
	houseID, ok := houseIDParam(c, "house_id")
	if !ok {
		return
	}

	var body services.ResidentInput
	if !bindAndValidate(c, &body) {
		return
	}

	detail, err := h.service.Create(requestContext(c), houseID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, detail)
}

// GET /api/houses/:house_id/residents/:resident_id
func (h *ResidentHandler) Get(c *gin.Context) {
	houseID, residentID, ok := h.ids(c)
	if !ok {
		return
	}

	detail, err := h.service.Get(requestContext(c), houseID, residentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PUT /api/houses/:house_id/residents/:resident_id
func (h *ResidentHandler) Update(c *gin.Context) {
	houseID, residentID, ok := h.ids(c)
	if !ok {
		return
	}

	var body services.ResidentInput
	if !bindAndValidate(c, &body) {
		return
	}

	detail, err := h.service.Update(requestContext(c), houseID, residentID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PATCH /api/houses/:house_id/residents/:resident_id/privacy
func (h *ResidentHandler) UpdatePrivacy(c *gin.Context) {
	houseID, residentID, ok := h.ids(c)
	if !ok {
		return
	}

	var body services.PrivacyInput
	if !bindAndValidate(c, &body) {
		return
	}

	flags, err := h.service.UpdatePrivacy(requestContext(c), houseID, residentID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"privacy": flags})
}

// DELETE /api/houses/:house_id/residents/:resident_id
func (h *ResidentHandler) Delete(c *gin.Context) {
	houseID, residentID, ok := h.ids(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), houseID, residentID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
