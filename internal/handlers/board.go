package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/response"
)

// BoardHandler serves the public resident board.
type BoardHandler struct {
	service *services.BoardService
}

// NewBoardHandler constructs a BoardHandler.
func NewBoardHandler(service *services.BoardService) *BoardHandler {
	return &BoardHandler{service: service}
}

// GET /api/public/board/:slug
func (h *BoardHandler) Show(c *gin.Context) {
	board, err := h.service.Board(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.Success(c, http.StatusOK, board)
}
