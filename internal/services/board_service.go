package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/privacy"
)

// BoardResident is a masked resident as published on the board.
type BoardResident struct {
	privacy.Resident

	Type     string `json:"type,omitempty"`
	IsTenant bool   `json:"is_tenant"`
}

// Board is the public, masked layout of a house.
type Board = HouseLayout[BoardResident]

// BoardService renders the public board. Every resident passes through
// privacy.MaskResident before leaving the service.
type BoardService struct {
	db *gorm.DB
}

// NewBoardService constructs a BoardService.
func NewBoardService(db *gorm.DB) (*BoardService, error) {
	if db == nil {
		return nil, errors.New("board service: db is required")
	}
	return &BoardService{db: db}, nil
}

// Board returns the masked layout of the house with the given slug.
func (s *BoardService) Board(ctx context.Context, slug string) (*Board, error) {
	ctx = ensureContext(ctx)

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errHouseNotFound
	}

	graph, err := loadHouseGraph(ctx, s.db, "slug", slug)
	if err != nil {
		if errors.Is(err, errHouseNotFound) {
			return nil, err
		}
		return nil, internalError(err)
	}

	board := buildLayout(graph, func(resident models.Resident, linkType string) BoardResident {
		return BoardResident{
			Resident: privacy.MaskResident(resident, privacy.FromRecord(resident.Privacy)),
			Type:     linkType,
			IsTenant: linkType == models.OccupancyTenant,
		}
	})
	return &board, nil
}
