package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/privacy"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/logger"
)

// HouseSummary is a house with its occupancy figures.
type HouseSummary struct {
	HouseInfo

	TotalApartments        int64 `json:"total_apartments"`
	TotalParkingSpots      int64 `json:"total_parking_spots"`
	TotalStorages          int64 `json:"total_storages"`
	OccupiedApartments     int64 `json:"occupied_apartments"`
	OccupiedParking        int64 `json:"occupied_parking"`
	OccupiedStorages       int64 `json:"occupied_storages"`
	ApartmentOccupancyRate int   `json:"apartment_occupancy_rate"`
	ParkingOccupancyRate   int   `json:"parking_occupancy_rate"`
	StorageOccupancyRate   int   `json:"storage_occupancy_rate"`
	TotalResidents         int64 `json:"total_residents"`
}

// StructureResident is the staff view of a resident with resolved flags.
type StructureResident struct {
	ID       uint          `json:"id"`
	FullName string        `json:"full_name"`
	Phone    string        `json:"phone"`
	Email    string        `json:"email"`
	Telegram string        `json:"telegram"`
	Privacy  privacy.Flags `json:"privacy"`
	Type     string        `json:"type,omitempty"`
	IsTenant bool          `json:"is_tenant"`
}

// HouseStructure is the unmasked layout served to staff.
type HouseStructure = HouseLayout[StructureResident]

// HouseService serves the read model of houses to authenticated staff.
type HouseService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewHouseService constructs a HouseService.
func NewHouseService(db *gorm.DB) (*HouseService, error) {
	if db == nil {
		return nil, errors.New("house service: db is required")
	}
	return &HouseService{db: db, log: logger.WithModule("houses")}, nil
}

// ListVisible returns the houses inside scope ordered by name.
func (s *HouseService) ListVisible(ctx context.Context, scope rbac.Scope) ([]HouseSummary, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.House{})
	if !scope.IsAll() {
		ids := scope.HouseIDs()
		if len(ids) == 0 {
			return []HouseSummary{}, nil
		}
		query = query.Where("id IN ?", ids)
	}

	var houses []models.House
	if err := query.Order("name").Order("id").Find(&houses).Error; err != nil {
		return nil, internalError(fmt.Errorf("house service: list houses: %w", err))
	}
	if len(houses) == 0 {
		return []HouseSummary{}, nil
	}

	ids := make([]uint, 0, len(houses))
	for _, house := range houses {
		ids = append(ids, house.ID)
	}
	stats, err := s.occupancy(ctx, ids)
	if err != nil {
		return nil, internalError(err)
	}

	out := make([]HouseSummary, 0, len(houses))
	for _, house := range houses {
		st := stats[house.ID]
		out = append(out, HouseSummary{
			HouseInfo: HouseInfo{
				ID:                       house.ID,
				Name:                     house.Name,
				Address:                  house.Address,
				Slug:                     house.Slug,
				NonResidentialFirstFloor: house.NonResidentialFirstFloor,
			},
			TotalApartments:        st.apartments,
			TotalParkingSpots:      st.parkingSpots,
			TotalStorages:          st.storageUnits,
			OccupiedApartments:     st.occupiedApartments,
			OccupiedParking:        st.occupiedParking,
			OccupiedStorages:       st.occupiedStorages,
			ApartmentOccupancyRate: percent(st.occupiedApartments, st.apartments),
			ParkingOccupancyRate:   percent(st.occupiedParking, st.parkingSpots),
			StorageOccupancyRate:   percent(st.occupiedStorages, st.storageUnits),
			TotalResidents:         st.residents,
		})
	}
	return out, nil
}

// Structure returns the unmasked layout of a house with each resident's
// resolved privacy flags.
func (s *HouseService) Structure(ctx context.Context, houseID uint) (*HouseStructure, error) {
	ctx = ensureContext(ctx)

	graph, err := loadHouseGraph(ctx, s.db, "id", houseID)
	if err != nil {
		if errors.Is(err, errHouseNotFound) {
			return nil, err
		}
		return nil, internalError(err)
	}

	layout := buildLayout(graph, func(resident models.Resident, linkType string) StructureResident {
		return StructureResident{
			ID:       resident.ID,
			FullName: resident.FullName,
			Phone:    resident.Phone,
			Email:    resident.Email,
			Telegram: resident.Telegram,
			Privacy:  privacy.FromRecord(resident.Privacy),
			Type:     linkType,
			IsTenant: linkType == models.OccupancyTenant,
		}
	})
	return &layout, nil
}

type houseStats struct {
	apartments         int64
	occupiedApartments int64
	residents          int64
	parkingSpots       int64
	occupiedParking    int64
	storageUnits       int64
	occupiedStorages   int64
}

type houseCount struct {
	HouseID uint
	N       int64
}

// occupancy aggregates per-house counters. Parking and storage occupancy
// count distinct non-empty spot and unit labels.
func (s *HouseService) occupancy(ctx context.Context, ids []uint) (map[uint]*houseStats, error) {
	db := s.db.WithContext(ctx)
	stats := make(map[uint]*houseStats, len(ids))
	for _, id := range ids {
		stats[id] = &houseStats{}
	}

	queries := []struct {
		name  string
		query *gorm.DB
		apply func(st *houseStats, n int64)
	}{
		{
			name: "apartments",
			query: db.Table("apartments").
				Select("entrances.house_id AS house_id, COUNT(apartments.id) AS n").
				Joins("JOIN entrances ON entrances.id = apartments.entrance_id").
				Where("entrances.house_id IN ?", ids).
				Group("entrances.house_id"),
			apply: func(st *houseStats, n int64) { st.apartments = n },
		},
		{
			name: "occupied apartments",
			query: db.Table("resident_apartments").
				Select("entrances.house_id AS house_id, COUNT(DISTINCT resident_apartments.apartment_id) AS n").
				Joins("JOIN apartments ON apartments.id = resident_apartments.apartment_id").
				Joins("JOIN entrances ON entrances.id = apartments.entrance_id").
				Where("entrances.house_id IN ?", ids).
				Group("entrances.house_id"),
			apply: func(st *houseStats, n int64) { st.occupiedApartments = n },
		},
		{
			name: "residents",
			query: db.Table("resident_apartments").
				Select("entrances.house_id AS house_id, COUNT(DISTINCT resident_apartments.resident_id) AS n").
				Joins("JOIN apartments ON apartments.id = resident_apartments.apartment_id").
				Joins("JOIN entrances ON entrances.id = apartments.entrance_id").
				Where("entrances.house_id IN ?", ids).
				Group("entrances.house_id"),
			apply: func(st *houseStats, n int64) { st.residents = n },
		},
		{
			name: "parking spots",
			query: db.Table("parkings").
				Select("house_id, COALESCE(SUM(spots_count), 0) AS n").
				Where("house_id IN ?", ids).
				Group("house_id"),
			apply: func(st *houseStats, n int64) { st.parkingSpots = n },
		},
		{
			name: "occupied parking",
			query: db.Table("resident_parkings").
				Select("parkings.house_id AS house_id, COUNT(DISTINCT TRIM(resident_parkings.spot_number)) AS n").
				Joins("JOIN parkings ON parkings.id = resident_parkings.parking_id").
				Where("parkings.house_id IN ?", ids).
				Where("TRIM(resident_parkings.spot_number) <> ''").
				Group("parkings.house_id"),
			apply: func(st *houseStats, n int64) { st.occupiedParking = n },
		},
		{
			name: "storage units",
			query: db.Table("storages").
				Select("house_id, COALESCE(SUM(units_count), 0) AS n").
				Where("house_id IN ?", ids).
				Group("house_id"),
			apply: func(st *houseStats, n int64) { st.storageUnits = n },
		},
		{
			name: "occupied storages",
			query: db.Table("resident_storage").
				Select("storages.house_id AS house_id, COUNT(DISTINCT TRIM(resident_storage.unit_number)) AS n").
				Joins("JOIN storages ON storages.id = resident_storage.storage_id").
				Where("storages.house_id IN ?", ids).
				Where("TRIM(resident_storage.unit_number) <> ''").
				Group("storages.house_id"),
			apply: func(st *houseStats, n int64) { st.occupiedStorages = n },
		},
	}

	for _, q := range queries {
		var rows []houseCount
		if err := q.query.Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("house service: count %s: %w", q.name, err)
		}
		for _, row := range rows {
			if st, ok := stats[row.HouseID]; ok {
				q.apply(st, row.N)
			}
		}
	}
	return stats, nil
}

func percent(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
