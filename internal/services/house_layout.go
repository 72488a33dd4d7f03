package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	apperrors "github.com/domushq/domus/pkg/errors"
)

// HouseInfo is the header of a house layout.
type HouseInfo struct {
	ID                       uint   `json:"id"`
	Name                     string `json:"name"`
	Address                  string `json:"address"`
	Slug                     string `json:"slug"`
	NonResidentialFirstFloor bool   `json:"non_residential_first_floor"`
}

// EntranceInfo describes the shape of an entrance.
type EntranceInfo struct {
	ID                 uint `json:"id"`
	EntranceNumber     int  `json:"entrance_number"`
	FloorsCount        int  `json:"floors_count"`
	ApartmentsPerFloor int  `json:"apartments_per_floor"`
}

// ApartmentLayout lists the occupants of one apartment.
type ApartmentLayout[R any] struct {
	ID              uint `json:"id"`
	EntranceID      uint `json:"entrance_id"`
	FloorNumber     int  `json:"floor_number"`
	ApartmentNumber int  `json:"apartment_number"`
	IsOccupied      bool `json:"is_occupied"`
	Residents       []R  `json:"residents"`
}

// SpotLayout lists the occupants of one parking spot.
type SpotLayout[R any] struct {
	SpotNumber string `json:"spot_number"`
	Residents  []R    `json:"residents"`
}

// ParkingLayout is a parking level with its occupied spots.
type ParkingLayout[R any] struct {
	ID         uint            `json:"id"`
	Level      int             `json:"level"`
	SpotsCount int             `json:"spots_count"`
	Spots      []SpotLayout[R] `json:"spots"`
}

// UnitLayout lists the occupants of one storage unit.
type UnitLayout[R any] struct {
	UnitNumber string `json:"unit_number"`
	Residents  []R    `json:"residents"`
}

// StorageLayout is a storage level with its occupied units.
type StorageLayout[R any] struct {
	ID         uint            `json:"id"`
	Level      int             `json:"level"`
	UnitsCount int             `json:"units_count"`
	Units      []UnitLayout[R] `json:"units"`
}

// HouseLayout is the full occupancy picture of a house. R is the resident
// projection: unmasked for staff, masked for the public board.
type HouseLayout[R any] struct {
	House      HouseInfo            `json:"house"`
	Entrances  []EntranceInfo       `json:"entrances"`
	Apartments []ApartmentLayout[R] `json:"apartments"`
	Parkings   []ParkingLayout[R]   `json:"parkings"`
	Storages   []StorageLayout[R]   `json:"storages"`
	Unassigned []R                  `json:"unassigned_residents"`
}

// houseGraph holds every row that makes up one house.
type houseGraph struct {
	house          models.House
	entrances      []models.Entrance
	apartments     []models.Apartment
	parkings       []models.Parking
	storages       []models.StorageUnit
	residents      []models.Resident
	apartmentLinks []models.ResidentApartment
	parkingLinks   []models.ResidentParking
	storageLinks   []models.ResidentStorage
}

var errHouseNotFound = apperrors.ErrNotFound.WithMessage("House not found")

// loadHouseGraph reads a house selected by column = value together with its
// structure, residents and occupancy links.
func loadHouseGraph(ctx context.Context, db *gorm.DB, column string, value any) (*houseGraph, error) {
	db = db.WithContext(ctx)

	g := &houseGraph{}
	err := db.Where(column+" = ?", value).Take(&g.house).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errHouseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("house layout: load house: %w", err)
	}
	houseID := g.house.ID

	if err := db.Where("house_id = ?", houseID).Order("entrance_number").Find(&g.entrances).Error; err != nil {
		return nil, fmt.Errorf("house layout: load entrances: %w", err)
	}
	if len(g.entrances) > 0 {
		entranceIDs := make([]uint, 0, len(g.entrances))
		for _, entrance := range g.entrances {
			entranceIDs = append(entranceIDs, entrance.ID)
		}
		if err := db.Where("entrance_id IN ?", entranceIDs).
			Order("entrance_id").Order("floor_number DESC").Order("apartment_number").
			Find(&g.apartments).Error; err != nil {
			return nil, fmt.Errorf("house layout: load apartments: %w", err)
		}
	}
	if err := db.Where("house_id = ?", houseID).Order("level DESC").Find(&g.parkings).Error; err != nil {
		return nil, fmt.Errorf("house layout: load parkings: %w", err)
	}
	if err := db.Where("house_id = ?", houseID).Order("level DESC").Find(&g.storages).Error; err != nil {
		return nil, fmt.Errorf("house layout: load storages: %w", err)
	}
	if err := db.Preload("Privacy").Where("house_id = ?", houseID).Order("id").Find(&g.residents).Error; err != nil {
		return nil, fmt.Errorf("house layout: load residents: %w", err)
	}

	if ids := apartmentIDs(g.apartments); len(ids) > 0 {
		if err := db.Where("apartment_id IN ?", ids).Order("resident_id").Find(&g.apartmentLinks).Error; err != nil {
			return nil, fmt.Errorf("house layout: load apartment links: %w", err)
		}
	}
	if ids := parkingIDs(g.parkings); len(ids) > 0 {
		if err := db.Where("parking_id IN ?", ids).Order("resident_id").Find(&g.parkingLinks).Error; err != nil {
			return nil, fmt.Errorf("house layout: load parking links: %w", err)
		}
	}
	if ids := storageIDs(g.storages); len(ids) > 0 {
		if err := db.Where("storage_id IN ?", ids).Order("resident_id").Find(&g.storageLinks).Error; err != nil {
			return nil, fmt.Errorf("house layout: load storage links: %w", err)
		}
	}
	return g, nil
}

// buildLayout projects the graph with render. Links to residents of another
// house are dropped.
func buildLayout[R any](g *houseGraph, render func(resident models.Resident, linkType string) R) HouseLayout[R] {
	byID := make(map[uint]models.Resident, len(g.residents))
	for _, resident := range g.residents {
		byID[resident.ID] = resident
	}
	linked := make(map[uint]bool, len(g.residents))

	out := HouseLayout[R]{
		House: HouseInfo{
			ID:                       g.house.ID,
			Name:                     g.house.Name,
			Address:                  g.house.Address,
			Slug:                     g.house.Slug,
			NonResidentialFirstFloor: g.house.NonResidentialFirstFloor,
		},
		Entrances:  make([]EntranceInfo, 0, len(g.entrances)),
		Apartments: make([]ApartmentLayout[R], 0, len(g.apartments)),
		Parkings:   make([]ParkingLayout[R], 0, len(g.parkings)),
		Storages:   make([]StorageLayout[R], 0, len(g.storages)),
		Unassigned: []R{},
	}

	for _, entrance := range g.entrances {
		out.Entrances = append(out.Entrances, EntranceInfo{
			ID:                 entrance.ID,
			EntranceNumber:     entrance.EntranceNumber,
			FloorsCount:        entrance.FloorsCount,
			ApartmentsPerFloor: entrance.ApartmentsPerFloor,
		})
	}

	byApartment := make(map[uint][]R)
	for _, link := range g.apartmentLinks {
		resident, ok := byID[link.ResidentID]
		if !ok {
			continue
		}
		linked[resident.ID] = true
		byApartment[link.ApartmentID] = append(byApartment[link.ApartmentID], render(resident, link.Type))
	}
	for _, apartment := range g.apartments {
		residents := byApartment[apartment.ID]
		if residents == nil {
			residents = []R{}
		}
		out.Apartments = append(out.Apartments, ApartmentLayout[R]{
			ID:              apartment.ID,
			EntranceID:      apartment.EntranceID,
			FloorNumber:     apartment.FloorNumber,
			ApartmentNumber: apartment.ApartmentNumber,
			IsOccupied:      len(residents) > 0,
			Residents:       residents,
		})
	}

	spots := make(map[uint]map[string][]R)
	for _, link := range g.parkingLinks {
		resident, ok := byID[link.ResidentID]
		if !ok {
			continue
		}
		linked[resident.ID] = true
		if spots[link.ParkingID] == nil {
			spots[link.ParkingID] = make(map[string][]R)
		}
		spots[link.ParkingID][link.SpotNumber] = append(spots[link.ParkingID][link.SpotNumber], render(resident, link.Type))
	}
	for _, parking := range g.parkings {
		level := ParkingLayout[R]{ID: parking.ID, Level: parking.Level, SpotsCount: parking.SpotsCount, Spots: []SpotLayout[R]{}}
		for _, number := range sortedNumbers(spots[parking.ID]) {
			level.Spots = append(level.Spots, SpotLayout[R]{SpotNumber: number, Residents: spots[parking.ID][number]})
		}
		out.Parkings = append(out.Parkings, level)
	}

	units := make(map[uint]map[string][]R)
	for _, link := range g.storageLinks {
		resident, ok := byID[link.ResidentID]
		if !ok {
			continue
		}
		linked[resident.ID] = true
		if units[link.StorageID] == nil {
			units[link.StorageID] = make(map[string][]R)
		}
		units[link.StorageID][link.UnitNumber] = append(units[link.StorageID][link.UnitNumber], render(resident, link.Type))
	}
	for _, storage := range g.storages {
		level := StorageLayout[R]{ID: storage.ID, Level: storage.Level, UnitsCount: storage.UnitsCount, Units: []UnitLayout[R]{}}
		for _, number := range sortedNumbers(units[storage.ID]) {
			level.Units = append(level.Units, UnitLayout[R]{UnitNumber: number, Residents: units[storage.ID][number]})
		}
		out.Storages = append(out.Storages, level)
	}

	for _, resident := range g.residents {
		if !linked[resident.ID] {
			out.Unassigned = append(out.Unassigned, render(resident, ""))
		}
	}
	return out
}

// sortedNumbers orders spot and unit labels numerically when both parse,
// lexically otherwise.
func sortedNumbers[R any](groups map[string][]R) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimSpace(keys[i]))
		b, errB := strconv.Atoi(strings.TrimSpace(keys[j]))
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

func apartmentIDs(rows []models.Apartment) []uint {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func parkingIDs(rows []models.Parking) []uint {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func storageIDs(rows []models.StorageUnit) []uint {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
