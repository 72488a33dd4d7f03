package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/privacy"
	apperrors "github.com/domushq/domus/pkg/errors"
)

// OccupancyInput links a resident to an apartment, parking spot or storage
// unit by its number within the house.
type OccupancyInput struct {
	Number int  `json:"number" validate:"gt=0"`
	Tenant bool `json:"tenant"`
}

// PrivacyInput carries visibility choices. Nil leaves the field visible.
type PrivacyInput struct {
	ShowFullName *bool `json:"show_full_name"`
	ShowPhone    *bool `json:"show_phone"`
	ShowEmail    *bool `json:"show_email"`
	ShowTelegram *bool `json:"show_telegram"`
}

// ResidentInput describes a resident and the full set of places they occupy.
type ResidentInput struct {
	FullName   string           `json:"full_name" validate:"required,max=255"`
	Phone      string           `json:"phone" validate:"omitempty,max=64,phone"`
	Email      string           `json:"email" validate:"omitempty,email,max=255"`
	Telegram   string           `json:"telegram" validate:"omitempty,telegram"`
	Privacy    *PrivacyInput    `json:"privacy"`
	Apartments []OccupancyInput `json:"apartments" validate:"dive"`
	Parking    []OccupancyInput `json:"parking" validate:"dive"`
	Storages   []OccupancyInput `json:"storages" validate:"dive"`
}

// ResidentDetail is the staff view of a single resident.
type ResidentDetail struct {
	ID         uint             `json:"id"`
	HouseID    uint             `json:"house_id"`
	FullName   string           `json:"full_name"`
	Phone      string           `json:"phone"`
	Email      string           `json:"email"`
	Telegram   string           `json:"telegram"`
	Privacy    privacy.Flags    `json:"privacy"`
	Apartments []OccupancyInput `json:"apartments"`
	Parking    []OccupancyInput `json:"parking"`
	Storages   []OccupancyInput `json:"storages"`
}

var errResidentNotFound = apperrors.ErrNotFound.WithMessage("Resident not found")

// ResidentService maintains residents and their occupancy links. Every
// operation is addressed through the house so the scope gate on the house id
// also bounds the resident.
type ResidentService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewResidentService constructs a ResidentService.
func NewResidentService(db *gorm.DB, audit *AuditService) (*ResidentService, error) {
	if db == nil {
		return nil, errors.New("resident service: db is required")
	}
	return &ResidentService{db: db, audit: audit}, nil
}

// Create adds a resident to the house and links it to the listed places.
func (s *ResidentService) Create(ctx context.Context, houseID uint, input ResidentInput) (*ResidentDetail, error) {
	ctx = ensureContext(ctx)

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, apperrors.NewValidation("full_name is required")
	}
	if err := s.ensureHouse(ctx, houseID); err != nil {
		return nil, err
	}
	links, err := s.resolveLinks(ctx, houseID, input)
	if err != nil {
		return nil, err
	}

	resident := models.Resident{
		HouseID:  houseID,
		FullName: fullName,
		Phone:    strings.TrimSpace(input.Phone),
		Email:    strings.TrimSpace(input.Email),
		Telegram: strings.TrimSpace(input.Telegram),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&resident).Error; err != nil {
			return fmt.Errorf("resident service: create resident: %w", err)
		}
		if input.Privacy != nil {
			if err := upsertPrivacy(tx, resident.ID, *input.Privacy); err != nil {
				return err
			}
		}
		return links.replace(tx, resident.ID)
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "resident.create",
		Resource: fmt.Sprintf("resident:%d", resident.ID),
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"house_id": houseID},
	})
	return s.Get(ctx, houseID, resident.ID)
}

// Get returns a resident of the house.
func (s *ResidentService) Get(ctx context.Context, houseID, residentID uint) (*ResidentDetail, error) {
	ctx = ensureContext(ctx)

	resident, err := s.find(ctx, houseID, residentID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	detail := &ResidentDetail{
		ID:         resident.ID,
		HouseID:    resident.HouseID,
		FullName:   resident.FullName,
		Phone:      resident.Phone,
		Email:      resident.Email,
		Telegram:   resident.Telegram,
		Privacy:    privacy.FromRecord(resident.Privacy),
		Apartments: []OccupancyInput{},
		Parking:    []OccupancyInput{},
		Storages:   []OccupancyInput{},
	}

	var apartments []struct {
		ApartmentNumber int
		Type            string
	}
	if err := db.Table("resident_apartments").
		Select("apartments.apartment_number, resident_apartments.type").
		Joins("JOIN apartments ON apartments.id = resident_apartments.apartment_id").
		Where("resident_apartments.resident_id = ?", resident.ID).
		Order("apartments.apartment_number").
		Scan(&apartments).Error; err != nil {
		return nil, internalError(fmt.Errorf("resident service: load apartments: %w", err))
	}
	for _, row := range apartments {
		detail.Apartments = append(detail.Apartments, OccupancyInput{Number: row.ApartmentNumber, Tenant: row.Type == models.OccupancyTenant})
	}

	var parking []models.ResidentParking
	if err := db.Where("resident_id = ?", resident.ID).Find(&parking).Error; err != nil {
		return nil, internalError(fmt.Errorf("resident service: load parking: %w", err))
	}
	for _, row := range parking {
		if n, err := strconv.Atoi(row.SpotNumber); err == nil {
			detail.Parking = append(detail.Parking, OccupancyInput{Number: n, Tenant: row.Type == models.OccupancyTenant})
		}
	}

	var storages []models.ResidentStorage
	if err := db.Where("resident_id = ?", resident.ID).Find(&storages).Error; err != nil {
		return nil, internalError(fmt.Errorf("resident service: load storages: %w", err))
	}
	for _, row := range storages {
		if n, err := strconv.Atoi(row.UnitNumber); err == nil {
			detail.Storages = append(detail.Storages, OccupancyInput{Number: n, Tenant: row.Type == models.OccupancyTenant})
		}
	}
	return detail, nil
}

// Update replaces the resident's contact data and links. Privacy is only
// touched when provided.
func (s *ResidentService) Update(ctx context.Context, houseID, residentID uint, input ResidentInput) (*ResidentDetail, error) {
	ctx = ensureContext(ctx)

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, apperrors.NewValidation("full_name is required")
	}
	resident, err := s.find(ctx, houseID, residentID)
	if err != nil {
		return nil, err
	}
	links, err := s.resolveLinks(ctx, houseID, input)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Resident{}).Where("id = ?", resident.ID).Updates(map[string]any{
			"full_name": fullName,
			"phone":     strings.TrimSpace(input.Phone),
			"email":     strings.TrimSpace(input.Email),
			"telegram":  strings.TrimSpace(input.Telegram),
		}).Error; err != nil {
			return fmt.Errorf("resident service: update resident: %w", err)
		}
		if input.Privacy != nil {
			if err := upsertPrivacy(tx, resident.ID, *input.Privacy); err != nil {
				return err
			}
		}
		return links.replace(tx, resident.ID)
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "resident.update",
		Resource: fmt.Sprintf("resident:%d", resident.ID),
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"house_id": houseID},
	})
	return s.Get(ctx, houseID, resident.ID)
}

// UpdatePrivacy stores the resident's visibility choices and returns the
// resolved flags.
func (s *ResidentService) UpdatePrivacy(ctx context.Context, houseID, residentID uint, input PrivacyInput) (privacy.Flags, error) {
	ctx = ensureContext(ctx)

	resident, err := s.find(ctx, houseID, residentID)
	if err != nil {
		return privacy.Flags{}, err
	}
	if err := upsertPrivacy(s.db.WithContext(ctx), resident.ID, input); err != nil {
		return privacy.Flags{}, apperrors.FromError(err)
	}

	flags := privacy.FromRecord(privacyRecord(resident.ID, input))
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "resident.privacy.update",
		Resource: fmt.Sprintf("resident:%d", resident.ID),
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"flags": flags},
	})
	return flags, nil
}

// Delete removes a resident with its links and privacy record.
func (s *ResidentService) Delete(ctx context.Context, houseID, residentID uint) error {
	ctx = ensureContext(ctx)

	resident, err := s.find(ctx, houseID, residentID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.ResidentApartment{},
			&models.ResidentParking{},
			&models.ResidentStorage{},
			&models.ResidentPrivacy{},
		} {
			if err := tx.Where("resident_id = ?", resident.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("resident service: delete %T: %w", model, err)
			}
		}
		if err := tx.Delete(&models.Resident{}, resident.ID).Error; err != nil {
			return fmt.Errorf("resident service: delete resident: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.FromError(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "resident.delete",
		Resource: fmt.Sprintf("resident:%d", resident.ID),
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"house_id": houseID},
	})
	return nil
}

func (s *ResidentService) ensureHouse(ctx context.Context, houseID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.House{}).Where("id = ?", houseID).Count(&count).Error; err != nil {
		return internalError(fmt.Errorf("resident service: check house: %w", err))
	}
	if count == 0 {
		return errHouseNotFound
	}
	return nil
}

func (s *ResidentService) find(ctx context.Context, houseID, residentID uint) (*models.Resident, error) {
	var resident models.Resident
	err := s.db.WithContext(ctx).Preload("Privacy").
		Where("id = ? AND house_id = ?", residentID, houseID).
		Take(&resident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errResidentNotFound
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("resident service: find resident: %w", err))
	}
	return &resident, nil
}

// residentLinks holds resolved link rows without the resident id.
type residentLinks struct {
	apartments []models.ResidentApartment
	parking    []models.ResidentParking
	storages   []models.ResidentStorage
}

func (l residentLinks) replace(tx *gorm.DB, residentID uint) error {
	for _, model := range []any{&models.ResidentApartment{}, &models.ResidentParking{}, &models.ResidentStorage{}} {
		if err := tx.Where("resident_id = ?", residentID).Delete(model).Error; err != nil {
			return fmt.Errorf("resident service: clear %T: %w", model, err)
		}
	}
	for i := range l.apartments {
		l.apartments[i].ResidentID = residentID
	}
	for i := range l.parking {
		l.parking[i].ResidentID = residentID
	}
	for i := range l.storages {
		l.storages[i].ResidentID = residentID
	}
	if len(l.apartments) > 0 {
		if err := tx.Create(&l.apartments).Error; err != nil {
			return fmt.Errorf("resident service: link apartments: %w", err)
		}
	}
	if len(l.parking) > 0 {
		if err := tx.Create(&l.parking).Error; err != nil {
			return fmt.Errorf("resident service: link parking: %w", err)
		}
	}
	if len(l.storages) > 0 {
		if err := tx.Create(&l.storages).Error; err != nil {
			return fmt.Errorf("resident service: link storages: %w", err)
		}
	}
	return nil
}

// resolveLinks maps place numbers to rows of the house. Apartments match by
// apartment number. Parking spots and storage units are numbered through all
// levels in id order, so level two continues where level one ends.
func (s *ResidentService) resolveLinks(ctx context.Context, houseID uint, input ResidentInput) (residentLinks, error) {
	db := s.db.WithContext(ctx)
	var links residentLinks

	if len(input.Apartments) > 0 {
		var apartments []models.Apartment
		if err := db.Model(&models.Apartment{}).
			Joins("JOIN entrances ON entrances.id = apartments.entrance_id").
			Where("entrances.house_id = ?", houseID).
			Find(&apartments).Error; err != nil {
			return links, internalError(fmt.Errorf("resident service: load apartments: %w", err))
		}
		byNumber := make(map[int]uint, len(apartments))
		for _, apartment := range apartments {
			byNumber[apartment.ApartmentNumber] = apartment.ID
		}
		seen := make(map[uint]bool)
		for _, item := range input.Apartments {
			id, ok := byNumber[item.Number]
			if !ok {
				return links, apperrors.NewValidation(fmt.Sprintf("apartment %d not found in house", item.Number))
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			links.apartments = append(links.apartments, models.ResidentApartment{ApartmentID: id, Type: occupancyType(item.Tenant)})
		}
	}

	if len(input.Parking) > 0 {
		var levels []models.Parking
		if err := db.Where("house_id = ?", houseID).Order("id").Find(&levels).Error; err != nil {
			return links, internalError(fmt.Errorf("resident service: load parkings: %w", err))
		}
		ranges := make([]numberRange, 0, len(levels))
		for _, level := range levels {
			ranges = append(ranges, numberRange{id: level.ID, size: level.SpotsCount})
		}
		seen := make(map[string]bool)
		for _, item := range input.Parking {
			id, ok := locate(ranges, item.Number)
			if !ok {
				return links, apperrors.NewValidation(fmt.Sprintf("parking spot %d is out of range 1-%d", item.Number, total(ranges)))
			}
			spot := strconv.Itoa(item.Number)
			if seen[spot] {
				continue
			}
			seen[spot] = true
			links.parking = append(links.parking, models.ResidentParking{ParkingID: id, SpotNumber: spot, Type: occupancyType(item.Tenant)})
		}
	}

	if len(input.Storages) > 0 {
		var levels []models.StorageUnit
		if err := db.Where("house_id = ?", houseID).Order("id").Find(&levels).Error; err != nil {
			return links, internalError(fmt.Errorf("resident service: load storages: %w", err))
		}
		ranges := make([]numberRange, 0, len(levels))
		for _, level := range levels {
			ranges = append(ranges, numberRange{id: level.ID, size: level.UnitsCount})
		}
		seen := make(map[string]bool)
		for _, item := range input.Storages {
			id, ok := locate(ranges, item.Number)
			if !ok {
				return links, apperrors.NewValidation(fmt.Sprintf("storage unit %d is out of range 1-%d", item.Number, total(ranges)))
			}
			unit := strconv.Itoa(item.Number)
			if seen[unit] {
				continue
			}
			seen[unit] = true
			links.storages = append(links.storages, models.ResidentStorage{StorageID: id, UnitNumber: unit, Type: occupancyType(item.Tenant)})
		}
	}
	return links, nil
}

type numberRange struct {
	id   uint
	size int
}

func locate(ranges []numberRange, number int) (uint, bool) {
	start := 1
	for _, r := range ranges {
		if number >= start && number < start+r.size {
			return r.id, true
		}
		start += r.size
	}
	return 0, false
}

func total(ranges []numberRange) int {
	n := 0
	for _, r := range ranges {
		n += r.size
	}
	return n
}

func occupancyType(tenant bool) string {
	if tenant {
		return models.OccupancyTenant
	}
	return models.OccupancyOwner
}

func privacyRecord(residentID uint, input PrivacyInput) *models.ResidentPrivacy {
	return &models.ResidentPrivacy{
		ResidentID:   residentID,
		ShowFullName: input.ShowFullName,
		ShowPhone:    input.ShowPhone,
		ShowEmail:    input.ShowEmail,
		ShowTelegram: input.ShowTelegram,
	}
}

func upsertPrivacy(tx *gorm.DB, residentID uint, input PrivacyInput) error {
	record := privacyRecord(residentID, input)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resident_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"show_full_name", "show_phone", "show_email", "show_telegram"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("resident service: store privacy: %w", err)
	}
	return nil
}
