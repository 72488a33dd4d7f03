package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/database/testutil"
	"github.com/domushq/domus/internal/models"
	apperrors "github.com/domushq/domus/pkg/errors"
)

func newResidentService(t *testing.T) (*ResidentService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewResidentService(db, audit)
	require.NoError(t, err)
	return svc, db
}

func TestCreateResidentLinksPlaces(t *testing.T) {
	svc, db := newResidentService(t)
	house := seedHouse(t, db, "Oak", "oak")

	detail, err := svc.Create(context.Background(), house.house.ID, ResidentInput{
		FullName:   "  Anna Petrova ",
		Phone:      "+7 900",
		Privacy:    &PrivacyInput{ShowPhone: boolPtr(false)},
		Apartments: []OccupancyInput{{Number: 2}, {Number: 2}},
		Parking:    []OccupancyInput{{Number: 7, Tenant: true}},
		Storages:   []OccupancyInput{{Number: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, "Anna Petrova", detail.FullName)
	require.False(t, detail.Privacy.Phone)
	require.True(t, detail.Privacy.Email)
	require.Equal(t, []OccupancyInput{{Number: 2}}, detail.Apartments)
	require.Equal(t, []OccupancyInput{{Number: 7, Tenant: true}}, detail.Parking)
	require.Equal(t, []OccupancyInput{{Number: 4}}, detail.Storages)

	// Spot 7 falls on the second parking level.
	var link models.ResidentParking
	require.NoError(t, db.Take(&link, "resident_id = ?", detail.ID).Error)
	require.Equal(t, house.parking[1].ID, link.ParkingID)
	require.Equal(t, models.OccupancyTenant, link.Type)

	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "resident.create").Count(&audits).Error)
	require.EqualValues(t, 1, audits)
}

func TestCreateResidentRejectsUnknownPlaces(t *testing.T) {
	svc, db := newResidentService(t)
	house := seedHouse(t, db, "Oak", "oak")
	ctx := context.Background()

	_, err := svc.Create(ctx, house.house.ID, ResidentInput{FullName: "A", Apartments: []OccupancyInput{{Number: 99}}})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Create(ctx, house.house.ID, ResidentInput{FullName: "A", Parking: []OccupancyInput{{Number: 11}}})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Create(ctx, house.house.ID, ResidentInput{FullName: "A", Storages: []OccupancyInput{{Number: 5}}})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Create(ctx, 404, ResidentInput{FullName: "A"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Resident{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestResidentIsBoundToItsHouse(t *testing.T) {
	svc, db := newResidentService(t)
	oak := seedHouse(t, db, "Oak", "oak")
	pine := seedHouse(t, db, "Pine", "pine")
	ctx := context.Background()

	detail, err := svc.Create(ctx, oak.house.ID, ResidentInput{FullName: "Anna Petrova"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, pine.house.ID, detail.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, pine.house.ID, detail.ID), apperrors.ErrNotFound)
	_, err = svc.UpdatePrivacy(ctx, pine.house.ID, detail.ID, PrivacyInput{ShowEmail: boolPtr(false)})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateResidentReplacesLinks(t *testing.T) {
	svc, db := newResidentService(t)
	house := seedHouse(t, db, "Oak", "oak")
	ctx := context.Background()

	detail, err := svc.Create(ctx, house.house.ID, ResidentInput{
		FullName:   "Anna Petrova",
		Apartments: []OccupancyInput{{Number: 1}},
		Parking:    []OccupancyInput{{Number: 1}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, house.house.ID, detail.ID, ResidentInput{
		FullName:   "Anna Sidorova",
		Email:      "anna@example.com",
		Apartments: []OccupancyInput{{Number: 3, Tenant: true}},
	})
	require.NoError(t, err)
	require.Equal(t, "Anna Sidorova", updated.FullName)
	require.Equal(t, "anna@example.com", updated.Email)
	require.Equal(t, []OccupancyInput{{Number: 3, Tenant: true}}, updated.Apartments)
	require.Empty(t, updated.Parking)
}

func TestUpdatePrivacyAndDelete(t *testing.T) {
	svc, db := newResidentService(t)
	house := seedHouse(t, db, "Oak", "oak")
	ctx := context.Background()

	detail, err := svc.Create(ctx, house.house.ID, ResidentInput{FullName: "Anna Petrova", Apartments: []OccupancyInput{{Number: 1}}})
	require.NoError(t, err)

	flags, err := svc.UpdatePrivacy(ctx, house.house.ID, detail.ID, PrivacyInput{ShowFullName: boolPtr(false)})
	require.NoError(t, err)
	require.False(t, flags.FullName)
	require.True(t, flags.Phone)

	flags, err = svc.UpdatePrivacy(ctx, house.house.ID, detail.ID, PrivacyInput{ShowFullName: boolPtr(true), ShowTelegram: boolPtr(false)})
	require.NoError(t, err)
	require.True(t, flags.FullName)
	require.False(t, flags.Telegram)

	require.NoError(t, svc.Delete(ctx, house.house.ID, detail.ID))

	for _, model := range []any{&models.ResidentApartment{}, &models.ResidentPrivacy{}} {
		var count int64
		require.NoError(t, db.Model(model).Where("resident_id = ?", detail.ID).Count(&count).Error)
		require.Zero(t, count)
	}
	_, err = svc.Get(ctx, house.house.ID, detail.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
