package models

// Occupancy link types.
const (
	OccupancyOwner  = "owner"
	OccupancyTenant = "tenant"
)

// Resident holds personal data shown on the house board subject to privacy flags.
type Resident struct {
	RecordModel

	HouseID  uint   `gorm:"not null;index" json:"house_id"`
	FullName string `gorm:"not null" json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Telegram string `json:"telegram"`

	Privacy *ResidentPrivacy `gorm:"foreignKey:ResidentID" json:"privacy,omitempty"`
}

// ResidentPrivacy holds per-field visibility. A nil field means the resident
// never made a choice for it.
type ResidentPrivacy struct {
	ResidentID   uint  `gorm:"primaryKey;autoIncrement:false" json:"resident_id"`
	ShowFullName *bool `json:"show_full_name"`
	ShowPhone    *bool `json:"show_phone"`
	ShowEmail    *bool `json:"show_email"`
	ShowTelegram *bool `json:"show_telegram"`
}

func (ResidentPrivacy) TableName() string { return "resident_privacy" }

type ResidentApartment struct {
	ResidentID  uint   `gorm:"primaryKey" json:"resident_id"`
	ApartmentID uint   `gorm:"primaryKey" json:"apartment_id"`
	Type        string `gorm:"not null;default:owner" json:"type"`
}

type ResidentParking struct {
	ResidentID uint   `gorm:"primaryKey" json:"resident_id"`
	ParkingID  uint   `gorm:"primaryKey" json:"parking_id"`
	SpotNumber string `gorm:"primaryKey" json:"spot_number"`
	Type       string `gorm:"not null;default:owner" json:"type"`
}

type ResidentStorage struct {
	ResidentID uint   `gorm:"primaryKey" json:"resident_id"`
	StorageID  uint   `gorm:"primaryKey" json:"storage_id"`
	UnitNumber string `gorm:"primaryKey" json:"unit_number"`
	Type       string `gorm:"not null;default:owner" json:"type"`
}

func (ResidentStorage) TableName() string { return "resident_storage" }
