package models

// House is a residential building. Its numeric ID is what access scopes list.
type House struct {
	RecordModel

	Name                     string `gorm:"not null" json:"name"`
	Address                  string `json:"address"`
	Slug                     string `gorm:"uniqueIndex;not null" json:"slug"`
	NonResidentialFirstFloor bool   `gorm:"not null;default:false" json:"non_residential_first_floor"`

	Entrances []Entrance    `gorm:"foreignKey:HouseID" json:"entrances,omitempty"`
	Parkings  []Parking     `gorm:"foreignKey:HouseID" json:"parkings,omitempty"`
	Storages  []StorageUnit `gorm:"foreignKey:HouseID" json:"storages,omitempty"`
}

type Entrance struct {
	RecordModel

	HouseID            uint `gorm:"not null;index" json:"house_id"`
	EntranceNumber     int  `gorm:"not null" json:"entrance_number"`
	FloorsCount        int  `gorm:"not null" json:"floors_count"`
	ApartmentsPerFloor int  `gorm:"not null" json:"apartments_per_floor"`

	Apartments []Apartment `gorm:"foreignKey:EntranceID" json:"apartments,omitempty"`
}

type Apartment struct {
	RecordModel

	EntranceID      uint `gorm:"not null;index" json:"entrance_id"`
	FloorNumber     int  `gorm:"not null" json:"floor_number"`
	ApartmentNumber int  `gorm:"not null" json:"apartment_number"`
}

// Parking is a parking level of a house.
type Parking struct {
	RecordModel

	HouseID    uint `gorm:"not null;index" json:"house_id"`
	Level      int  `gorm:"not null" json:"level"`
	SpotsCount int  `gorm:"not null" json:"spots_count"`
}

// StorageUnit is a storage level of a house.
type StorageUnit struct {
	RecordModel

	HouseID    uint `gorm:"not null;index" json:"house_id"`
	Level      int  `gorm:"not null" json:"level"`
	UnitsCount int  `gorm:"not null" json:"units_count"`
}

func (StorageUnit) TableName() string { return "storages" }
