package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

// LicenseRequest captures a customer's proof-of-prescription submission for a
// restricted medicine. Identifier fields are copied at creation time and are
// immutable afterwards; only Status and UpdatedAt change.
type LicenseRequest struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MedicineID      string                     `gorm:"column:medicine_id;not null" json:"medicine_id"`
	MedicineName    string                     `gorm:"column:medicine_name;not null" json:"medicine_name"`
	PharmacyID      string                     `gorm:"column:pharmacy_id;not null" json:"pharmacy_id"`
	CustomerEmail   string                     `gorm:"column:customer_email;not null;index" json:"customer_email"`
	LicenseImageRef string                     `gorm:"column:license_image_ref;not null" json:"license_image_ref"`
	Status          enums.LicenseRequestStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	CreatedAt       time.Time                  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at" json:"updated_at"`
}

// TableName pins the table used by the shared store.
func (LicenseRequest) TableName() string {
	return "license_requests"
}
