package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is a cart entry projected from an approved LicenseRequest. The
// approval pipeline never creates more than one line per (customer, medicine);
// quantity edits belong to the general cart subsystem.
type CartLine struct {
	ID                     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CustomerEmail          string          `gorm:"column:customer_email;not null;index;uniqueIndex:uq_cart_lines_customer_medicine" json:"customer_email"`
	MedicineID             string          `gorm:"column:medicine_id;not null;uniqueIndex:uq_cart_lines_customer_medicine" json:"medicine_id"`
	MedicineName           string          `gorm:"column:medicine_name;not null" json:"medicine_name"`
	PharmacyID             string          `gorm:"column:pharmacy_id;not null" json:"pharmacy_id"`
	Quantity               int             `gorm:"column:quantity;not null;default:1" json:"quantity"`
	UnitPrice              decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	SourceLicenseRequestID uuid.UUID       `gorm:"column:source_license_request_id;type:uuid;not null" json:"source_license_request_id"`
	LicenseApproved        bool            `gorm:"column:license_approved;not null;default:true" json:"license_approved"`
	ApprovedAt             time.Time       `gorm:"column:approved_at" json:"approved_at"`
	AddedAt                time.Time       `gorm:"column:added_at" json:"added_at"`
	CreatedAt              time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// TableName pins the table used by the shared store.
func (CartLine) TableName() string {
	return "cart_lines"
}
