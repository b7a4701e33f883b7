package licensing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
)

// Pricing for pipeline-created lines is a policy constant; the medicine
// catalog is not consulted here. The cart subsystem settles the real price
// at checkout.
var policyUnitPrice = decimal.New(0, -2)

const policyQuantity = 1

// Project derives the cart line for an approved license request. It is
// deterministic: the line id is a SHA1 UUID over (customer, medicine), so a
// retried approval projects the identical line.
func Project(req models.LicenseRequest, approvedAt time.Time) models.CartLine {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.CustomerEmail+"|"+req.MedicineID))
	return models.CartLine{
		ID:                     id,
		CustomerEmail:          req.CustomerEmail,
		MedicineID:             req.MedicineID,
		MedicineName:           req.MedicineName,
		PharmacyID:             req.PharmacyID,
		Quantity:               policyQuantity,
		UnitPrice:              policyUnitPrice,
		SourceLicenseRequestID: req.ID,
		LicenseApproved:        true,
		ApprovedAt:             approvedAt,
		AddedAt:                approvedAt,
		CreatedAt:              approvedAt,
		UpdatedAt:              approvedAt,
	}
}
