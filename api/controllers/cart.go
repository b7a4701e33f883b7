package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk-backend/api/responses"
	"github.com/pharmadesk/pharmadesk-backend/api/validators"
	"github.com/pharmadesk/pharmadesk-backend/internal/licensing"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
)

type cartLineResponse struct {
	ID                     uuid.UUID       `json:"id"`
	MedicineID             string          `json:"medicine_id"`
	MedicineName           string          `json:"medicine_name"`
	PharmacyID             string          `json:"pharmacy_id"`
	Quantity               int             `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	SourceLicenseRequestID uuid.UUID       `json:"source_license_request_id"`
	LicenseApproved        bool            `json:"license_approved"`
	ApprovedAt             time.Time       `json:"approved_at"`
	AddedAt                time.Time       `json:"added_at"`
}

type cartResponse struct {
	CustomerEmail string             `json:"customer_email"`
	Items         []cartLineResponse `json:"items"`
	Count         int                `json:"count"`
}

func cartLineFromModel(m models.CartLine) cartLineResponse {
	return cartLineResponse{
		ID:                     m.ID,
		MedicineID:             m.MedicineID,
		MedicineName:           m.MedicineName,
		PharmacyID:             m.PharmacyID,
		Quantity:               m.Quantity,
		UnitPrice:              m.UnitPrice,
		SourceLicenseRequestID: m.SourceLicenseRequestID,
		LicenseApproved:        m.LicenseApproved,
		ApprovedAt:             m.ApprovedAt,
		AddedAt:                m.AddedAt,
	}
}

// CartGet returns the reconciled cart for a customer.
func CartGet(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "licensing service unavailable"))
			return
		}

		email, err := validators.RequireQueryEmail(r, "email")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := svc.Cart(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := cartResponse{
			CustomerEmail: email,
			Items:         make([]cartLineResponse, len(lines)),
			Count:         len(lines),
		}
		for i, line := range lines {
			resp.Items[i] = cartLineFromModel(line)
		}
		responses.WriteSuccess(w, resp)
	}
}
