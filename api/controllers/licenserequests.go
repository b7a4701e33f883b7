package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/api/responses"
	"github.com/pharmadesk/pharmadesk-backend/api/validators"
	"github.com/pharmadesk/pharmadesk-backend/internal/licensing"
	"github.com/pharmadesk/pharmadesk-backend/internal/reconcile"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
)

type licenseRequestCreate struct {
	MedicineID      string `json:"medicine_id" validate:"required"`
	MedicineName    string `json:"medicine_name"`
	PharmacyID      string `json:"pharmacy_id"`
	CustomerEmail   string `json:"customer_email" validate:"required,email"`
	LicenseImageRef string `json:"license_image_ref" validate:"required"`
}

type licenseRequestResponse struct {
	ID              uuid.UUID                  `json:"id"`
	MedicineID      string                     `json:"medicine_id"`
	MedicineName    string                     `json:"medicine_name"`
	PharmacyID      string                     `json:"pharmacy_id"`
	CustomerEmail   string                     `json:"customer_email"`
	LicenseImageRef string                     `json:"license_image_ref"`
	Status          enums.LicenseRequestStatus `json:"status"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func licenseRequestFromModel(m models.LicenseRequest) licenseRequestResponse {
	return licenseRequestResponse{
		ID:              m.ID,
		MedicineID:      m.MedicineID,
		MedicineName:    m.MedicineName,
		PharmacyID:      m.PharmacyID,
		CustomerEmail:   m.CustomerEmail,
		LicenseImageRef: m.LicenseImageRef,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// LicenseRequestCreate handles a customer's proof-of-prescription submission.
func LicenseRequestCreate(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "licensing service unavailable"))
			return
		}

		var payload licenseRequestCreate
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.SubmitRequest(r.Context(), licensing.SubmitInput{
			MedicineID:      payload.MedicineID,
			MedicineName:    payload.MedicineName,
			PharmacyID:      payload.PharmacyID,
			CustomerEmail:   payload.CustomerEmail,
			LicenseImageRef: payload.LicenseImageRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"id":      created.ID,
			"success": true,
			"request": licenseRequestFromModel(*created),
		})
	}
}

type licenseRequestListResponse struct {
	Requests   []licenseRequestResponse   `json:"requests"`
	NextCursor string                     `json:"next_cursor,omitempty"`
	Stores     []reconcile.StoreBreakdown `json:"stores,omitempty"`
}

// LicenseRequestList returns the reconciled listing, optionally filtered by
// pharmacy. debug=all attaches the raw per-store breakdown.
func LicenseRequestList(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "licensing service unavailable"))
			return
		}

		params := licensing.ListParams{
			PharmacyID: validators.QueryString(r, "pharmacyId"),
			Debug:      strings.EqualFold(validators.QueryString(r, "debug"), "all"),
		}
		if raw := validators.QueryString(r, "limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer"))
				return
			}
			params.Page.Limit = limit
		}
		params.Page.Cursor = validators.QueryString(r, "cursor")

		result, err := svc.ListRequests(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := licenseRequestListResponse{
			Requests:   make([]licenseRequestResponse, len(result.Requests)),
			NextCursor: result.NextCursor,
			Stores:     result.Stores,
		}
		for i, rec := range result.Requests {
			resp.Requests[i] = licenseRequestFromModel(rec)
		}
		responses.WriteSuccess(w, resp)
	}
}

// LicenseRequestGet returns one reconciled request by id.
func LicenseRequestGet(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "licensing service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request id"))
			return
		}

		rec, err := svc.GetRequest(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenseRequestFromModel(*rec))
	}
}

type licenseRequestDecision struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type decisionResponse struct {
	Success       bool                       `json:"success"`
	Status        enums.LicenseRequestStatus `json:"status"`
	CustomerEmail string                     `json:"customer_email"`
	CartItems     int                        `json:"cart_items"`
	WasInserted   bool                       `json:"was_inserted"`
	Message       string                     `json:"message"`
}

// LicenseRequestDecide applies a pharmacy operator's decision.
func LicenseRequestDecide(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "licensing service unavailable"))
			return
		}

		var payload licenseRequestDecision
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuid.Parse(strings.TrimSpace(payload.ID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request id"))
			return
		}
		decision, err := enums.ParseLicenseRequestDecision(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or rejected"))
			return
		}

		result, err := svc.Decide(r.Context(), id, decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message := "license request rejected"
		if decision == enums.LicenseRequestStatusApproved {
			message = "license request approved"
			if !result.WasInserted {
				message = "license request approved; medicine already in cart"
			}
		}
		responses.WriteSuccess(w, decisionResponse{
			Success:       true,
			Status:        result.Request.Status,
			CustomerEmail: result.Request.CustomerEmail,
			CartItems:     result.CartItems,
			WasInserted:   result.WasInserted,
			Message:       message,
		})
	}
}
