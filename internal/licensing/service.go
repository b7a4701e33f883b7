package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/internal/reconcile"
	"github.com/pharmadesk/pharmadesk-backend/internal/store"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
	"github.com/pharmadesk/pharmadesk-backend/pkg/metrics"
	"github.com/pharmadesk/pharmadesk-backend/pkg/pagination"
)

type pipelineStore interface {
	PutLicenseRequest(ctx context.Context, rec models.LicenseRequest) error
	GetLicenseRequest(ctx context.Context, id uuid.UUID) (models.LicenseRequest, error)
	ListLicenseRequests(ctx context.Context, pharmacyID string) ([]models.LicenseRequest, error)
	TransitionLicenseRequest(ctx context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error)
	GetCart(ctx context.Context, email string) ([]models.CartLine, error)
	AppendCartLine(ctx context.Context, line models.CartLine) (models.CartLine, bool, error)
	PerStoreBreakdown(ctx context.Context) []reconcile.StoreBreakdown
}

// Service exposes license request submission, listing, decision, and the
// reconciled cart view.
type Service interface {
	SubmitRequest(ctx context.Context, input SubmitInput) (*models.LicenseRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error)
	ListRequests(ctx context.Context, params ListParams) (*ListResult, error)
	Decide(ctx context.Context, id uuid.UUID, decision enums.LicenseRequestStatus) (*DecisionResult, error)
	Cart(ctx context.Context, email string) ([]models.CartLine, error)
}

// SubmitInput holds the customer-facing submission payload.
type SubmitInput struct {
	MedicineID      string
	MedicineName    string
	PharmacyID      string
	CustomerEmail   string
	LicenseImageRef string
}

// ListParams narrows a listing to one pharmacy and optionally attaches the
// per-store diagnostic breakdown. Page controls cursor pagination; when no
// page is requested the full listing is returned.
type ListParams struct {
	PharmacyID string
	Debug      bool
	Page       pagination.Params
}

// ListResult carries the reconciled listing; Stores is populated only when
// the breakdown was requested. NextCursor is set when more pages remain.
type ListResult struct {
	Requests   []models.LicenseRequest
	Stores     []reconcile.StoreBreakdown
	NextCursor string
}

// DecisionResult reports a decision's outcome. WasInserted is false when the
// cart already held the medicine, which lets callers detect idempotent
// retries.
type DecisionResult struct {
	Request     models.LicenseRequest
	CartItems   int
	WasInserted bool
}

type service struct {
	stores   pipelineStore
	logg     *logger.Logger
	pipeline *metrics.PipelineMetrics
	now      func() time.Time
}

// NewService builds the approval workflow over the reconciled store view.
func NewService(stores pipelineStore, logg *logger.Logger, pipeline *metrics.PipelineMetrics) (Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("store layer required")
	}
	return &service{
		stores:   stores,
		logg:     logg,
		pipeline: pipeline,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) SubmitRequest(ctx context.Context, input SubmitInput) (*models.LicenseRequest, error) {
	email := strings.TrimSpace(strings.ToLower(input.CustomerEmail))
	medicineID := strings.TrimSpace(input.MedicineID)
	licenseImageRef := strings.TrimSpace(input.LicenseImageRef)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer_email is required")
	}
	if medicineID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine_id is required")
	}
	if licenseImageRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license_image_ref is required")
	}

	// At most one pending request per (customer, medicine). Records hold
	// trimmed identifiers, so the guard compares the trimmed input. A
	// rejected customer submits a fresh request once the old one is decided.
	existing, err := s.stores.ListLicenseRequests(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, rec := range existing {
		if rec.Status == enums.LicenseRequestStatusPending &&
			rec.CustomerEmail == email &&
			rec.MedicineID == medicineID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a pending request already exists for this medicine").
				WithDetails(map[string]string{"request_id": rec.ID.String()})
		}
	}

	now := s.now()
	rec := models.LicenseRequest{
		ID:              uuid.New(),
		MedicineID:      medicineID,
		MedicineName:    strings.TrimSpace(input.MedicineName),
		PharmacyID:      strings.TrimSpace(input.PharmacyID),
		CustomerEmail:   email,
		LicenseImageRef: licenseImageRef,
		Status:          enums.LicenseRequestStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.stores.PutLicenseRequest(ctx, rec); err != nil {
		return nil, err
	}

	s.pipeline.IncSubmission()
	if s.logg != nil {
		s.logg.Info(s.logg.WithCustomerEmail(ctx, email), "license_request.submitted")
	}
	return &rec, nil
}

func (s *service) GetRequest(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	rec, err := s.stores.GetLicenseRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read license request")
	}
	return &rec, nil
}

func (s *service) ListRequests(ctx context.Context, params ListParams) (*ListResult, error) {
	rows, err := s.stores.ListLicenseRequests(ctx, params.PharmacyID)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Requests: rows}
	if params.Page.Requested() {
		page, next, err := paginate(rows, params.Page)
		if err != nil {
			return nil, err
		}
		result.Requests = page
		result.NextCursor = next
	}

	if params.Debug {
		result.Stores = s.stores.PerStoreBreakdown(ctx)
	}
	return result, nil
}

// paginate slices an already reconciled listing, which the store layer keeps
// ordered by creation time then id.
func paginate(rows []models.LicenseRequest, page pagination.Params) ([]models.LicenseRequest, string, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	start := 0
	if cursor != nil {
		for start < len(rows) && !cursor.Precedes(rows[start].CreatedAt, rows[start].ID) {
			start++
		}
	}

	limit := pagination.NormalizeLimit(page.Limit)
	end := start + limit
	if end >= len(rows) {
		return rows[start:], "", nil
	}

	last := rows[end-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return rows[start:end], next, nil
}

func (s *service) Decide(ctx context.Context, id uuid.UUID, decision enums.LicenseRequestStatus) (*DecisionResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	if !decision.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approved or rejected")
	}

	decidedAt := s.now()
	rec, err := s.stores.TransitionLicenseRequest(ctx, id, decision, decidedAt)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license request not found")
		case errors.Is(err, store.ErrNotPending):
			return s.replayDecision(ctx, id, decision)
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "transition license request")
		}
	}
	s.pipeline.IncDecision(decision.String())

	result := &DecisionResult{Request: rec}
	if decision == enums.LicenseRequestStatusApproved {
		inserted, err := s.projectApproval(ctx, rec, decidedAt)
		if err != nil {
			// The transition already landed; retrying the same decision
			// replays the projection via replayDecision.
			return nil, err
		}
		result.WasInserted = inserted
		if s.logg != nil {
			fields := map[string]any{"medicine_id": rec.MedicineID, "inserted": inserted}
			s.logg.Info(s.logg.WithFields(s.logg.WithCustomerEmail(ctx, rec.CustomerEmail), fields), "license_request.approved")
		}
	} else if s.logg != nil {
		s.logg.Info(s.logg.WithCustomerEmail(ctx, rec.CustomerEmail), "license_request.rejected")
	}

	return s.withCartCount(ctx, result, rec.CustomerEmail)
}

// replayDecision handles a decision against an already-terminal request. A
// retry of the recorded decision is idempotent: an approval re-runs the cart
// projection, which also recovers a projection dropped after the original
// transition. A conflicting decision is rejected.
func (s *service) replayDecision(ctx context.Context, id uuid.UUID, decision enums.LicenseRequestStatus) (*DecisionResult, error) {
	rec, err := s.stores.GetLicenseRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read license request")
	}
	if rec.Status != decision {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "license request already decided")
	}

	result := &DecisionResult{Request: rec}
	if decision == enums.LicenseRequestStatusApproved {
		inserted, err := s.projectApproval(ctx, rec, rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result.WasInserted = inserted
		if s.logg != nil {
			fields := map[string]any{"medicine_id": rec.MedicineID, "inserted": inserted}
			s.logg.Info(s.logg.WithFields(s.logg.WithCustomerEmail(ctx, rec.CustomerEmail), fields), "license_request.decision_replayed")
		}
	}
	return s.withCartCount(ctx, result, rec.CustomerEmail)
}

func (s *service) projectApproval(ctx context.Context, rec models.LicenseRequest, approvedAt time.Time) (bool, error) {
	line := Project(rec, approvedAt)
	_, inserted, err := s.stores.AppendCartLine(ctx, line)
	if err != nil {
		return false, err
	}
	s.pipeline.IncCartProjection(inserted)
	return inserted, nil
}

func (s *service) withCartCount(ctx context.Context, result *DecisionResult, email string) (*DecisionResult, error) {
	cart, err := s.stores.GetCart(ctx, email)
	if err != nil {
		return nil, err
	}
	result.CartItems = len(cart)
	return result, nil
}

func (s *service) Cart(ctx context.Context, email string) ([]models.CartLine, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	return s.stores.GetCart(ctx, email)
}
