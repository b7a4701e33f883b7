package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

var (
	// ErrNotFound is returned when a record id is unknown to the store.
	ErrNotFound = errors.New("store: record not found")
	// ErrNotPending is returned when a transition targets a record that is
	// no longer pending. Terminal statuses accept no further transitions.
	ErrNotPending = errors.New("store: license request is not pending")
)

// Store is one physical backend holding the two logical collections of the
// approval pipeline: license requests by id and customer carts by email.
// The reconciliation layer fans writes out across several Store instances
// and merges their contents on read, so implementations must be safe for
// concurrent use and must keep operations atomic within a single instance.
type Store interface {
	// Name identifies the backend in logs, metrics, and debug breakdowns.
	Name() string

	// PutLicenseRequest upserts the full record keyed by its id.
	PutLicenseRequest(ctx context.Context, rec models.LicenseRequest) error
	// GetLicenseRequest returns ErrNotFound for unknown ids.
	GetLicenseRequest(ctx context.Context, id uuid.UUID) (models.LicenseRequest, error)
	// ListLicenseRequests returns every record held by this backend.
	ListLicenseRequests(ctx context.Context) ([]models.LicenseRequest, error)
	// TransitionLicenseRequest atomically moves a pending record to the
	// given terminal status and bumps UpdatedAt to the supplied time.
	// Returns ErrNotFound for unknown ids and ErrNotPending when the
	// record has already been decided.
	TransitionLicenseRequest(ctx context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error)

	// GetCart returns the ordered cart for the email. Unknown emails yield
	// an empty slice, never an error.
	GetCart(ctx context.Context, email string) ([]models.CartLine, error)
	// AppendCartLine inserts the line unless the customer's cart already
	// holds an entry for the same medicine id. Returns the inserted or
	// pre-existing line and whether an insertion happened.
	AppendCartLine(ctx context.Context, line models.CartLine) (models.CartLine, bool, error)
	// RemoveCartLine drops the entry for the medicine id, if present.
	RemoveCartLine(ctx context.Context, email, medicineID string) error
	// ClearCart empties the customer's cart.
	ClearCart(ctx context.Context, email string) error
}
