package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/internal/store"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
)

// brokenStore fails every operation, standing in for an unreachable backend.
type brokenStore struct{}

var errBroken = errors.New("backend unreachable")

func (brokenStore) Name() string { return "broken" }
func (brokenStore) PutLicenseRequest(context.Context, models.LicenseRequest) error {
	return errBroken
}
func (brokenStore) GetLicenseRequest(context.Context, uuid.UUID) (models.LicenseRequest, error) {
	return models.LicenseRequest{}, errBroken
}
func (brokenStore) ListLicenseRequests(context.Context) ([]models.LicenseRequest, error) {
	return nil, errBroken
}
func (brokenStore) TransitionLicenseRequest(context.Context, uuid.UUID, enums.LicenseRequestStatus, time.Time) (models.LicenseRequest, error) {
	return models.LicenseRequest{}, errBroken
}
func (brokenStore) GetCart(context.Context, string) ([]models.CartLine, error) {
	return nil, errBroken
}
func (brokenStore) AppendCartLine(context.Context, models.CartLine) (models.CartLine, bool, error) {
	return models.CartLine{}, false, errBroken
}
func (brokenStore) RemoveCartLine(context.Context, string, string) error { return errBroken }
func (brokenStore) ClearCart(context.Context, string) error              { return errBroken }

func testRequest(t *testing.T, createdAt time.Time) models.LicenseRequest {
	t.Helper()
	return models.LicenseRequest{
		ID:              uuid.New(),
		MedicineID:      "med-tramadol-50",
		MedicineName:    "Tramadol 50mg",
		PharmacyID:      "pharm-001",
		CustomerEmail:   "ana@example.com",
		LicenseImageRef: "uploads/licenses/ana.png",
		Status:          enums.LicenseRequestStatusPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func testLine(email, medicineID string, addedAt time.Time) models.CartLine {
	return models.CartLine{
		ID:            uuid.New(),
		CustomerEmail: email,
		MedicineID:    medicineID,
		MedicineName:  "Tramadol 50mg",
		PharmacyID:    "pharm-001",
		Quantity:      1,
		AddedAt:       addedAt,
		CreatedAt:     addedAt,
		UpdatedAt:     addedAt,
	}
}

func TestPutPropagatesToSecondaries(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	rec := testRequest(t, time.Now().UTC())
	if err := r.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := secondary.GetLicenseRequest(ctx, rec.ID); err != nil {
		t.Fatalf("secondary missing record: %v", err)
	}
}

func TestSecondaryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	r := New(primary, []store.Store{brokenStore{}}, nil, nil)

	rec := testRequest(t, time.Now().UTC())
	if err := r.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("secondary failure surfaced: %v", err)
	}
	if _, err := primary.GetLicenseRequest(ctx, rec.ID); err != nil {
		t.Fatalf("primary missing record: %v", err)
	}
}

func TestPrimaryFailureIsStorageError(t *testing.T) {
	r := New(brokenStore{}, []store.Store{store.NewMemoryStore()}, nil, nil)

	err := r.PutLicenseRequest(context.Background(), testRequest(t, time.Now().UTC()))
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStorage {
		t.Fatalf("want storage error, got %v", err)
	}
}

func TestMergedReadPrefersLatestUpdate(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	base := time.Now().UTC()
	rec := testRequest(t, base)
	if err := primary.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("seed primary: %v", err)
	}

	// Secondary holds a newer, decided copy.
	decided := rec
	decided.Status = enums.LicenseRequestStatusApproved
	decided.UpdatedAt = base.Add(2 * time.Second)
	if err := secondary.PutLicenseRequest(ctx, decided); err != nil {
		t.Fatalf("seed secondary: %v", err)
	}

	got, err := r.GetLicenseRequest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != enums.LicenseRequestStatusApproved {
		t.Fatalf("want approved copy to win, got %s", got.Status)
	}

	list, err := r.ListLicenseRequests(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != enums.LicenseRequestStatusApproved {
		t.Fatalf("want single approved record, got %+v", list)
	}
}

func TestListFiltersByPharmacy(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	r := New(primary, nil, nil, nil)

	base := time.Now().UTC()
	first := testRequest(t, base)
	second := testRequest(t, base.Add(time.Second))
	second.PharmacyID = "pharm-002"
	for _, rec := range []models.LicenseRequest{first, second} {
		if err := primary.PutLicenseRequest(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	list, err := r.ListLicenseRequests(ctx, "pharm-002")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("want only pharm-002 request, got %+v", list)
	}
}

func TestListFailsWhenNoStoreReadable(t *testing.T) {
	r := New(brokenStore{}, []store.Store{brokenStore{}}, nil, nil)

	_, err := r.ListLicenseRequests(context.Background(), "")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStorage {
		t.Fatalf("want storage error, got %v", err)
	}
}

func TestMergedCartDedupesAcrossStores(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	base := time.Now().UTC()
	line := testLine("ana@example.com", "med-tramadol-50", base)
	other := testLine("ana@example.com", "med-codeine-30", base.Add(time.Second))

	if _, _, err := primary.AppendCartLine(ctx, line); err != nil {
		t.Fatalf("seed primary: %v", err)
	}
	// The same medicine landed in the secondary under a different row id,
	// as happens when a propagation was dropped and later retried.
	dup := line
	dup.ID = uuid.New()
	if _, _, err := secondary.AppendCartLine(ctx, dup); err != nil {
		t.Fatalf("seed secondary: %v", err)
	}
	if _, _, err := secondary.AppendCartLine(ctx, other); err != nil {
		t.Fatalf("seed secondary: %v", err)
	}

	cart, err := r.GetCart(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 2 {
		t.Fatalf("want 2 merged lines, got %d", len(cart))
	}
	if cart[0].MedicineID != "med-tramadol-50" || cart[1].MedicineID != "med-codeine-30" {
		t.Fatalf("want AddedAt ordering, got %+v", cart)
	}
}

func TestAppendCartLineIsIdempotentAcrossStores(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	base := time.Now().UTC()
	line := testLine("ana@example.com", "med-tramadol-50", base)

	// Line exists only in the secondary: append must not duplicate it.
	if _, _, err := secondary.AppendCartLine(ctx, line); err != nil {
		t.Fatalf("seed secondary: %v", err)
	}
	retry := line
	retry.ID = uuid.New()
	retry.AddedAt = base.Add(time.Minute)
	got, inserted, err := r.AppendCartLine(ctx, retry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if inserted {
		t.Fatal("want dedupe against secondary copy")
	}
	if got.ID != line.ID {
		t.Fatalf("want original line returned, got %+v", got)
	}

	cart, err := r.GetCart(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 1 {
		t.Fatalf("want 1 line after retry, got %d", len(cart))
	}
}

func TestAppendCartLineHealsMissingStores(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	line := testLine("ana@example.com", "med-tramadol-50", time.Now().UTC())
	if _, _, err := primary.AppendCartLine(ctx, line); err != nil {
		t.Fatalf("seed primary: %v", err)
	}

	if _, inserted, err := r.AppendCartLine(ctx, line); err != nil || inserted {
		t.Fatalf("append: inserted=%v err=%v", inserted, err)
	}
	sec, err := secondary.GetCart(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("secondary cart: %v", err)
	}
	if len(sec) != 1 {
		t.Fatalf("want secondary healed to 1 line, got %d", len(sec))
	}
}

func TestAppendCartLineHealsPrimaryFromSecondaryCopy(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	line := testLine("ana@example.com", "med-tramadol-50", time.Now().UTC())
	if _, _, err := secondary.AppendCartLine(ctx, line); err != nil {
		t.Fatalf("seed secondary: %v", err)
	}

	retry := testLine("ana@example.com", "med-tramadol-50", time.Now().UTC().Add(time.Minute))
	got, inserted, err := r.AppendCartLine(ctx, retry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if inserted || got.ID != line.ID {
		t.Fatalf("want dedupe against secondary copy, got inserted=%v id=%s", inserted, got.ID)
	}

	// The durable primary must hold the line afterwards, not just the
	// transient store that happened to have it.
	prim, err := primary.GetCart(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("primary cart: %v", err)
	}
	if len(prim) != 1 || prim[0].ID != line.ID {
		t.Fatalf("want primary healed with original line, got %+v", prim)
	}
}

func TestPerStoreBreakdownReportsEachStore(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	r := New(primary, []store.Store{brokenStore{}}, nil, nil)

	rec := testRequest(t, time.Now().UTC())
	if err := primary.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	breakdown := r.PerStoreBreakdown(ctx)
	if len(breakdown) != 2 {
		t.Fatalf("want 2 entries, got %d", len(breakdown))
	}
	if breakdown[0].Store != primary.Name() || len(breakdown[0].Requests) != 1 {
		t.Fatalf("unexpected primary entry: %+v", breakdown[0])
	}
	if breakdown[1].Store != "broken" || breakdown[1].Err == "" {
		t.Fatalf("want broken store error reported, got %+v", breakdown[1])
	}
}

func TestTransitionPropagatesDecidedCopy(t *testing.T) {
	ctx := context.Background()
	primary := store.NewMemoryStore()
	secondary := store.NewMemoryStore()
	r := New(primary, []store.Store{secondary}, nil, nil)

	rec := testRequest(t, time.Now().UTC())
	if err := r.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	decided, err := r.TransitionLicenseRequest(ctx, rec.ID, enums.LicenseRequestStatusApproved, time.Now().UTC())
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if decided.Status != enums.LicenseRequestStatusApproved {
		t.Fatalf("want approved, got %s", decided.Status)
	}

	copyInSecondary, err := secondary.GetLicenseRequest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("secondary: %v", err)
	}
	if copyInSecondary.Status != enums.LicenseRequestStatusApproved {
		t.Fatalf("want decided copy propagated, got %s", copyInSecondary.Status)
	}
}
