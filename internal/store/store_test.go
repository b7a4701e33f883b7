package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

func newPendingRequest(email, medicineID string) models.LicenseRequest {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.LicenseRequest{
		ID:              uuid.New(),
		MedicineID:      medicineID,
		MedicineName:    "Amoxicillin 500mg",
		PharmacyID:      "ph-1",
		CustomerEmail:   email,
		LicenseImageRef: "uploads/license-1.png",
		Status:          enums.LicenseRequestStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func newCartLine(email, medicineID string, source uuid.UUID) models.CartLine {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.CartLine{
		ID:                     uuid.New(),
		CustomerEmail:          email,
		MedicineID:             medicineID,
		MedicineName:           "Amoxicillin 500mg",
		PharmacyID:             "ph-1",
		Quantity:               1,
		UnitPrice:              decimal.NewFromFloat(9.99),
		SourceLicenseRequestID: source,
		LicenseApproved:        true,
		ApprovedAt:             now,
		AddedAt:                now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// runStoreSuite exercises the Store contract shared by every backend.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// license request lifecycle
	rec := newPendingRequest("a@x.com", "m1")
	if err := s.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("put license request: %v", err)
	}

	got, err := s.GetLicenseRequest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get license request: %v", err)
	}
	if got.Status != enums.LicenseRequestStatusPending {
		t.Fatalf("expected pending status, got %s", got.Status)
	}
	if got.CustomerEmail != "a@x.com" || got.MedicineID != "m1" {
		t.Fatalf("identifier fields not preserved: %+v", got)
	}

	if _, err := s.GetLicenseRequest(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	rows, err := s.ListLicenseRequests(ctx)
	if err != nil {
		t.Fatalf("list license requests: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	// transition: pending -> approved, then terminal
	decidedAt := rec.UpdatedAt.Add(time.Second)
	updated, err := s.TransitionLicenseRequest(ctx, rec.ID, enums.LicenseRequestStatusApproved, decidedAt)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != enums.LicenseRequestStatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
	if !updated.UpdatedAt.After(rec.CreatedAt) {
		t.Fatalf("expected updated_at bump, got %v", updated.UpdatedAt)
	}

	if _, err := s.TransitionLicenseRequest(ctx, rec.ID, enums.LicenseRequestStatusRejected, decidedAt.Add(time.Second)); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending on terminal record, got %v", err)
	}
	if _, err := s.TransitionLicenseRequest(ctx, uuid.New(), enums.LicenseRequestStatusApproved, decidedAt); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on unknown id, got %v", err)
	}

	// cart: empty read, append, dedupe, remove, clear
	cart, err := s.GetCart(ctx, "nobody@x.com")
	if err != nil {
		t.Fatalf("get empty cart: %v", err)
	}
	if len(cart) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart))
	}

	line := newCartLine("a@x.com", "m1", rec.ID)
	inserted, wasInserted, err := s.AppendCartLine(ctx, line)
	if err != nil {
		t.Fatalf("append cart line: %v", err)
	}
	if !wasInserted {
		t.Fatalf("expected insertion into empty cart")
	}
	if inserted.MedicineID != "m1" {
		t.Fatalf("unexpected inserted line %+v", inserted)
	}

	dup := newCartLine("a@x.com", "m1", rec.ID)
	existing, wasInserted, err := s.AppendCartLine(ctx, dup)
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if wasInserted {
		t.Fatalf("duplicate medicine id must not insert")
	}
	if existing.ID != inserted.ID {
		t.Fatalf("expected pre-existing line back, got %s", existing.ID)
	}

	second := newCartLine("a@x.com", "m2", uuid.New())
	second.AddedAt = line.AddedAt.Add(time.Second)
	if _, wasInserted, err = s.AppendCartLine(ctx, second); err != nil || !wasInserted {
		t.Fatalf("append second medicine: inserted=%v err=%v", wasInserted, err)
	}

	cart, err = s.GetCart(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart))
	}
	if cart[0].MedicineID != "m1" || cart[1].MedicineID != "m2" {
		t.Fatalf("cart order not preserved: %s, %s", cart[0].MedicineID, cart[1].MedicineID)
	}

	if err := s.RemoveCartLine(ctx, "a@x.com", "m2"); err != nil {
		t.Fatalf("remove cart line: %v", err)
	}
	if err := s.RemoveCartLine(ctx, "a@x.com", "missing"); err != nil {
		t.Fatalf("remove of absent line should be a no-op: %v", err)
	}
	cart, _ = s.GetCart(ctx, "a@x.com")
	if len(cart) != 1 {
		t.Fatalf("expected 1 line after remove, got %d", len(cart))
	}

	if err := s.ClearCart(ctx, "a@x.com"); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	cart, _ = s.GetCart(ctx, "a@x.com")
	if len(cart) != 0 {
		t.Fatalf("expected empty cart after clear, got %d", len(cart))
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestLocalStoreContract(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "localstore"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestLocalStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "localstore")
	ctx := context.Background()

	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	rec := newPendingRequest("b@x.com", "m9")
	if err := s.PutLicenseRequest(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, _, err := s.AppendCartLine(ctx, newCartLine("b@x.com", "m9", rec.ID)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("reopen local store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetLicenseRequest(ctx, rec.ID); err != nil {
		t.Fatalf("expected record to survive reopen: %v", err)
	}
	cart, err := reopened.GetCart(ctx, "b@x.com")
	if err != nil || len(cart) != 1 {
		t.Fatalf("expected cart to survive reopen: lines=%d err=%v", len(cart), err)
	}
}

func TestSharedStoreContract(t *testing.T) {
	runStoreSuite(t, NewSharedStore(openTestDB(t)))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "shared.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := conn.AutoMigrate(&models.LicenseRequest{}, &models.CartLine{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return conn
}
