package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

func setupSharedStore(t *testing.T) *SharedStore {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "shared_test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.LicenseRequest{}, &models.CartLine{}))
	return NewSharedStore(conn)
}

func TestSharedStorePutUpsertsOnID(t *testing.T) {
	ctx := context.Background()
	s := setupSharedStore(t)

	rec := newPendingRequest("a@x.com", "m1")
	require.NoError(t, s.PutLicenseRequest(ctx, rec))

	rec.Status = enums.LicenseRequestStatusApproved
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
	require.NoError(t, s.PutLicenseRequest(ctx, rec))

	got, err := s.GetLicenseRequest(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseRequestStatusApproved, got.Status)

	rows, err := s.ListLicenseRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSharedStoreTransitionGuardsPendingInPredicate(t *testing.T) {
	ctx := context.Background()
	s := setupSharedStore(t)

	rec := newPendingRequest("a@x.com", "m1")
	require.NoError(t, s.PutLicenseRequest(ctx, rec))

	decidedAt := time.Now().UTC().Truncate(time.Second)
	got, err := s.TransitionLicenseRequest(ctx, rec.ID, enums.LicenseRequestStatusApproved, decidedAt)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseRequestStatusApproved, got.Status)

	// The losing decision hits zero affected rows and maps to ErrNotPending.
	_, err = s.TransitionLicenseRequest(ctx, rec.ID, enums.LicenseRequestStatusRejected, decidedAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = s.TransitionLicenseRequest(ctx, uuid.New(), enums.LicenseRequestStatusApproved, decidedAt)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSharedStoreAppendCartLineIsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := setupSharedStore(t)

	source := uuid.New()
	first := newCartLine("a@x.com", "m1", source)
	inserted, wasInserted, err := s.AppendCartLine(ctx, first)
	require.NoError(t, err)
	assert.True(t, wasInserted)
	assert.Equal(t, first.ID, inserted.ID)

	retry := newCartLine("a@x.com", "m1", source)
	kept, wasInserted, err := s.AppendCartLine(ctx, retry)
	require.NoError(t, err)
	assert.False(t, wasInserted)
	assert.Equal(t, first.ID, kept.ID, "retry must return the original line")

	cart, err := s.GetCart(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, cart, 1)
}

func TestSharedStoreCartScopedByCustomer(t *testing.T) {
	ctx := context.Background()
	s := setupSharedStore(t)

	_, _, err := s.AppendCartLine(ctx, newCartLine("a@x.com", "m1", uuid.New()))
	require.NoError(t, err)
	_, _, err = s.AppendCartLine(ctx, newCartLine("b@x.com", "m1", uuid.New()))
	require.NoError(t, err)

	require.NoError(t, s.ClearCart(ctx, "a@x.com"))

	emptied, err := s.GetCart(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, emptied)

	kept, err := s.GetCart(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
