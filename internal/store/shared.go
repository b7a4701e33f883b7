package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

// SharedStore is the process-wide backend on the relational database. It is
// the primary store of the reconciliation layer: its writes are the ones a
// caller's success depends on.
type SharedStore struct {
	db *gorm.DB
}

// NewSharedStore binds the store to the provided GORM handle.
func NewSharedStore(db *gorm.DB) *SharedStore {
	return &SharedStore{db: db}
}

// Name implements Store.
func (s *SharedStore) Name() string {
	return "shared"
}

// PutLicenseRequest implements Store.
func (s *SharedStore) PutLicenseRequest(ctx context.Context, rec models.LicenseRequest) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

// GetLicenseRequest implements Store.
func (s *SharedStore) GetLicenseRequest(ctx context.Context, id uuid.UUID) (models.LicenseRequest, error) {
	var rec models.LicenseRequest
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.LicenseRequest{}, ErrNotFound
	}
	if err != nil {
		return models.LicenseRequest{}, err
	}
	return rec, nil
}

// ListLicenseRequests implements Store.
func (s *SharedStore) ListLicenseRequests(ctx context.Context) ([]models.LicenseRequest, error) {
	var rows []models.LicenseRequest
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionLicenseRequest implements Store. The pending guard rides in the
// UPDATE predicate so two concurrent decisions cannot both win.
func (s *SharedStore) TransitionLicenseRequest(ctx context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error) {
	res := s.db.WithContext(ctx).
		Model(&models.LicenseRequest{}).
		Where("id = ? AND status = ?", id, enums.LicenseRequestStatusPending).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return models.LicenseRequest{}, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already decided.
		if _, err := s.GetLicenseRequest(ctx, id); err != nil {
			return models.LicenseRequest{}, err
		}
		return models.LicenseRequest{}, ErrNotPending
	}
	return s.GetLicenseRequest(ctx, id)
}

// GetCart implements Store.
func (s *SharedStore) GetCart(ctx context.Context, email string) ([]models.CartLine, error) {
	var rows []models.CartLine
	if err := s.db.WithContext(ctx).
		Where("customer_email = ?", email).
		Order("added_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendCartLine implements Store. The (customer_email, medicine_id) unique
// constraint backstops the read-then-insert against concurrent writers.
func (s *SharedStore) AppendCartLine(ctx context.Context, line models.CartLine) (models.CartLine, bool, error) {
	var existing models.CartLine
	err := s.db.WithContext(ctx).
		Where("customer_email = ? AND medicine_id = ?", line.CustomerEmail, line.MedicineID).
		First(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CartLine{}, false, err
	}

	if err := s.db.WithContext(ctx).Create(&line).Error; err != nil {
		if isUniqueViolation(err) {
			lost := s.db.WithContext(ctx).
				Where("customer_email = ? AND medicine_id = ?", line.CustomerEmail, line.MedicineID).
				First(&existing).Error
			if lost == nil {
				return existing, false, nil
			}
		}
		return models.CartLine{}, false, err
	}
	return line, true, nil
}

// RemoveCartLine implements Store.
func (s *SharedStore) RemoveCartLine(ctx context.Context, email, medicineID string) error {
	return s.db.WithContext(ctx).
		Where("customer_email = ? AND medicine_id = ?", email, medicineID).
		Delete(&models.CartLine{}).Error
}

// ClearCart implements Store.
func (s *SharedStore) ClearCart(ctx context.Context, email string) error {
	return s.db.WithContext(ctx).
		Where("customer_email = ?", email).
		Delete(&models.CartLine{}).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
