package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

const (
	requestKeyPrefix = "lr:"
	cartKeyPrefix    = "cart:"
)

// LocalStore is the durable client-scoped backend, a Pebble keyspace holding
// JSON records. It survives restarts of a single deployment instance the way
// the original per-browser storage survived page loads.
type LocalStore struct {
	db *pebble.DB
	// pebble has no transactions in this usage; cart values are whole JSON
	// arrays, so read-modify-write sequences hold the mutex.
	mu sync.Mutex
}

// NewLocalStore opens (or creates) the Pebble directory.
func NewLocalStore(dir string) (*LocalStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Close releases the Pebble handle.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Ping verifies the keyspace is usable.
func (s *LocalStore) Ping(_ context.Context) error {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Name implements Store.
func (s *LocalStore) Name() string {
	return "local"
}

func requestKey(id uuid.UUID) []byte {
	return []byte(requestKeyPrefix + id.String())
}

func cartKey(email string) []byte {
	return []byte(cartKeyPrefix + email)
}

// PutLicenseRequest implements Store.
func (s *LocalStore) PutLicenseRequest(_ context.Context, rec models.LicenseRequest) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode license request: %w", err)
	}
	return s.db.Set(requestKey(rec.ID), raw, pebble.Sync)
}

// GetLicenseRequest implements Store.
func (s *LocalStore) GetLicenseRequest(_ context.Context, id uuid.UUID) (models.LicenseRequest, error) {
	raw, closer, err := s.db.Get(requestKey(id))
	if err == pebble.ErrNotFound {
		return models.LicenseRequest{}, ErrNotFound
	}
	if err != nil {
		return models.LicenseRequest{}, err
	}
	defer closer.Close()

	var rec models.LicenseRequest
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.LicenseRequest{}, fmt.Errorf("decode license request: %w", err)
	}
	return rec, nil
}

// ListLicenseRequests implements Store.
func (s *LocalStore) ListLicenseRequests(_ context.Context) ([]models.LicenseRequest, error) {
	it, err := s.db.NewIter(prefixBounds(requestKeyPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []models.LicenseRequest
	for it.First(); it.Valid(); it.Next() {
		var rec models.LicenseRequest
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode license request at %q: %w", it.Key(), err)
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// TransitionLicenseRequest implements Store.
func (s *LocalStore) TransitionLicenseRequest(ctx context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.GetLicenseRequest(ctx, id)
	if err != nil {
		return models.LicenseRequest{}, err
	}
	if rec.Status != enums.LicenseRequestStatusPending {
		return models.LicenseRequest{}, ErrNotPending
	}
	rec.Status = to
	rec.UpdatedAt = at
	if err := s.PutLicenseRequest(ctx, rec); err != nil {
		return models.LicenseRequest{}, err
	}
	return rec, nil
}

// GetCart implements Store.
func (s *LocalStore) GetCart(_ context.Context, email string) ([]models.CartLine, error) {
	return s.readCart(email)
}

// AppendCartLine implements Store.
func (s *LocalStore) AppendCartLine(_ context.Context, line models.CartLine) (models.CartLine, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readCart(line.CustomerEmail)
	if err != nil {
		return models.CartLine{}, false, err
	}
	for _, existing := range lines {
		if existing.MedicineID == line.MedicineID {
			return existing, false, nil
		}
	}
	lines = append(lines, line)
	if err := s.writeCart(line.CustomerEmail, lines); err != nil {
		return models.CartLine{}, false, err
	}
	return line, true, nil
}

// RemoveCartLine implements Store.
func (s *LocalStore) RemoveCartLine(_ context.Context, email, medicineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readCart(email)
	if err != nil {
		return err
	}
	kept := lines[:0]
	for _, existing := range lines {
		if existing.MedicineID != medicineID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(lines) {
		return nil
	}
	return s.writeCart(email, kept)
}

// ClearCart implements Store.
func (s *LocalStore) ClearCart(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(cartKey(email), pebble.Sync)
}

func (s *LocalStore) readCart(email string) ([]models.CartLine, error) {
	raw, closer, err := s.db.Get(cartKey(email))
	if err == pebble.ErrNotFound {
		return []models.CartLine{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var lines []models.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode cart for %s: %w", email, err)
	}
	return lines, nil
}

func (s *LocalStore) writeCart(email string, lines []models.CartLine) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart for %s: %w", email, err)
	}
	return s.db.Set(cartKey(email), raw, pebble.Sync)
}

func prefixBounds(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	upper := append([]byte(nil), lower...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
}
