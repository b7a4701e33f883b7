package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
)

// MemoryStore is the transient in-process backend. Contents live only as long
// as the runtime instance; it exists so reads stay fast and the pipeline keeps
// answering when the durable backends lag or fail.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]models.LicenseRequest
	carts    map[string][]models.CartLine
}

// NewMemoryStore builds an empty transient store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[uuid.UUID]models.LicenseRequest),
		carts:    make(map[string][]models.CartLine),
	}
}

// Name implements Store.
func (s *MemoryStore) Name() string {
	return "memory"
}

// PutLicenseRequest implements Store.
func (s *MemoryStore) PutLicenseRequest(_ context.Context, rec models.LicenseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[rec.ID] = rec
	return nil
}

// GetLicenseRequest implements Store.
func (s *MemoryStore) GetLicenseRequest(_ context.Context, id uuid.UUID) (models.LicenseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.requests[id]
	if !ok {
		return models.LicenseRequest{}, ErrNotFound
	}
	return rec, nil
}

// ListLicenseRequests implements Store.
func (s *MemoryStore) ListLicenseRequests(_ context.Context) ([]models.LicenseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LicenseRequest, 0, len(s.requests))
	for _, rec := range s.requests {
		out = append(out, rec)
	}
	return out, nil
}

// TransitionLicenseRequest implements Store.
func (s *MemoryStore) TransitionLicenseRequest(_ context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.requests[id]
	if !ok {
		return models.LicenseRequest{}, ErrNotFound
	}
	if rec.Status != enums.LicenseRequestStatusPending {
		return models.LicenseRequest{}, ErrNotPending
	}
	rec.Status = to
	rec.UpdatedAt = at
	s.requests[id] = rec
	return rec, nil
}

// GetCart implements Store.
func (s *MemoryStore) GetCart(_ context.Context, email string) ([]models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.carts[email]
	out := make([]models.CartLine, len(lines))
	copy(out, lines)
	return out, nil
}

// AppendCartLine implements Store.
func (s *MemoryStore) AppendCartLine(_ context.Context, line models.CartLine) (models.CartLine, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.carts[line.CustomerEmail] {
		if existing.MedicineID == line.MedicineID {
			return existing, false, nil
		}
	}
	s.carts[line.CustomerEmail] = append(s.carts[line.CustomerEmail], line)
	return line, true, nil
}

// RemoveCartLine implements Store.
func (s *MemoryStore) RemoveCartLine(_ context.Context, email, medicineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[email]
	for i, existing := range lines {
		if existing.MedicineID == medicineID {
			s.carts[email] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

// ClearCart implements Store.
func (s *MemoryStore) ClearCart(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, email)
	return nil
}
