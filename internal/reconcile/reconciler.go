package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pharmadesk/pharmadesk-backend/internal/store"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db/models"
	"github.com/pharmadesk/pharmadesk-backend/pkg/enums"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
	"github.com/pharmadesk/pharmadesk-backend/pkg/metrics"
)

// Reconciler presents one logical view over several physical stores.
//
// Write policy: the primary store is written synchronously and its failure
// fails the operation; secondaries are best-effort and their failures are
// logged and counted, never surfaced. Read policy: union record ids across
// all stores, keep the latest UpdatedAt per id, and dedupe cart lines by
// medicine id. Reads therefore stay correct even when a propagation step
// was dropped.
type Reconciler struct {
	primary     store.Store
	secondaries []store.Store
	logg        *logger.Logger
	pipeline    *metrics.PipelineMetrics
}

// StoreBreakdown is the per-store diagnostic view behind debug listings.
type StoreBreakdown struct {
	Store    string                  `json:"store"`
	Requests []models.LicenseRequest `json:"requests"`
	Err      string                  `json:"error,omitempty"`
}

// New builds a reconciler over the primary and any reachable secondaries.
func New(primary store.Store, secondaries []store.Store, logg *logger.Logger, pipeline *metrics.PipelineMetrics) *Reconciler {
	return &Reconciler{
		primary:     primary,
		secondaries: secondaries,
		logg:        logg,
		pipeline:    pipeline,
	}
}

func (r *Reconciler) stores() []store.Store {
	return append([]store.Store{r.primary}, r.secondaries...)
}

// PutLicenseRequest writes the record through to every store.
func (r *Reconciler) PutLicenseRequest(ctx context.Context, rec models.LicenseRequest) error {
	if err := r.primary.PutLicenseRequest(ctx, rec); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "write license request to primary store")
	}
	r.propagate(ctx, "license_request", func(s store.Store) error {
		return s.PutLicenseRequest(ctx, rec)
	})
	return nil
}

// TransitionLicenseRequest applies the pending-only CAS on the primary store,
// then pushes the decided record to the secondaries so a later merge cannot
// resurrect the pending version.
func (r *Reconciler) TransitionLicenseRequest(ctx context.Context, id uuid.UUID, to enums.LicenseRequestStatus, at time.Time) (models.LicenseRequest, error) {
	rec, err := r.primary.TransitionLicenseRequest(ctx, id, to, at)
	if err != nil {
		return models.LicenseRequest{}, err
	}
	r.propagate(ctx, "license_request_status", func(s store.Store) error {
		return s.PutLicenseRequest(ctx, rec)
	})
	return rec, nil
}

// GetLicenseRequest returns the merged record: the copy with the latest
// UpdatedAt wins across stores.
func (r *Reconciler) GetLicenseRequest(ctx context.Context, id uuid.UUID) (models.LicenseRequest, error) {
	var (
		best  models.LicenseRequest
		found bool
	)
	for _, s := range r.stores() {
		rec, err := s.GetLicenseRequest(ctx, id)
		if err != nil {
			continue
		}
		if !found || rec.UpdatedAt.After(best.UpdatedAt) {
			best = rec
			found = true
		}
	}
	if !found {
		return models.LicenseRequest{}, store.ErrNotFound
	}
	return best, nil
}

// ListLicenseRequests returns the merged list, optionally filtered by
// pharmacy, ordered by creation time.
func (r *Reconciler) ListLicenseRequests(ctx context.Context, pharmacyID string) ([]models.LicenseRequest, error) {
	started := time.Now()
	merged := map[uuid.UUID]models.LicenseRequest{}
	var readable int
	for _, s := range r.stores() {
		rows, err := s.ListLicenseRequests(ctx)
		if err != nil {
			r.logDegradedRead(ctx, s.Name(), err)
			continue
		}
		readable++
		for _, rec := range rows {
			if current, ok := merged[rec.ID]; !ok || rec.UpdatedAt.After(current.UpdatedAt) {
				merged[rec.ID] = rec
			}
		}
	}
	if readable == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStorage, "no store reachable for listing")
	}

	out := make([]models.LicenseRequest, 0, len(merged))
	for _, rec := range merged {
		if pharmacyID != "" && rec.PharmacyID != pharmacyID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	r.pipeline.ObserveMergeDuration(time.Since(started))
	return out, nil
}

// PerStoreBreakdown lists every store's raw contents for diagnostics.
func (r *Reconciler) PerStoreBreakdown(ctx context.Context) []StoreBreakdown {
	out := make([]StoreBreakdown, 0, 1+len(r.secondaries))
	for _, s := range r.stores() {
		entry := StoreBreakdown{Store: s.Name()}
		rows, err := s.ListLicenseRequests(ctx)
		if err != nil {
			entry.Err = err.Error()
		} else {
			sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
			entry.Requests = rows
		}
		out = append(out, entry)
	}
	return out
}

// GetCart returns the merged cart for the customer: union across stores,
// deduplicated by medicine id, ordered by AddedAt.
func (r *Reconciler) GetCart(ctx context.Context, email string) ([]models.CartLine, error) {
	started := time.Now()
	seen := map[string]models.CartLine{}
	for _, s := range r.stores() {
		lines, err := s.GetCart(ctx, email)
		if err != nil {
			r.logDegradedRead(ctx, s.Name(), err)
			continue
		}
		for _, line := range lines {
			if current, ok := seen[line.MedicineID]; !ok || line.AddedAt.Before(current.AddedAt) {
				seen[line.MedicineID] = line
			}
		}
	}

	out := make([]models.CartLine, 0, len(seen))
	for _, line := range seen {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].MedicineID < out[j].MedicineID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	r.pipeline.ObserveMergeDuration(time.Since(started))
	return out, nil
}

// AppendCartLine inserts the line once per (customer, medicine) across the
// merged view. Presence in any store counts as present.
func (r *Reconciler) AppendCartLine(ctx context.Context, line models.CartLine) (models.CartLine, bool, error) {
	merged, err := r.GetCart(ctx, line.CustomerEmail)
	if err != nil {
		return models.CartLine{}, false, err
	}
	for _, existing := range merged {
		if existing.MedicineID == line.MedicineID {
			// Re-propagate to every store, primary included, so copies
			// that missed the original insert heal. The line is already
			// served from the merged view, so a failed heal only degrades
			// redundancy.
			if _, _, err := r.primary.AppendCartLine(ctx, existing); err != nil {
				r.pipeline.IncPropagationFailure(r.primary.Name())
				if r.logg != nil {
					fields := map[string]any{"store": r.primary.Name(), "operation": "cart_line"}
					r.logg.Error(r.logg.WithFields(ctx, fields), "store.propagation_failed", err)
				}
			}
			r.propagate(ctx, "cart_line", func(s store.Store) error {
				_, _, err := s.AppendCartLine(ctx, existing)
				return err
			})
			return existing, false, nil
		}
	}

	inserted, wasInserted, err := r.primary.AppendCartLine(ctx, line)
	if err != nil {
		return models.CartLine{}, false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "write cart line to primary store")
	}
	r.propagate(ctx, "cart_line", func(s store.Store) error {
		_, _, err := s.AppendCartLine(ctx, inserted)
		return err
	})
	return inserted, wasInserted, nil
}

// RemoveCartLine deletes from all stores; primary failure fails the call.
func (r *Reconciler) RemoveCartLine(ctx context.Context, email, medicineID string) error {
	if err := r.primary.RemoveCartLine(ctx, email, medicineID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "remove cart line from primary store")
	}
	r.propagate(ctx, "cart_line_remove", func(s store.Store) error {
		return s.RemoveCartLine(ctx, email, medicineID)
	})
	return nil
}

// ClearCart empties the customer's cart in all stores.
func (r *Reconciler) ClearCart(ctx context.Context, email string) error {
	if err := r.primary.ClearCart(ctx, email); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear cart in primary store")
	}
	r.propagate(ctx, "cart_clear", func(s store.Store) error {
		return s.ClearCart(ctx, email)
	})
	return nil
}

// propagate applies fn to every secondary, swallowing failures. The merged
// read path repairs whatever a dropped write leaves behind.
func (r *Reconciler) propagate(ctx context.Context, operation string, fn func(store.Store) error) {
	var errs error
	for _, s := range r.secondaries {
		if err := fn(s); err != nil {
			errs = multierr.Append(errs, err)
			r.pipeline.IncPropagationFailure(s.Name())
			if r.logg != nil {
				fields := map[string]any{"store": s.Name(), "operation": operation}
				r.logg.Error(r.logg.WithFields(ctx, fields), "store.propagation_failed", err)
			}
		}
	}
	if errs != nil && r.logg != nil {
		r.logg.Warn(r.logg.WithField(ctx, "operation", operation), "continuing with degraded consistency")
	}
}

func (r *Reconciler) logDegradedRead(ctx context.Context, storeName string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Error(r.logg.WithStoreName(ctx, storeName), "store.read_failed", err)
}
