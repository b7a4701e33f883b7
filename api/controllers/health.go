package controllers

import (
	"context"
	"net/http"

	"github.com/pharmadesk/pharmadesk-backend/api/responses"
	"github.com/pharmadesk/pharmadesk-backend/pkg/config"
	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
)

// Pinger is satisfied by the shared database, redis, and the local store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PharmaDesk-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness; it fails if any registered backend is
// unreachable.
func HealthReady(cfg *config.Config, logg *logger.Logger, backends map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PharmaDesk-Env", cfg.App.Env)

		statuses := map[string]string{}
		var failed bool
		for name, backend := range backends {
			if backend == nil {
				continue
			}
			if err := backend.Ping(r.Context()); err != nil {
				statuses[name] = "down"
				failed = true
				if logg != nil {
					logg.Error(logg.WithStoreName(r.Context(), name), "health.backend_down", err)
				}
				continue
			}
			statuses[name] = "up"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "backend unreachable").WithDetails(statuses))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "backends": statuses})
	}
}
