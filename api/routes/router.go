package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pharmadesk/pharmadesk-backend/api/controllers"
	"github.com/pharmadesk/pharmadesk-backend/api/middleware"
	"github.com/pharmadesk/pharmadesk-backend/internal/licensing"
	"github.com/pharmadesk/pharmadesk-backend/pkg/config"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
	"github.com/pharmadesk/pharmadesk-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	licensingService licensing.Service,
	backends map[string]controllers.Pinger,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	submitPolicy := middleware.NewSubmitRateLimitPolicy(
		"submit",
		cfg.RateLimit.SubmitWindow,
		cfg.RateLimit.SubmitIPLimit,
		cfg.RateLimit.SubmitEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, backends))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg, cfg.Idempotency.TTL))

		r.With(middleware.SubmitRateLimit(submitPolicy, redisClient, logg)).
			Post("/license-requests", controllers.LicenseRequestCreate(licensingService, logg))
		r.Get("/license-requests", controllers.LicenseRequestList(licensingService, logg))
		r.Get("/license-requests/{id}", controllers.LicenseRequestGet(licensingService, logg))
		r.Put("/license-requests", controllers.LicenseRequestDecide(licensingService, logg))

		r.Get("/cart", controllers.CartGet(licensingService, logg))
	})

	return r
}
