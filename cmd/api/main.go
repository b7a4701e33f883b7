package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pharmadesk/pharmadesk-backend/api/controllers"
	"github.com/pharmadesk/pharmadesk-backend/api/routes"
	"github.com/pharmadesk/pharmadesk-backend/internal/licensing"
	"github.com/pharmadesk/pharmadesk-backend/internal/reconcile"
	"github.com/pharmadesk/pharmadesk-backend/internal/store"
	"github.com/pharmadesk/pharmadesk-backend/pkg/config"
	"github.com/pharmadesk/pharmadesk-backend/pkg/db"
	"github.com/pharmadesk/pharmadesk-backend/pkg/logger"
	"github.com/pharmadesk/pharmadesk-backend/pkg/metrics"
	"github.com/pharmadesk/pharmadesk-backend/pkg/migrate"
	"github.com/pharmadesk/pharmadesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	shared := store.NewSharedStore(dbClient.DB())
	secondaries := []store.Store{store.NewMemoryStore()}
	backends := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	// Local store availability is resolved once here. A disabled or broken
	// local store degrades redundancy, not correctness.
	if cfg.LocalStore.Enabled {
		local, err := store.NewLocalStore(cfg.LocalStore.Dir)
		if err != nil {
			logg.Warn(logg.WithField(context.Background(), "dir", cfg.LocalStore.Dir),
				"local store unavailable, continuing without it")
		} else {
			defer func() {
				if err := local.Close(); err != nil {
					logg.Error(context.Background(), "error closing local store", err)
				}
			}()
			secondaries = append([]store.Store{local}, secondaries...)
			backends["localstore"] = local
		}
	}

	registry := prometheus.NewRegistry()
	pipeline := metrics.NewPipelineMetrics(registry)

	reconciler := reconcile.New(shared, secondaries, logg, pipeline)
	licensingService, err := licensing.NewService(reconciler, logg, pipeline)
	if err != nil {
		logg.Error(context.Background(), "failed to create licensing service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"stores":   len(secondaries) + 1,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, licensingService, backends, registry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
