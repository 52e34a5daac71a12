package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/briefwire/briefwire-backend/api/controllers"
	"github.com/briefwire/briefwire-backend/api/middleware"
	"github.com/briefwire/briefwire-backend/internal/entitlements"
	"github.com/briefwire/briefwire-backend/internal/providers"
	"github.com/briefwire/briefwire-backend/internal/users"
	"github.com/briefwire/briefwire-backend/pkg/config"
	"github.com/briefwire/briefwire-backend/pkg/db"
	"github.com/briefwire/briefwire-backend/pkg/logger"
	"github.com/briefwire/briefwire-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	usersRepo *users.Repository,
	registry *providers.Registry,
	entitlementsService entitlements.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Webhooks authenticate by payload, not by user identity.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{provider}", controllers.ProviderWebhook(registry, entitlementsService, logg))
	})

	r.Route("/api/v1/entitlements", func(r chi.Router) {
		r.Use(middleware.UserContext(usersRepo, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/verify", controllers.VerifyPurchase(entitlementsService, logg))
	})

	return r
}
