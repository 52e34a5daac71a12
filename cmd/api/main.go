package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/briefwire/briefwire-backend/api/routes"
	"github.com/briefwire/briefwire-backend/internal/entitlements"
	"github.com/briefwire/briefwire-backend/internal/providers"
	"github.com/briefwire/briefwire-backend/internal/users"
	"github.com/briefwire/briefwire-backend/pkg/config"
	"github.com/briefwire/briefwire-backend/pkg/db"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	"github.com/briefwire/briefwire-backend/pkg/logger"
	"github.com/briefwire/briefwire-backend/pkg/metrics"
	"github.com/briefwire/briefwire-backend/pkg/migrate"
	"github.com/briefwire/briefwire-backend/pkg/redis"
	"github.com/briefwire/briefwire-backend/pkg/square"
	"github.com/briefwire/briefwire-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry, err := buildProviderRegistry(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build provider registry", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	entitlementMetrics := metrics.NewEntitlementMetrics(prometheus.DefaultRegisterer)
	entitlementsService, err := entitlements.NewService(entitlements.ServiceParams{
		Store:    entitlements.NewStore(dbClient.DB()),
		Guard:    entitlements.NewIdempotencyGuard(dbClient.DB()),
		Users:    usersRepo,
		Registry: registry,
		Logger:   logg,
		Metrics:  entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlements service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, usersRepo, registry, entitlementsService),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if closeErr != nil {
		logg.Error(ctx, "error during shutdown", closeErr)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

// buildProviderRegistry wires a verifier for every provider with credentials.
// Providers left out resolve to the unconfigured variant.
func buildProviderRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*providers.Registry, error) {
	entries := map[enums.PaymentProvider]providers.Verifier{}
	httpClient := &http.Client{Timeout: cfg.Entitlements.ProviderCallTimeout}

	if cfg.Apple.Configured() {
		entries[enums.PaymentProviderApple] = providers.NewAppleVerifier(cfg.Apple, httpClient)
	}
	if cfg.Google.Configured() {
		entries[enums.PaymentProviderGoogle] = providers.NewGoogleVerifier(cfg.Google, httpClient)
	}
	if cfg.Stripe.Configured() {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		entries[enums.PaymentProviderStripe] = providers.NewStripeVerifier(providers.NewStripeSubscriptionClient(stripeClient))
	}
	if cfg.Square.Configured() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		entries[enums.PaymentProviderSquare] = providers.NewSquareVerifier(squareClient)
	}

	registry := providers.NewRegistry(entries)
	for _, provider := range enums.PaymentProviders() {
		if !registry.Configured(provider) {
			logg.Warn(logg.WithProvider(ctx, provider.String()), "payment provider has no credentials; requests for it will fail")
		}
	}
	return registry, nil
}
