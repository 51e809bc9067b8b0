package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tiendafix/stockhold/internal/app"
	"github.com/tiendafix/stockhold/internal/clock"
	"github.com/tiendafix/stockhold/internal/config"
	"github.com/tiendafix/stockhold/internal/gateway"
	"github.com/tiendafix/stockhold/internal/storage/postgres"
	transporthttp "github.com/tiendafix/stockhold/internal/transport/http"
	"github.com/tiendafix/stockhold/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load(logger)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	reservationRepo := postgres.NewReservationRepository(pool)
	engine := app.NewReservationService(reservationRepo, clock.NewSystem(),
		app.WithReservationTTL(cfg.ReservationTTL))
	variantRepo := postgres.NewVariantRepository(pool)
	adminSvc := app.NewAdminService(variantRepo, clock.NewSystem())
	checkoutSvc := app.NewCheckoutService(engine, gateway.NewLocal(), logger)
	sweeper := app.NewSweeper(engine, logger, app.WithSweepInterval(cfg.SweepInterval))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/reservations", transporthttp.HandleCreateReservation(engine))
	mux.Handle("/reservations/active", transporthttp.HandleListActive(engine))
	mux.Handle("/reservations/", transporthttp.HandleReleaseReservation(engine))
	mux.Handle("/sessions/", transporthttp.HandleReleaseSession(engine))
	mux.Handle("/variants/", transporthttp.HandleAvailability(engine))
	mux.Handle("/checkout", transporthttp.HandleCheckout(checkoutSvc))
	mux.Handle("/payments/webhook", transporthttp.HandlePaymentWebhook(checkoutSvc))
	mux.Handle("/admin/variants", transporthttp.HandleAdminVariants(adminSvc))
	mux.Handle("/admin/variants/", transporthttp.HandleAdminVariantStock(adminSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(stopCtx)

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}
