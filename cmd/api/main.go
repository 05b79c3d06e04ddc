// QuantDesk REST API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantdesk/quantdesk/internal/agents"
	"github.com/quantdesk/quantdesk/internal/api"
	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/db"
	"github.com/quantdesk/quantdesk/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("QUANTDESK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	log.Info().
		Str("version", config.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting QuantDesk API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database and NATS are optional at startup; endpoints that need
	// them report their absence per request.
	var database *db.DB
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	database, err = db.New(dbCtx, cfg.Database.GetDSN())
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, continuing without persistence")
		database = nil
	} else {
		defer database.Close()
	}

	var natsConn *nats.Conn
	natsConn, err = nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, signal stream disabled")
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	// Signals published on the bus land in the signals table when both
	// the database and NATS are up
	if database != nil && natsConn != nil {
		signalRepo := db.NewSignalRepository(database.Pool())
		sub, err := agents.SubscribeSignals(natsConn, func(sig *agents.Signal) {
			insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := signalRepo.Insert(insertCtx, db.RowFromSignal(sig)); err != nil {
				log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Failed to persist signal")
			}
		}, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Signal recording disabled")
		} else {
			defer func() { _ = sub.Unsubscribe() }()
		}
	}

	server := api.NewServer(api.Config{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		RateLimit: cfg.API.RateLimitRPS,
		DB:        database,
		NATSConn:  natsConn,
	})

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start metrics server")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping API server")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error stopping metrics server")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("API server failed")
	}

	log.Info().Msg("QuantDesk API shutdown complete")
}
