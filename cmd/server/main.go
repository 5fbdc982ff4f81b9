// Package main provides the API server entry point for the faucet service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/testnet-faucet/internal/analytics"
	"github.com/testnet-faucet/internal/api"
	"github.com/testnet-faucet/internal/config"
	"github.com/testnet-faucet/internal/consensus"
	"github.com/testnet-faucet/internal/dispatch"
	"github.com/testnet-faucet/internal/identity"
	"github.com/testnet-faucet/internal/ledger"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/policy"
	"github.com/testnet-faucet/internal/ratelimit"
	"github.com/testnet-faucet/internal/registry"
	"github.com/testnet-faucet/internal/storage"
	"github.com/testnet-faucet/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if !types.IsValidAddress(cfg.Faucet.Address) {
		logger.WithField("address", cfg.Faucet.Address).Fatal("FAUCET_ADDRESS is not a valid address")
	}

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse is the analytics sink and stays optional; the faucet
	// serves traffic without it.
	var events *analytics.Sink
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, analytics disabled")
		events = analytics.NewSink(nil, logger)
	} else {
		defer clickhouse.Close()
		if err := analytics.EnsureSchema(context.Background(), clickhouse); err != nil {
			logger.WithError(err).Warn("Failed to ensure analytics schema")
		}
		events = analytics.NewSink(clickhouse, logger)
	}
	defer events.Close()

	logger.Info("Database connections established")

	// Wire the core
	store := storage.NewFaucetStore(postgres)
	networks := registry.New(cfg.Registry.UpstreamURL, cfg.Registry.SnapshotTTL)
	liveness := consensus.NewLivenessCache(redis.Client(), cfg.RPC.LivenessTTL)
	chain := consensus.NewClient(nil, consensus.Config{
		Timeout:      cfg.RPC.Timeout,
		Attempts:     cfg.RPC.Attempts,
		RetryBackoff: cfg.RPC.RetryBackoff,
	}, liveness)

	claimPolicy, err := policy.New(cfg.Faucet.MinBalance, cfg.Faucet.OptimalBalance, cfg.Faucet.MaxClaim)
	if err != nil {
		logger.WithError(err).Fatal("Invalid claim policy configuration")
	}

	limiter := ratelimit.NewLimiter(cfg.Faucet.ClaimWindow)
	oracle := identity.NewHTTPScoreOracle(cfg.Identity.OracleURL, cfg.Identity.OracleAPIKey)
	gate := identity.NewGate(oracle, cfg.Faucet.DonationTrustMin, cfg.Identity.ScoreThreshold, logger)

	dispatcher, err := dispatch.NewDispatcher(cfg.Faucet.PrivateKey, nil, cfg.RPC.Timeout, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize dispatcher")
	}

	faucetLedger := ledger.New(
		store,
		networks,
		chain,
		gate,
		limiter,
		claimPolicy,
		dispatcher,
		events,
		cfg.Faucet.Address,
		logger,
	)

	// Start the API server
	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		ThrottleRPS:     cfg.Server.ThrottleRPS,
	}, faucetLedger, networks, redis, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Server stopped")
}
