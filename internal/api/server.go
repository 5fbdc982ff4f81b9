// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/testnet-faucet/internal/ledger"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/registry"
	"github.com/testnet-faucet/internal/storage"
)

// FaucetLedger defines the ledger operations the handlers need.
type FaucetLedger interface {
	Drip(ctx context.Context, req ledger.DripRequest) (*ledger.DripResult, error)
	Donate(ctx context.Context, claim ledger.DonationClaim) (*ledger.DonationResult, error)
	Pool(ctx context.Context, chainID int64) (*ledger.PoolState, error)
}

// NetworkResolver defines the registry operations the handlers need.
type NetworkResolver interface {
	Resolve(ctx context.Context, chainID int64) (*registry.Resolution, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	ledger     FaucetLedger
	networks   NetworkResolver
	cache      *storage.RedisCache
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ThrottleRPS     int // Per-IP requests per second
}

// NewServer creates a new API server instance. cache may be nil to serve
// pool state uncached.
func NewServer(
	config *ServerConfig,
	faucetLedger FaucetLedger,
	networks NetworkResolver,
	cache *storage.RedisCache,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		ledger:   faucetLedger,
		networks: networks,
		cache:    cache,
		logger:   logger,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	throttle := NewThrottle(s.config.ThrottleRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(ThrottleMiddleware(throttle))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Faucet endpoints
	api.HandleFunc("/faucet/{chainId}/drip", s.handleDrip).Methods("POST")
	api.HandleFunc("/faucet/{chainId}/donations", s.handleDonate).Methods("POST")
	api.HandleFunc("/faucet/{chainId}", s.handleGetPool).Methods("GET")

	// Network endpoints
	api.HandleFunc("/networks/{chainId}", s.handleGetNetwork).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":  "healthy",
		"service": "testnet-faucet",
	}
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			status["cache"] = "unavailable"
		} else {
			status["cache"] = "ok"
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// Router exposes the configured router; used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
