// Package api provides the HTTP boundary of the VerusPulse core.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
	"github.com/caribu66/veruspulse-sub016/internal/scan"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// IdentityServiceInterface defines the identity operations the API exposes
type IdentityServiceInterface interface {
	Resolve(ctx context.Context, input string) (*models.IdentityRecord, error)
	GetCached(ctx context.Context, input string) (*models.IdentityRecord, error)
	GetStats(ctx context.Context, identityAddress string) (*models.IdentityStats, error)
}

// ScanServiceInterface defines the scan operations the API exposes
type ScanServiceInterface interface {
	RequestPriorityScan(identityAddress string) (*scan.Receipt, error)
	RequestFullScan(ctx context.Context, identityAddress string) (*scan.Progress, error)
	GetProgress(handle string) *scan.Progress
}

// TrendServiceInterface defines the trend queries the API exposes
type TrendServiceInterface interface {
	GetTrendingVerusIDs(ctx context.Context, limit int) ([]models.TrendSnapshot, error)
}

// ChainReaderInterface is the cached RPC read path for chain endpoints
type ChainReaderInterface interface {
	Get(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// Pinger reports dependency liveness for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStatusFunc reports the RPC endpoint pool state for the health endpoint.
// A nil func omits the pool section.
type PoolStatusFunc func() *rpc.Status

// Server is the HTTP API server
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	identities  IdentityServiceInterface
	scans       ScanServiceInterface
	trends      TrendServiceInterface
	chain       ChainReaderInterface
	broadcaster *events.Broadcaster
	eventsCfg   *config.EventsConfig
	pingers     map[string]Pinger
	poolStatus  PoolStatusFunc
	logger      *logging.Logger
}

// NewServer creates a new API server instance
func NewServer(
	cfg *config.ServerConfig,
	eventsCfg *config.EventsConfig,
	identities IdentityServiceInterface,
	scans ScanServiceInterface,
	trends TrendServiceInterface,
	chain ChainReaderInterface,
	broadcaster *events.Broadcaster,
	pingers map[string]Pinger,
	poolStatus PoolStatusFunc,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		identities:  identities,
		scans:       scans,
		trends:      trends,
		chain:       chain,
		broadcaster: broadcaster,
		eventsCfg:   eventsCfg,
		pingers:     pingers,
		poolStatus:  poolStatus,
		logger:      logging.GetGlobalLogger().WithField("component", "api"),
	}

	s.setupRouter(cfg)
	return s
}

func (s *Server) setupRouter(cfg *config.ServerConfig) {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: s.router,
		// No WriteTimeout: the SSE endpoint holds connections open.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/identity/{input}", s.handleResolve).Methods("GET")
	api.HandleFunc("/identity/{input}/cached", s.handleGetCached).Methods("GET")
	api.HandleFunc("/identity/{input}/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/identity/{input}/scan", s.handlePriorityScan).Methods("POST")
	api.HandleFunc("/identity/{input}/scan/full", s.handleFullScan).Methods("POST")
	api.HandleFunc("/scans/{handle}", s.handleScanProgress).Methods("GET")

	api.HandleFunc("/trending", s.handleTrending).Methods("GET")

	api.HandleFunc("/chain/info", s.chainHandler("getblockchaininfo")).Methods("GET")
	api.HandleFunc("/chain/mining", s.chainHandler("getmininginfo")).Methods("GET")
	api.HandleFunc("/chain/network", s.chainHandler("getnetworkinfo")).Methods("GET")
	api.HandleFunc("/chain/mempool", s.chainHandler("getrawmempool")).Methods("GET")

	api.HandleFunc("/events", s.handleEvents).Methods("GET")
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
