package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/server/handler"
	"github.com/alanyoungcy/dexengine/internal/server/middleware"
	"github.com/alanyoungcy/dexengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Auth        middleware.AuthConfig
	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Listings *handler.ListingHandler
	Orders   *handler.OrderHandler
	Escrow   *handler.EscrowHandler
	Admin    *handler.AdminHandler
	Events   *handler.EventHandler
	Archives *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API of the exchange engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	auth := cfg.Auth
	auth.Public = append(auth.Public, "/api/health")
	h = middleware.Auth(auth)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

func registerRoutes(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/listings", h.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", h.Listings.ListToken)
	mux.HandleFunc("GET /api/listings/{token}", h.Listings.GetListing)
	mux.HandleFunc("GET /api/listings/{token}/price", h.Listings.GetPrice)

	mux.HandleFunc("GET /api/orders", h.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", h.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/take", h.Orders.TakeOrder)
	mux.HandleFunc("GET /api/tokens/{token}/orders", h.Orders.ListTokenOrders)
	mux.HandleFunc("GET /api/tokens/{token}/orders/{index}", h.Orders.GetTokenOrder)
	mux.HandleFunc("POST /api/settlements", h.Orders.SettleOrders)
	mux.HandleFunc("POST /api/clearing", h.Orders.ClearOrders)
	mux.HandleFunc("POST /api/clearing/{token}", h.Orders.ClearTokenOrders)

	mux.HandleFunc("POST /api/escrow/deposit", h.Escrow.Deposit)
	mux.HandleFunc("POST /api/escrow/withdraw", h.Escrow.Withdraw)
	mux.HandleFunc("GET /api/balances/{account}", h.Escrow.GetBalances)

	mux.HandleFunc("POST /api/admin/oracle", h.Admin.AssignOracle)
	mux.HandleFunc("POST /api/admin/owner", h.Admin.AssignOwner)
	mux.HandleFunc("POST /api/admin/fee-collector", h.Admin.AssignFeeCollector)
	mux.HandleFunc("POST /api/admin/renounce", h.Admin.Renounce)
	mux.HandleFunc("POST /api/admin/credit", h.Admin.Credit)

	mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	mux.HandleFunc("GET /api/audit", h.Events.ListAudit)

	if h.Archives != nil {
		mux.HandleFunc("GET /api/archives/{reason}", h.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{reason}/{object...}", h.Archives.GetArchive)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
