// Package server assembles the HTTP + WebSocket API: route registration,
// the middleware chain, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/server/handler"
	"github.com/divaprotocol/diva-engine/internal/server/middleware"
	"github.com/divaprotocol/diva-engine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminToken guards the governance endpoints. Empty disables them.
	AdminToken string

	// RateLimitPerMinute caps requests per client IP; zero disables limiting.
	RateLimitPerMinute int
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Offers     *handler.OfferHandler
	Pools      *handler.PoolHandler
	Positions  *handler.PositionHandler
	Events     *handler.EventHandler
	Governance *handler.GovernanceHandler

	// Archive is nil when no object storage is configured; the admin archive
	// routes are only registered when it is present.
	Archive *handler.ArchiveHandler
}

// Server is the protocol's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil
// to run without rate limiting; wsHub may be nil to run without the
// WebSocket endpoint.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (never rate limited, never authenticated).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Offer endpoints. State derivation is a POST because the full offer and
	// signature are the input.
	mux.HandleFunc("POST /api/offers/fill", handlers.Offers.Fill)
	mux.HandleFunc("POST /api/offers/fill-batch", handlers.Offers.FillBatch)
	mux.HandleFunc("POST /api/offers/cancel", handlers.Offers.Cancel)
	mux.HandleFunc("POST /api/offers/state", handlers.Offers.RelevantState)

	// Pool reads and settlement transitions.
	mux.HandleFunc("GET /api/pools", handlers.Pools.ListPools)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("POST /api/pools/{id}/final-value", handlers.Pools.SubmitFinalValue)
	mux.HandleFunc("POST /api/pools/{id}/challenge", handlers.Pools.Challenge)
	mux.HandleFunc("POST /api/pools/{id}/finalize", handlers.Pools.Finalize)

	// Redemption and fee claims.
	mux.HandleFunc("POST /api/redeem", handlers.Positions.Redeem)
	mux.HandleFunc("GET /api/claims/{token}/{recipient}", handlers.Positions.GetClaim)

	// Event journal.
	mux.HandleFunc("GET /api/events", handlers.Events.ListRecent)

	// Governance admin surface, guarded by the admin token.
	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/params", handlers.Governance.GetParams)
	admin.HandleFunc("POST /api/admin/fees", handlers.Governance.AppendFees)
	admin.HandleFunc("POST /api/admin/periods", handlers.Governance.AppendPeriods)
	admin.HandleFunc("POST /api/admin/treasury", handlers.Governance.SetTreasury)
	admin.HandleFunc("POST /api/admin/fallback-provider", handlers.Governance.SetFallbackProvider)
	admin.HandleFunc("POST /api/admin/pause", handlers.Governance.PauseReturnCollateral)
	if handlers.Archive != nil {
		admin.HandleFunc("GET /api/admin/archive", handlers.Archive.ListBatches)
		admin.HandleFunc("GET /api/admin/archive/{key...}", handlers.Archive.GetBatch)
		admin.HandleFunc("DELETE /api/admin/archive/{key...}", handlers.Archive.DeleteBatch)
	}
	mux.Handle("/api/admin/", middleware.AdminAuth(cfg.AdminToken)(admin))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
