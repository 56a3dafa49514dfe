// Package server is the HTTP and WebSocket API of the scanner.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/middleware"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
)

// shutdownTimeout bounds the graceful drain in Run.
const shutdownTimeout = 10 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when non-empty.
	APIKey string
	// RateLimit requests per RateWindow per client IP; 0 disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers. Archive and Hub may be nil.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Opportunities *handler.OpportunityHandler
	Evaluate      *handler.EvaluateHandler
	Archive       *handler.ArchiveHandler
	Hub           *ws.Hub
}

// Server is the headless API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain
// CORS -> logging -> rate limit -> auth. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	o := handlers.Opportunities
	mux.HandleFunc("GET /api/cross/latest", o.LatestCross)
	mux.HandleFunc("GET /api/cross/history", o.CrossHistory)
	mux.HandleFunc("GET /api/triangular/latest", o.LatestTriangular)
	mux.HandleFunc("GET /api/triangular/history", o.TriangularHistory)
	mux.HandleFunc("GET /api/reports", o.Reports)
	mux.HandleFunc("GET /api/exchanges", o.Exchanges)
	mux.HandleFunc("POST /api/scan/{kind}/trigger", o.Trigger)

	mux.HandleFunc("POST /api/evaluate/cross", handlers.Evaluate.Cross)
	mux.HandleFunc("POST /api/evaluate/triangular", handlers.Evaluate.Triangular)

	if a := handlers.Archive; a != nil {
		mux.HandleFunc("GET /api/archive/{kind}", a.List)
		mux.HandleFunc("GET /api/archive/{kind}/{month}", a.Get)
	}
	if handlers.Hub != nil {
		mux.HandleFunc("GET /ws", handlers.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
