package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/config"
	"github.com/johnwmail/pasties/handlers"
	"github.com/johnwmail/pasties/internal/auth"
	"github.com/johnwmail/pasties/internal/metrics"
	"github.com/johnwmail/pasties/internal/services"
	"github.com/johnwmail/pasties/storage"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// HTTPServer wires storage, the paste service and the gin router together
type HTTPServer struct {
	config  *config.Config
	service *services.PasteService
	metrics *metrics.Metrics
	router  *gin.Engine
	limiter *ipLimiter
	logger  *zap.Logger
}

// NewHTTPServer builds the router for store. Metrics are collected only when
// cfg.EnableMetrics is set.
func NewHTTPServer(cfg *config.Config, store storage.PasteStore, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}

	s := &HTTPServer{
		config: cfg,
		service: services.NewPasteService(store, services.Options{
			SlugLength: cfg.SlugLength,
			Ownership:  cfg.PasteOwnership,
			Logger:     logger,
			Metrics:    m,
		}),
		metrics: m,
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the router with all middleware applied
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() *gin.Engine {
	router := gin.New()
	// X-Forwarded-For is only honoured from these peers; ClientIP feeds the
	// rate limiter
	if err := router.SetTrustedProxies(s.config.TrustedProxies); err != nil {
		s.logger.Warn("ignoring invalid TRUSTED_PROXIES", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		requestLogger(s.logger),
		jsonRecovery(s.logger),
		observeRequests(s.metrics),
		cors(s.config.CORSOrigins),
	)
	router.NoRoute(handlers.NotFound)

	systemHandler := handlers.NewSystemHandler(s.service, s.config.Version)
	router.GET("/health", systemHandler.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	authenticator := auth.New(s.config.AuthSecret)
	if !authenticator.Enabled() {
		s.logger.Info("AUTH_SECRET is empty, every request is anonymous")
	}

	api := router.Group("/api",
		rateLimit(s.limiter),
		limitBody(s.config.MaxBodyBytes),
		handlers.ResolveEditor(authenticator),
	)
	handlers.NewPasteHandler(s.service, s.logger).Register(api)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully. The expired
// paste janitor and the rate limiter sweep run alongside.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	s.logger.Info("HTTP server started",
		zap.String("address", ln.Addr().String()),
		zap.String("storage", s.config.DBType),
		zap.String("version", s.config.Version))

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go s.runJanitor(bgCtx, s.config.CleanupInterval)
	go s.limiter.sweep(bgCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server shutdown complete")
	return nil
}

// runJanitor prunes expired pastes every interval; interval <= 0 disables it
func (s *HTTPServer) runJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.service.PruneExpired(ctx)
			if err != nil {
				s.logger.Warn("expired paste cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired pastes removed", zap.Int64("count", n))
			}
		}
	}
}
