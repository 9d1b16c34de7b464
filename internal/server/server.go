// Package server implements the zonestore HTTP gateway: a thin REST surface
// over a provider.Store plus health, version and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/server/handlers"
	"github.com/3leaps/zonestore/internal/server/middleware"
	"github.com/3leaps/zonestore/pkg/provider"
)

// Server is the HTTP gateway.
type Server struct {
	host   string
	port   int
	router chi.Router
	log    *zap.Logger

	store           provider.Store
	readOnly        bool
	version         handlers.VersionInfo
	registry        *prometheus.Registry
	metricsPath     string
	maxUploadBytes  int64
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	health *handlers.HealthManager
}

// Option configures a Server.
type Option func(*Server)

// WithStore mounts the /v1/objects API over store.
func WithStore(store provider.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithReadOnly serves only the read routes of the objects API.
func WithReadOnly(readOnly bool) Option {
	return func(s *Server) { s.readOnly = readOnly }
}

// WithLogger sets the access and error logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVersion sets what /version reports.
func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithMetrics registers request metrics in reg and serves them at path.
func WithMetrics(reg *prometheus.Registry, path string) Option {
	return func(s *Server) {
		s.registry = reg
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithMaxUploadBytes caps PUT bodies. Zero or less disables the cap.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// WithTimeouts sets the http.Server timeouts and the graceful shutdown budget.
func WithTimeouts(read, write, idle, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
		s.shutdownTimeout = shutdown
	}
}

// New builds a gateway listening on host:port once Run is called.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:            host,
		port:            port,
		log:             zap.NewNop(),
		version:         handlers.VersionInfo{Version: "dev"},
		metricsPath:     "/metrics",
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		idleTimeout:     120 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.health = handlers.NewHealthManager(s.version.Version)
	if s.store != nil {
		s.health.RegisterChecker("storage", handlers.StoreChecker(s.store))
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	var metrics *httpMetrics
	if s.registry != nil {
		metrics = newHTTPMetrics(s.registry)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.log))
	r.Use(requestMetricsMiddleware(metrics, s.metricsPath))
	r.Use(middleware.RecoveryWithLogger(s.log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusNotFound, handlers.CodeNotFound, "route not found: "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			r.Method+" not allowed on "+r.URL.Path, nil)
	})

	r.Get("/health", s.health.HealthHandler)
	r.Get("/health/live", s.health.LivenessHandler)
	r.Get("/health/ready", s.health.ReadinessHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.registry != nil {
		r.Method(http.MethodGet, s.metricsPath, metricsHandler(s.registry))
	}

	if s.store != nil {
		objects := handlers.NewObjects(s.store, s.maxUploadBytes, s.log)
		r.Route("/v1/objects", func(r chi.Router) {
			r.Get("/", objects.List)
			r.Get("/*", objects.Get)
			r.Head("/*", objects.Head)
			if !s.readOnly {
				r.Put("/*", objects.Put)
				r.Delete("/*", objects.Delete)
			}
		})
	}

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		ErrorLog:          zap.NewStdLog(s.log),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("gateway shutting down", zap.Duration("timeout", s.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
