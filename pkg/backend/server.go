package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backend/handlers"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backend/middleware"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// DefaultShutdownTimeout applies when ServerConfig.ShutdownTimeout is zero
const DefaultShutdownTimeout = 30 * time.Second

// Server exposes a dispatcher over HTTP
type Server struct {
	config     backendtypes.BackendConfig
	dispatcher *dispatch.Dispatcher
	collector  types.MetricsCollector
	logger     *zap.Logger
	kinds      map[string]string
	router     *chi.Mux

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	stopped    bool
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger for request logs and server lifecycle events
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsCollector overrides the collector read by the metrics and
// health endpoints. By default the dispatcher's collector is used.
func WithMetricsCollector(collector types.MetricsCollector) Option {
	return func(s *Server) {
		s.collector = collector
	}
}

// WithTransportTypes maps transport names to their configured type for the
// transport listing.
func WithTransportTypes(kinds map[string]string) Option {
	return func(s *Server) {
		s.kinds = kinds
	}
}

// NewServer creates a server for dispatcher
func NewServer(config backendtypes.BackendConfig, dispatcher *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		config:     config,
		dispatcher: dispatcher,
		collector:  dispatcher.GetMetricsCollector(),
		logger:     zap.NewNop(),
		router:     chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.applyMiddleware()
	s.setupRoutes()

	return s
}

// applyMiddleware installs the chain. Execution order:
// RealIP -> RequestID -> Logging -> Recovery -> CORS -> Auth -> handler.
func (s *Server) applyMiddleware() {
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(s.logger.Named("http")))
	s.router.Use(middleware.Recovery(s.logger))

	if s.config.CORS.Enabled {
		s.router.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: s.config.CORS.AllowedOrigins,
			AllowedMethods: s.config.CORS.AllowedMethods,
			AllowedHeaders: s.config.CORS.AllowedHeaders,
		}))
	}

	if s.config.Auth.Enabled {
		s.router.Use(middleware.Auth(middleware.AuthConfig{
			Enabled:     true,
			APIPassword: s.config.Auth.APIPassword,
			APIKeyEnv:   s.config.Auth.APIKeyEnv,
			PublicPaths: s.config.Auth.PublicPaths,
		}))
	}
}

// setupRoutes registers all HTTP routes with their corresponding handlers
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.dispatcher, s.collector, s.config.Server.Version)
	sendHandler := handlers.NewSendHandler(s.dispatcher, s.config.Server.SendTimeout, s.logger)
	transportHandler := handlers.NewTransportHandler(s.dispatcher, s.kinds, s.collector)
	metricsHandler := handlers.NewMetricsHandler(s.collector, s.dispatcher.Gate())

	r := s.router
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handlers.SendError(w, req, backendtypes.ErrCodeNotFound,
			"The requested resource was not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		handlers.SendError(w, req, "METHOD_NOT_ALLOWED",
			"The requested method is not allowed for this resource", http.StatusMethodNotAllowed)
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/status", healthHandler.Status)
	r.Get("/version", healthHandler.Version)

	r.Route("/api", func(r chi.Router) {
		r.Post("/send", sendHandler.Send)
		r.Get("/transports", transportHandler.ListTransports)
		r.Get("/metrics", metricsHandler.GetDispatchMetrics)
		r.Get("/metrics/system", metricsHandler.GetSystemMetrics)
		r.Get("/metrics/transports/{name}", metricsHandler.GetTransportMetrics)
	})
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured host and port and serves until Shutdown
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown, including when Shutdown ran before Serve.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(s.logger.Named("http")),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = l.Close()
		return http.ErrServerClosed
	}
	s.httpServer = srv
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("starting server",
		zap.String("addr", l.Addr().String()),
		zap.String("version", s.config.Server.Version),
		zap.String("dispatcher", s.dispatcher.Name()),
		zap.Strings("transports", s.dispatcher.Transports()))

	return srv.Serve(l)
}

// Addr returns the listening address, or "" before Serve
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight sends until
// ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// GetDispatcher returns the dispatcher behind the API
func (s *Server) GetDispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() backendtypes.BackendConfig {
	return s.config
}

// ListenAndServeWithGracefulShutdown starts the server and shuts it down when
// shutdownSignal is closed, waiting at most ServerConfig.ShutdownTimeout.
func (s *Server) ListenAndServeWithGracefulShutdown(shutdownSignal <-chan struct{}) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-shutdownSignal:
		timeout := s.config.Server.ShutdownTimeout
		if timeout == 0 {
			timeout = DefaultShutdownTimeout
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return s.Shutdown(ctx)
	}
}
