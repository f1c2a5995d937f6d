// Package server assembles the public HTTP API and the internal health and
// metrics listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/httputil"
	"github.com/platinummonkey/tasklane/pkg/middleware"
	"github.com/platinummonkey/tasklane/pkg/observability"
	"github.com/platinummonkey/tasklane/pkg/rbac"
	"github.com/platinummonkey/tasklane/pkg/settings"
)

// APIPrefix is where every authenticated route lives.
const APIPrefix = "/api/v1"

const maxBodyBytes = 1 << 20

// Dependencies are the wired components the router exposes. ActivityStore and
// Metrics may be nil.
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tokens  middleware.TokenValidator

	RBACAdmin   *rbac.Admin
	RBACStore   rbac.Store
	Permissions *rbac.Resolver
	Guard       *rbac.Middleware

	Settings         *settings.Service
	SettingsResolver *settings.Resolver

	ActivityStore activity.Store
}

// Config holds listener settings.
type Config struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the public API listener.
type Server struct {
	httpServer *http.Server
	logger     *observability.Logger
}

// New builds the API server. It does not start listening.
func New(cfg Config, deps Dependencies) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: deps.Logger,
	}
}

// NewHandler returns the full middleware stack around the API router.
func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})

	api := router.PathPrefix(APIPrefix).Subrouter()
	if deps.Metrics != nil {
		api.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	api.Use(middleware.NewAuthMiddleware(deps.Tokens, false).Handler)

	rbac.NewHandlers(deps.RBACAdmin, deps.RBACStore, deps.Permissions, deps.Guard).RegisterRoutes(api)
	settings.NewHandlers(deps.Settings, deps.SettingsResolver, deps.Permissions, deps.Guard).RegisterRoutes(api)
	if deps.ActivityStore != nil {
		guard := deps.Guard.RequirePermission(rbac.PermActivityView, rbac.ScopeFromQuery("project_id"))
		activity.NewHandlers(deps.ActivityStore).RegisterRoutes(api, guard)
	}

	stack := httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)
	return otelhttp.NewHandler(stack(router), "tasklane.api")
}

// Handler exposes the configured handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens in a background goroutine. A listener failure is sent on the
// returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(s.logger, "api server")
		s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewHealthServer serves /health, /health/live, /health/ready and, when
// gatherer is set, /metrics on a separate port.
func NewHealthServer(host, port string, checker *observability.HealthChecker, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, checker)
	if gatherer != nil {
		observability.RegisterMetricsEndpoint(mux, gatherer)
	}
	return &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
