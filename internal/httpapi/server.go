// Package httpapi exposes the router's HTTP control surface: the
// query/stats/reload endpoints, model registry introspection, and
// conversation CRUD/search/export/import, all as a gin.Engine.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/registry"
	"github.com/SHINZO111/llm-smart-router/internal/router"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Options configures a Server's cross-cutting concerns, read from
// environment variables.
type Options struct {
	ConfigPath     string
	JWTSecret      string        // ROUTER_JWT_SECRET; empty disables auth
	AllowedOrigins []string      // ROUTER_ALLOWED_ORIGINS
	RateLimit      time.Duration // ROUTER_RATE_LIMIT_MS

	// FallbackDB is the registry's badger handle, reused here so an
	// operator can persist a fallback_priority.json override over HTTP
	// instead of editing the file on disk directly. Nil disables the
	// endpoint (404).
	FallbackDB *badger.DB
}

// Server wires a Router, Store, and Registry into the HTTP control
// surface.
type Server struct {
	router     *router.Router
	store      *store.Store
	registry   *registry.Registry
	configPath string
	fallbackDB *badger.DB
	logger     *slog.Logger

	metricsHandler http.Handler
	engine         *gin.Engine
}

// NewServer builds the gin.Engine and wires every route.
func NewServer(r *router.Router, st *store.Store, reg *registry.Registry, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:         r,
		store:          st,
		registry:       reg,
		configPath:     opts.ConfigPath,
		fallbackDB:     opts.FallbackDB,
		logger:         logger,
		metricsHandler: promhttp.HandlerFor(r.MetricsRegistry(), promhttp.HandlerOpts{}),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("llm-smart-router"))
	engine.Use(securityHeaders())
	engine.Use(cors(opts.AllowedOrigins))
	engine.Use(rateLimiter(opts.RateLimit))

	s.engine = engine
	s.setupRoutes(opts.JWTSecret)
	return s
}

// Engine exposes the underlying gin.Engine, e.g. for httptest.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts the HTTP server on addr (host:port from ROUTER_API_HOST /
// ROUTER_API_PORT).
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}
