// Package http serves the per-user document API used by the fintrack client.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// maxBodySize bounds a single document payload.
const maxBodySize = 1 << 20

// Store is the document store behind the API.
type Store interface {
	Create(ctx context.Context, userID string, rec core.Record) (string, error)
	Update(ctx context.Context, userID string, rec core.Record) error
	Delete(ctx context.Context, userID string, entity core.Entity, id string) error
	Get(ctx context.Context, userID string, entity core.Entity, id string) (core.Record, error)
	List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error)
	Ping(ctx context.Context) error
}

// Config holds the HTTP server settings.
type Config struct {
	Addr     string
	APIToken string

	ListCacheSize  int
	ListCacheTTL   time.Duration
	RateLimit      ratelimit.Config
	TrustedProxies []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is an http.Server wired with the document routes. Shutdown also
// stops the background cache and limiter cleanups.
type Server struct {
	http.Server

	store     Store
	publisher amqp.Publisher
	logger    *log.Logger
	events    *log.StructuredLogger

	listCache    *cache.LRUCache[[]byte]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	detector     *security.Detector

	shutdownOnce sync.Once
}

// NewServer builds the router. publisher may be nil, in which case no
// record-changed events are emitted.
func NewServer(cfg Config, store Store, publisher amqp.Publisher, logger *log.Logger) (*Server, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if cfg.ListCacheSize <= 0 {
		cfg.ListCacheSize = 500
	}
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 5 * time.Minute
	}

	detector, err := security.NewDetector(cfg.TrustedProxies, logger)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		store:        store,
		publisher:    publisher,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		listCache:    cache.NewLRUCache[[]byte](cfg.ListCacheSize, cfg.ListCacheTTL),
		cacheManager: cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(cfg.RateLimit, logger),
		detector:     detector,
	}
	s.cacheManager.Register(s.listCache)
	s.cacheManager.StartCleanup(cfg.ListCacheTTL)

	s.Handler = s.routes(cfg.APIToken)
	return s, nil
}

func (s *Server) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.logger).Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.RequestID))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Head("/", handleHealth)
	r.Get("/", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1/users/{userID}/{entity}", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP))
		r.Use(BearerAuth(token))
		r.Use(documentParams)

		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
