// Package server serves finalized sessions over HTTP: listings, CSV and
// workbook downloads, health and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/metrics"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
)

// SessionStore is the read side of store.Store.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.SessionSummary, error)
	Ping(ctx context.Context) error
}

// ViewSource regenerates the export views of a finalized session.
type ViewSource interface {
	Views(sess *model.Session) ([]model.View, error)
}

// Config configures the server.
type Config struct {
	AllowedOrigins []string
	CacheTTL       time.Duration
}

// Server wraps the chi router and its dependencies.
type Server struct {
	router  chi.Router
	store   SessionStore
	views   ViewSource
	metrics *metrics.Metrics
	cache   *gocache.Cache
}

// New creates a server with middleware and routes registered. A zero
// CacheTTL caches downloads for five minutes.
func New(st SessionStore, views ViewSource, m *metrics.Metrics, cfg Config) *Server {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &Server{
		router:  chi.NewRouter(),
		store:   st,
		views:   views,
		metrics: m,
		cache:   gocache.New(ttl, 2*ttl),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Flush drops every cached download.
func (s *Server) Flush() {
	s.cache.Flush()
}

func (s *Server) routes() {
	s.router.Get("/health", s.health)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/universe.csv", s.universeCSV)
			r.Get("/subsets/{name}.csv", s.subsetCSV)
			r.Get("/bundle.zip", s.bundleZip)
			r.Get("/workbook.xlsx", s.workbook)
		})
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
