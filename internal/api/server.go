// Package api serves the administrative HTTP surface over the memory engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/metrics"
)

// Options configures the server.
type Options struct {
	Addr        string
	MetricsPath string // empty disables the metrics route

	// Reclaim supplies defaults for POST /api/reclaim.
	Reclaim memory.ReclaimOptions
}

// Server wires the chi router to a session manager.
type Server struct {
	manager *memory.Manager
	metrics *metrics.Manager
	opts    Options
	log     logrus.FieldLogger
}

// NewServer creates a server. m may be nil.
func NewServer(manager *memory.Manager, m *metrics.Manager, opts Options, log logrus.FieldLogger) *Server {
	if m == nil {
		m = metrics.NewManager(false)
	}
	return &Server{
		manager: manager,
		metrics: m,
		opts:    opts,
		log:     log.WithField("component", "api"),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.recordMetrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.MetricsPath != "" && s.metrics.Enabled() {
		r.Handle(s.opts.MetricsPath, s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/search", s.search)
		r.Post("/reclaim", s.reclaim)
		r.Post("/rebuild", s.rebuild)

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", s.listMemories)
			r.Post("/", s.createMemory)
			r.Get("/{id}", s.getMemory)
			r.Patch("/{id}", s.updateMemory)
			r.Delete("/{id}", s.deleteMemory)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/{id}", s.getSession)
			r.Delete("/{id}", s.clearSession)
			r.Get("/{id}/turns", s.sessionTurns)
			r.Post("/{id}/turns", s.ingestTurn)
			r.Post("/{id}/distill", s.distill)
			r.Get("/{id}/context", s.sessionContext)
		})
	})
	return r
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("admin API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// recordMetrics labels requests by route pattern to keep cardinality bounded.
func (s *Server) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if route == s.opts.MetricsPath {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
