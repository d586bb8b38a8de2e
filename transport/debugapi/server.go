// Package debugapi exposes operator-facing HTTP introspection for the
// transport core: liveness, Prometheus metrics, and a live-connection
// snapshot. None of it is part of the peer wire protocol.
package debugapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackshare/clustercomm/internal/logger"
	"github.com/hackshare/clustercomm/transport/conn"
)

// ConnLister reports a point-in-time connection snapshot. transport/conn.Server
// and transport/local.LocalServer both satisfy it.
type ConnLister interface {
	Connections() []conn.Stats
}

// Server is the debug/introspection HTTP server described in
// SPEC_FULL.md §2/§6.
type Server struct {
	http *http.Server
}

// NewServer builds the debug HTTP server. reg is the Prometheus registry to
// serve at /metrics (pass the same *prometheus.Registry given to
// transport/metrics.NewRecorder); listers are queried, in order, to answer
// /debug/connections.
func NewServer(addr string, reg *prometheus.Registry, listers ...ConnLister) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/debug/connections", func(w http.ResponseWriter, req *http.Request) {
		var all []conn.Stats
		for _, l := range listers {
			all = append(all, l.Connections()...)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(all)
	})

	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP server immediately, closing its listeners and
// any open connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("debug API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
