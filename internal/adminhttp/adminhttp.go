// Package adminhttp serves the broker's operational surface: liveness,
// readiness, and Prometheus metrics. This sits outside the raw
// HTTP/1.1 wire protocol in internal/transport, which only speaks the
// broker's own GET/POST/PUT entity protocol. Grounded on
// infrastructure/middleware/health.go's HealthChecker/ReadinessHandler
// pair and cmd/gateway/main.go's router wiring (mux + promhttp.Handler
// mounted alongside the application routes).
package adminhttp

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/resource-broker/internal/sysinfo"
)

// Server is the broker's admin HTTP surface (health, readiness, metrics).
type Server struct {
	Addr           string
	MetricsEnabled bool
	startTime      time.Time

	mu    sync.RWMutex
	ready bool
}

// New builds an admin Server bound to addr. metricsEnabled gates whether
// /metrics is mounted at all (cfg.MetricsEnabled).
func New(addr string, metricsEnabled bool) *Server {
	return &Server{Addr: addr, MetricsEnabled: metricsEnabled, startTime: time.Now()}
}

// SetReady flips the readiness flag returned by /ready.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Handler builds the mux router serving /healthz, /ready, and /metrics.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	if s.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	return router
}

// ListenAndServe starts the admin HTTP server. It blocks until the
// server errors or is shut down.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	stats := sysinfo.Snapshot()
	status := map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(s.startTime).String(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"host":       stats,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
