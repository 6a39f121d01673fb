package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the monitor's report and the Prometheus registry over HTTP.
type Server struct {
	monitor *Monitor
	http    *http.Server
}

func NewServer(monitor *Monitor, port int) *Server {
	s := &Server{monitor: monitor}
	s.http = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler routes GET /health, GET /health/detailed and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := s.monitor.CheckHealth(r.Context())
		writeJSON(w, statusCode(report.SystemStatus), map[string]SystemStatus{"status": report.SystemStatus})
	})
	mux.HandleFunc("GET /health/detailed", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// statusCode maps a report to its HTTP code; only critical fails the check.
func statusCode(status SystemStatus) int {
	if status == StatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
