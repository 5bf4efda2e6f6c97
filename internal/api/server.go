package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"erpinsight/internal/api/health"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// ServerConfig holds listener settings. Zero values get defaults.
type ServerConfig struct {
	Port         int
	ServiceName  string
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RouteRegistrar mounts a group of routes on the server mux
type RouteRegistrar func(mux *http.ServeMux)

// Server owns the listener for probes, metrics and the API
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// HeaderRequestID carries the request id in and out. Handlers read it from
// the response headers.
const HeaderRequestID = "X-Request-Id"

// NewServer mounts probes, metrics and every registrar on one mux
func NewServer(cfg ServerConfig, healthHandler *health.Handler, log *logger.Logger, routes ...RouteRegistrar) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)
	mux.Handle("GET /metrics", metrics.Handler())
	for _, register := range routes {
		register(mux)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	cfg = cfg.withDefaults()
	log.Infow("HTTP server configured", "port", cfg.Port, "write_timeout", cfg.WriteTimeout)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      withRequestID(recoverPanics(mux, log)),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Port <= 0 {
		c.Port = 8000
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	// multi-agent queries make several sequential LLM calls
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 180 * time.Second
	}
	return c
}

// withRequestID keeps a caller supplied id or mints one, echoes it in the
// response and attaches it to the request logger
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := logger.IntoContext(r.Context(), logger.FromContext(r.Context()).With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverPanics(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.ErrorWithContext(r.Context(), fmt.Errorf("panic: %v", rec), map[string]string{
				"path":       r.URL.Path,
				"request_id": w.Header().Get(HeaderRequestID),
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the routed mux. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks until the server stops
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown drains in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("✓ HTTP server stopped")
	return nil
}
