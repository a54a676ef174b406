// Package api provides the HTTP server for the Iris coordinator: task
// submission and polling for clients, an SSE stream per task, operational
// read endpoints, and the admin surface for accounts and enrollment tokens.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iris-network/iris/internal/app/account"
	"github.com/iris-network/iris/internal/app/orchestrate"
	"github.com/iris-network/iris/internal/app/token"
	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/health"
	"github.com/iris-network/iris/internal/infra/breaker"
	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/reputation"
	"github.com/iris-network/iris/internal/infra/stream"
)

// Version is the coordinator release string reported by /version.
const Version = "0.1.0"

// Server is the Iris HTTP API server.
type Server struct {
	store    domain.Store
	accounts *account.Service
	tokens   *token.Service
	orc      *orchestrate.Orchestrator
	registry *registry.Registry
	breakers *breaker.Manager
	rep      *reputation.Engine
	hub      *stream.Hub
	checker  *health.Checker

	workerHandler  http.HandlerFunc
	metricsEnabled bool
	adminKey       string
}

// NewServer creates the API server over the shared coordinator state.
func NewServer(
	store domain.Store,
	accounts *account.Service,
	tokens *token.Service,
	orc *orchestrate.Orchestrator,
	reg *registry.Registry,
	breakers *breaker.Manager,
	rep *reputation.Engine,
	hub *stream.Hub,
	checker *health.Checker,
) *Server {
	return &Server{
		store:    store,
		accounts: accounts,
		tokens:   tokens,
		orc:      orc,
		registry: reg,
		breakers: breakers,
		rep:      rep,
		hub:      hub,
		checker:  checker,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetAdminKey guards the /admin surface. With an empty key the surface is
// open, which is only sensible on a loopback deployment.
func (s *Server) SetAdminKey(key string) { s.adminKey = key }

// SetWorkerHandler mounts the worker WebSocket endpoint at /ws.
func (s *Server) SetWorkerHandler(h http.HandlerFunc) { s.workerHandler = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	// Client surface. The stream endpoint has no server timeout; the hub
	// TTL bounds abandoned sessions.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Post("/inference", s.handleSubmit)
		r.Get("/inference/{id}", s.handleGetTask)
	})
	r.Get("/inference/{id}/stream", s.handleStream)

	// Operational read endpoints.
	r.Get("/stats", s.handleStats)
	r.Get("/nodes", s.handleNodes)
	r.Get("/reputation", s.handleReputation)

	// Admin surface.
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{id}", s.handleDescribeAccount)
		r.Post("/accounts/{id}/suspend", s.handleSuspendAccount)
		r.Post("/accounts/{id}/reactivate", s.handleReactivateAccount)
		r.Post("/tokens", s.handleGenerateToken)
		r.Get("/tokens", s.handleListTokens)
		r.Delete("/tokens/{id}", s.handleRevokeToken)
	})

	if s.workerHandler != nil {
		r.Get("/ws", s.workerHandler)
	}
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	report := s.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// principal resolves the caller's account from the Authorization header.
func (s *Server) principal(r *http.Request) (*domain.Account, error) {
	key := r.Header.Get("Authorization")
	if after, ok := cutPrefixFold(key, "Bearer "); ok {
		key = after
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.accounts.Verify(key)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) {
		return s, false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return s, false
		}
	}
	return s[len(prefix):], true
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey != "" && r.Header.Get("X-Admin-Key") != s.adminKey {
			writeError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Admin-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
