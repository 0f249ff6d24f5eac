package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/cuemby/aria/pkg/lifecycle"
	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/metrics"
	"github.com/cuemby/aria/pkg/registry"
)

const (
	minLogLines     = 1
	maxLogLines     = 10_000
	defaultLogLines = 100
)

// Server is the control plane's HTTP control surface.
type Server struct {
	instances *registry.InstanceRegistry
	lifecycle *lifecycle.Manager
	logger    zerolog.Logger
	router    chi.Router
}

// NewServer builds the chi router and registers every route in §4.6.
func NewServer(instances *registry.InstanceRegistry, lifecycleMgr *lifecycle.Manager) *Server {
	s := &Server{
		instances: instances,
		lifecycle: lifecycleMgr,
		logger:    log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api/instances", func(r chi.Router) {
		r.Get("/", s.handleListInstances)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetInstance)
			r.Get("/logs", s.handleInstanceLogs)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/restart", s.handleRestart)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("control plane HTTP server listening")
	return srv.ListenAndServe()
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rw.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to an HTTP status per §4.6/§7 and writes
// {"error": "<message>"}.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	if kind, ok := lifecycle.ErrorKind(err); ok {
		switch kind {
		case lifecycle.KindNotFound:
			status = http.StatusNotFound
		case lifecycle.KindAlreadyRunning, lifecycle.KindNotRunning, lifecycle.KindLockHeld:
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
		}
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func clampLines(raw string) int {
	if raw == "" {
		return defaultLogLines
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultLogLines
	}
	if n < minLogLines {
		return minLogLines
	}
	if n > maxLogLines {
		return maxLogLines
	}
	return n
}
