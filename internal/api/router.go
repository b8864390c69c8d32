package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const version = "1.0.0"

// Pinger is a dependency the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter mounts the analyze and health routes. Extra registrars (the admin
// surface) share the same middleware chain.
func NewRouter(h *Handler, deps map[string]Pinger, logger *slog.Logger, extra ...func(*mux.Router)) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(logger))

	router.HandleFunc("/health", healthHandler(deps)).Methods("GET")
	router.HandleFunc("/api/analyze", h.Analyze).Methods("POST")

	for _, register := range extra {
		register(router)
	}
	return router
}

func healthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		writeJSON(w, code, map[string]any{
			"status":  status,
			"version": version,
			"checks":  checks,
		})
	}
}
