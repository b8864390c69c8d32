package admin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/phish-guard/internal/auth"
	"github.com/HanTheDev/phish-guard/internal/cache"
	"github.com/HanTheDev/phish-guard/internal/models"
)

const (
	defaultStatsLimit = 100
	maxStatsLimit     = 1000
)

type AdminHandler struct {
	cache     *cache.ResultCache
	apiKey    string
	jwtSecret string
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdminHandler(resultCache *cache.ResultCache, apiKey, jwtSecret string, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		cache:     resultCache,
		apiKey:    apiKey,
		jwtSecret: jwtSecret,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/token", h.IssueToken).Methods("POST")

	protected := router.PathPrefix("/admin/cache").Subrouter()
	protected.Use(auth.NewMiddleware(h.jwtSecret).RequireAdmin)
	protected.HandleFunc("/stats", h.GetCacheStats).Methods("GET")
}

func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.APIKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.apiKey)) != 1 {
		h.logger.Warn("admin token rejected", "remote", r.RemoteAddr)
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
		return
	}

	now := h.now()
	token, err := auth.GenerateToken(auth.RoleAdmin, h.jwtSecret, now)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("admin token issued", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":      token,
		"expires_at": now.Add(auth.TokenTTL).UTC(),
	})
}

func (h *AdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxStatsLimit)
	}

	stats, err := h.cache.Stats(r.Context(), limit)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		http.Error(w, "Cache is disabled", http.StatusServiceUnavailable)
		return
	case errors.Is(err, cache.ErrStatsUnsupported):
		http.Error(w, "Cache backend does not support stats", http.StatusNotImplemented)
		return
	case err != nil:
		h.logger.Error("cache stats failed", "error", err)
		http.Error(w, "Failed to get cache stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []models.CacheStat{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": stats,
		"count":   len(stats),
	})
}
