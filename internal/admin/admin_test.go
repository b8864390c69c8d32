package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/phish-guard/internal/cache"
	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/store"
)

const (
	apiKey    = "admin-key"
	jwtSecret = "jwt-secret"
)

type statsBackend struct {
	stats     []models.CacheStat
	lastLimit int
}

func (b *statsBackend) Get(context.Context, string, time.Time) (*models.CacheEntry, error) {
	return nil, cache.ErrMiss
}

func (b *statsBackend) Put(context.Context, *models.CacheEntry) error { return nil }

func (b *statsBackend) IncrementHits(context.Context, string) error { return nil }

func (b *statsBackend) Top(_ context.Context, _ time.Time, limit int) ([]models.CacheStat, error) {
	b.lastLimit = limit
	return b.stats, nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRouter(resultCache *cache.ResultCache) *mux.Router {
	router := mux.NewRouter()
	NewAdminHandler(resultCache, apiKey, jwtSecret, quietLogger).RegisterRoutes(router)
	return router
}

func issueToken(t *testing.T, router http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(`{"api_key":"`+apiKey+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), body.ExpiresAt, time.Minute)
	return body.Token
}

func TestIssueTokenRejectsBadKey(t *testing.T) {
	router := newRouter(cache.Disabled())

	for _, body := range []string{`{"api_key":"wrong"}`, `{"api_key":""}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Contains(t, []int{http.StatusUnauthorized, http.StatusBadRequest}, rec.Code, body)
	}
}

func TestCacheStats(t *testing.T) {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	backend := &statsBackend{stats: []models.CacheStat{
		{Domain: "secure-login.tk", Score: models.Critical, HitCount: 12, CreatedAt: created},
		{Domain: "example.com", Score: models.Safe, HitCount: 3, CreatedAt: created},
	}}
	router := newRouter(cache.New(backend, quietLogger))
	token := issueToken(t, router)

	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, backend.lastLimit)

	var body struct {
		Entries []models.CacheStat `json:"entries"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "secure-login.tk", body.Entries[0].Domain)
	assert.Equal(t, models.Critical, body.Entries[0].Score)
}

func TestCacheStatsLimits(t *testing.T) {
	backend := &statsBackend{}
	router := newRouter(cache.New(backend, quietLogger))
	token := issueToken(t, router)

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultStatsLimit, backend.lastLimit)
	assert.Contains(t, rec.Body.String(), `"entries":[]`)

	get("?limit=100000")
	assert.Equal(t, maxStatsLimit, backend.lastLimit)

	assert.Equal(t, http.StatusBadRequest, get("?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, get("?limit=abc").Code)
}

func TestCacheStatsRequiresToken(t *testing.T) {
	router := newRouter(cache.New(&statsBackend{}, quietLogger))

	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCacheStatsUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		cache *cache.ResultCache
		want  int
	}{
		{"disabled", cache.Disabled(), http.StatusServiceUnavailable},
		{"kv backend", cache.New(cache.NewKVBackend(store.NewMemory()), quietLogger), http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(tt.cache)
			token := issueToken(t, router)

			req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
