package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/phish-guard/internal/analyzer"
	"github.com/HanTheDev/phish-guard/internal/cache"
	"github.com/HanTheDev/phish-guard/internal/config"
	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/ratelimit"
	"github.com/HanTheDev/phish-guard/internal/rules"
	"github.com/HanTheDev/phish-guard/internal/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	router *mux.Router
	calls  *atomic.Int32
}

func newTestEnv(t *testing.T, verdict *models.AnalysisResult, llmErr error) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, ratelimit.Policy{Limit: 10}, verdict, llmErr)
}

func newTestEnvWithPolicy(t *testing.T, policy ratelimit.Policy, verdict *models.AnalysisResult, llmErr error) *testEnv {
	t.Helper()
	calls := &atomic.Int32{}
	classifier := llm.ClassifierFunc(func(context.Context, llm.Request) (*models.AnalysisResult, error) {
		calls.Add(1)
		if llmErr != nil {
			return nil, llmErr
		}
		return verdict.Clone(), nil
	})
	limiter := ratelimit.NewRateLimiter(ratelimit.NewKVBackend(store.NewMemory()), policy)
	resultCache := cache.New(cache.NewKVBackend(store.NewMemory()), quietLogger)
	a := analyzer.New(limiter, resultCache, rules.New(), classifier, nil, quietLogger)
	return &testEnv{
		router: NewRouter(NewHandler(a, nil, quietLogger), nil, quietLogger),
		calls:  calls,
	}
}

func (e *testEnv) post(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func analyzeBody(t *testing.T, content, kind string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"content": content, "type": kind})
	require.NoError(t, err)
	return string(raw)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error
}

func safeVerdict() *models.AnalysisResult {
	return &models.AnalysisResult{Score: models.Safe, Highlights: []models.Highlight{}, Summary: "Nothing suspicious."}
}

func TestAnalyzeEmptyContent(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)

	for _, body := range []string{`{"content":"","type":"email"}`, `{"type":"email"}`, `{"content":42}`} {
		rec := env.post(t, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, decodeError(t, rec), "non-empty")
	}
	assert.Zero(t, env.calls.Load())
}

func TestAnalyzeContentTooLarge(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)

	rec := env.post(t, analyzeBody(t, strings.Repeat("a", 21*1024), "email"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "size limit")
	assert.Zero(t, env.calls.Load())

	rec = env.post(t, analyzeBody(t, strings.Repeat("a", maxBodyBytes+1), "email"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "size limit")
}

func TestAnalyzeInvalidJSON(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)

	rec := env.post(t, `{"content":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decodeError(t, rec))
}

func TestAnalyzeSuccessMergesRules(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)

	rec := env.post(t, analyzeBody(t, "은행 계좌 확인: bit.ly/check", "email"), map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                  `json:"success"`
		Result  models.AnalysisResult `json:"result"`
		Cached  bool                  `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.False(t, body.Cached)
	assert.Equal(t, models.Low, body.Result.Score)
	assert.Len(t, body.Result.Highlights, 1)
	assert.Contains(t, body.Result.Summary, "1 additional risk factor")

	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Positive(t, reset)
	assert.Empty(t, rec.Header().Get("X-Cache-Status"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAnalyzeRateLimit(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)
	headers := map[string]string{"X-Real-IP": "198.51.100.20"}

	for i := 0; i < 10; i++ {
		rec := env.post(t, analyzeBody(t, "hello", "email"), headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.post(t, analyzeBody(t, "hello", "email"), headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, decodeError(t, rec), "10")

	other := env.post(t, analyzeBody(t, "hello", "email"), map[string]string{"X-Real-IP": "198.51.100.21"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestAnalyzeDefaultConfigIgnoresForwardedLoopback(t *testing.T) {
	for _, k := range []string{"APP_ENV", "ALLOW_DEV_MODE", "RATE_LIMIT", "DEV_RATE_LIMIT"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	env := newTestEnvWithPolicy(t, cfg.RateLimitPolicy(), safeVerdict(), nil)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(analyzeBody(t, "hello", "email")))
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 10; i++ {
		rec := send()
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send().Code)
}

func TestAnalyzeURLCacheHeaders(t *testing.T) {
	env := newTestEnv(t, &models.AnalysisResult{Score: models.High, Highlights: []models.Highlight{}, Summary: "Fake login."}, nil)
	body := analyzeBody(t, "https://secure-login.example.tk/", "url")

	first := env.post(t, body, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache-Status"))

	second := env.post(t, body, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache-Status"))
	assert.Contains(t, second.Body.String(), `"cached":true`)
	assert.Equal(t, int32(1), env.calls.Load())
}

func TestAnalyzeClassifierFailure(t *testing.T) {
	env := newTestEnv(t, nil, errors.New("upstream timeout"))

	rec := env.post(t, analyzeBody(t, "hello", "email"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeError(t, rec)
	assert.Equal(t, "Failed to analyze content", msg)
	assert.NotContains(t, msg, "upstream")
	assert.NotContains(t, rec.Body.String(), "Safe")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, safeVerdict(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthDegraded(t *testing.T) {
	router := NewRouter(&Handler{}, map[string]Pinger{
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		"postgres": pingerFunc(func(context.Context) error { return nil }),
	}, quietLogger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 203.0.113.1 , 10.0.0.2", "X-Real-IP": "198.51.100.1"}, "192.0.2.1:5555", "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.1"}, "192.0.2.1:5555", "198.51.100.1"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote", nil, "[::1]:5555", "::1"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientID(req))
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
