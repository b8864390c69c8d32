package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HanTheDev/phish-guard/internal/analyzer"
	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/telemetry"
)

// maxBodyBytes bounds the request body read. It sits well above the content
// ceiling so oversized content still reaches the size check.
const maxBodyBytes = 256 * 1024

type analyzeRequest struct {
	Content json.RawMessage `json:"content"`
	Type    string          `json:"type"`
}

type analyzeResponse struct {
	Success bool                   `json:"success"`
	Result  *models.AnalysisResult `json:"result,omitempty"`
	Cached  bool                   `json:"cached"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type Handler struct {
	analyzer *analyzer.Analyzer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewHandler(a *analyzer.Analyzer, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		analyzer: a,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.RecordRequest(ctx, "invalid")
			writeError(w, http.StatusBadRequest, analyzer.ErrContentTooLarge.Error())
			return
		}
		h.metrics.RecordRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// Non-string content is analyzed as empty so it fails validation after
	// the quota check like any other invalid input.
	var content string
	_ = json.Unmarshal(body.Content, &content)

	clientID := ClientID(r)
	out, err := h.analyzer.Analyze(ctx, clientID, analyzer.Request{
		Content: content,
		Kind:    llm.Kind(body.Type),
	})
	if out != nil {
		setRateLimitHeaders(w, out)
	}

	var rlErr *analyzer.RateLimitError
	switch {
	case err == nil:
	case errors.As(err, &rlErr):
		h.metrics.RecordRequest(ctx, "rate_limited")
		writeError(w, http.StatusTooManyRequests, rlErr.Error())
		return
	case errors.Is(err, analyzer.ErrEmptyContent), errors.Is(err, analyzer.ErrContentTooLarge):
		h.metrics.RecordRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, llm.ErrClassifier):
		h.metrics.RecordRequest(ctx, "llm_error")
		writeError(w, http.StatusInternalServerError, "Failed to analyze content")
		return
	default:
		h.metrics.RecordRequest(ctx, "error")
		h.logger.Error("analyze failed", "client", clientID, "error", err, "request_id", RequestIDFromContext(ctx))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	outcome := "ok"
	if out.Cached {
		outcome = "cached"
	}
	h.metrics.RecordRequest(ctx, outcome)

	writeJSON(w, http.StatusOK, analyzeResponse{
		Success: true,
		Result:  out.Result,
		Cached:  out.Cached,
	})
}

func setRateLimitHeaders(w http.ResponseWriter, out *analyzer.Outcome) {
	d := out.RateLimit
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
	if out.IsURL {
		status := "MISS"
		if out.Cached {
			status = "HIT"
		}
		w.Header().Set("X-Cache-Status", status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
