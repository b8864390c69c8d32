package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/HanTheDev/phish-guard/internal/cache"
	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/ratelimit"
	"github.com/HanTheDev/phish-guard/internal/rules"
	"github.com/HanTheDev/phish-guard/internal/scoring"
	"github.com/HanTheDev/phish-guard/internal/telemetry"
)

// MaxContentBytes is the largest content accepted for analysis.
const MaxContentBytes = 20 * 1024

var (
	ErrEmptyContent    = errors.New("content must be a non-empty string")
	ErrContentTooLarge = fmt.Errorf("content exceeds the %dKB size limit", MaxContentBytes/1024)
)

// RateLimitError is returned when the client has used up its quota.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily limit of %d requests exceeded, resets at %s",
		e.Decision.Limit, e.Decision.ResetAt.UTC().Format(time.RFC3339))
}

type Request struct {
	Content string
	Kind    llm.Kind
}

type Outcome struct {
	Result    *models.AnalysisResult
	Cached    bool
	IsURL     bool
	RateLimit ratelimit.Decision
}

// Limiter is the slice of ratelimit.RateLimiter the analyzer needs.
type Limiter interface {
	Check(ctx context.Context, clientID string) (ratelimit.Decision, error)
}

type Analyzer struct {
	limiter    Limiter
	cache      *cache.ResultCache
	engine     *rules.Engine
	classifier llm.Classifier
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

func New(limiter Limiter, resultCache *cache.ResultCache, engine *rules.Engine, classifier llm.Classifier, metrics *telemetry.Metrics, logger *slog.Logger) *Analyzer {
	if engine == nil {
		engine = rules.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		limiter:    limiter,
		cache:      resultCache,
		engine:     engine,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// Analyze runs one request through rate limiting, validation, the URL cache,
// the rule engine and the classifier. The returned Outcome is non-nil as soon
// as the limiter has decided, so callers can echo quota headers on errors too.
func (a *Analyzer) Analyze(ctx context.Context, clientID string, req Request) (*Outcome, error) {
	ctx, span := otel.Tracer("phishguard/analyzer").Start(ctx, "analyzer.analyze")
	defer span.End()

	decision, err := a.limiter.Check(ctx, clientID)
	if err != nil {
		span.SetStatus(codes.Error, "rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	out := &Outcome{RateLimit: decision}

	if !decision.Allowed {
		a.metrics.RecordDenied(ctx)
		a.logger.Warn("rate limit exceeded", "client", clientID, "limit", decision.Limit, "reset_at", decision.ResetAt)
		return out, &RateLimitError{Decision: decision}
	}

	if strings.TrimSpace(req.Content) == "" {
		return out, ErrEmptyContent
	}
	if len(req.Content) > MaxContentBytes {
		return out, ErrContentTooLarge
	}

	out.IsURL = cache.IsURL(req.Content)
	span.SetAttributes(attribute.Bool("content.is_url", out.IsURL))

	if out.IsURL && a.cache.Enabled() {
		cached := a.cache.Lookup(ctx, req.Content)
		a.metrics.RecordCacheLookup(ctx, cached != nil)
		if cached != nil {
			out.Result = cached
			out.Cached = true
			a.logger.Info("analysis served from cache", "client", clientID, "score", cached.Score)
			return out, nil
		}
	}

	findings := a.engine.Scan(req.Content)

	verdict, err := a.classify(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "classifier failed")
		a.logger.Error("classifier failed", "client", clientID, "error", err)
		return out, err
	}

	out.Result = merge(findings, verdict)
	span.SetAttributes(
		attribute.Int("findings", len(findings)),
		attribute.String("score", out.Result.Score.String()),
	)

	if out.IsURL {
		a.cache.Store(ctx, req.Content, out.Result)
	}

	a.logger.Info("analysis complete",
		"client", clientID,
		"score", out.Result.Score,
		"findings", len(findings),
		"remaining", decision.Remaining,
	)
	return out, nil
}

func (a *Analyzer) classify(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	kind := req.Kind
	if kind != llm.KindURL {
		kind = llm.KindEmail
	}

	start := time.Now()
	verdict, err := a.classifier.Classify(ctx, llm.Request{Content: req.Content, Kind: kind})
	if err == nil && verdict == nil {
		err = errors.New("empty verdict")
	}
	a.metrics.RecordLLM(ctx, time.Since(start), err == nil)

	if err != nil {
		if !errors.Is(err, llm.ErrClassifier) {
			err = fmt.Errorf("%w: %w", llm.ErrClassifier, err)
		}
		return nil, err
	}
	return verdict, nil
}

// merge folds rule findings into the classifier verdict. Rule highlights come
// first so they win deduplication, and the score never drops below either side.
func merge(findings []models.Finding, verdict *models.AnalysisResult) *models.AnalysisResult {
	summary := verdict.Summary
	if len(findings) > 0 {
		summary += fmt.Sprintf("\n\nStatic rules found %d additional risk factor(s).", len(findings))
	}
	return &models.AnalysisResult{
		Score:      scoring.HigherRisk(scoring.FromFindings(findings), verdict.Score),
		Highlights: scoring.MergeHighlights(scoring.Highlights(findings), verdict.Highlights),
		Summary:    summary,
	}
}
