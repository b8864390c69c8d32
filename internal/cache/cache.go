package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/HanTheDev/phish-guard/internal/models"
)

const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrMiss             = errors.New("cache: miss")
	ErrDisabled         = errors.New("cache: disabled")
	ErrStatsUnsupported = errors.New("cache: backend does not support stats")
)

// Backend persists entries keyed by fingerprint.
type Backend interface {
	Get(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	IncrementHits(ctx context.Context, fingerprint string) error
	Top(ctx context.Context, now time.Time, limit int) ([]models.CacheStat, error)
}

// ResultCache stores analysis results for URL submissions. Every backend
// failure is logged and downgraded to a miss or a no-op.
type ResultCache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger.With("component", "cache"),
	}
}

// Disabled returns a cache that always misses.
func Disabled() *ResultCache {
	return New(nil, nil)
}

func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.now = now
	return c
}

func (c *ResultCache) Enabled() bool {
	return c != nil && c.backend != nil
}

func (c *ResultCache) Lookup(ctx context.Context, content string) *models.AnalysisResult {
	if !c.Enabled() {
		return nil
	}
	fp := Fingerprint(content)
	now := c.now()

	entry, err := c.backend.Get(ctx, fp, now)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache lookup failed", "fingerprint", fp[:12], "error", err)
		}
		return nil
	}
	if entry == nil || entry.Expired(now) {
		return nil
	}

	if err := c.backend.IncrementHits(ctx, fp); err != nil {
		c.logger.Warn("cache hit count update failed", "fingerprint", fp[:12], "error", err)
	}

	return entry.Result.Clone()
}

func (c *ResultCache) Store(ctx context.Context, content string, result *models.AnalysisResult) {
	if !c.Enabled() || result == nil {
		return
	}
	now := c.now()
	entry := &models.CacheEntry{
		Fingerprint: Fingerprint(content),
		Domain:      Domain(content),
		Result:      *result.Clone(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.backend.Put(ctx, entry); err != nil {
		c.logger.Warn("cache store failed", "fingerprint", entry.Fingerprint[:12], "domain", entry.Domain, "error", err)
	}
}

// Stats lists live entries by descending hit count.
func (c *ResultCache) Stats(ctx context.Context, limit int) ([]models.CacheStat, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return c.backend.Top(ctx, c.now(), limit)
}

// Fingerprint is the hex SHA-256 of the trimmed, lower-cased content. Raw
// URLs are never used as keys.
func Fingerprint(content string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(content))))
	return fmt.Sprintf("%x", hash)
}

// IsURL reports whether content, once trimmed, is an absolute URL with a host.
func IsURL(content string) bool {
	u, err := url.Parse(strings.TrimSpace(content))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// Domain returns the lower-cased hostname of content, or "unknown".
func Domain(content string) string {
	u, err := url.Parse(strings.ToLower(strings.TrimSpace(content)))
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
