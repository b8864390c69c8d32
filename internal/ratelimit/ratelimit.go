package ratelimit

import (
	"context"
	"io"
	"net"
	"time"
)

const DefaultWindow = 24 * time.Hour

// Policy is the quota configuration. DevLimit only applies when DevMode is
// set and the client is a loopback address; config never sets DevMode in
// production.
type Policy struct {
	Limit    int64
	DevLimit int64
	Window   time.Duration
	DevMode  bool
}

func (p Policy) LimitFor(clientID string) int64 {
	if p.DevMode && p.DevLimit > 0 && isLoopback(clientID) {
		return p.DevLimit
	}
	return p.Limit
}

func (p Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}

func isLoopback(clientID string) bool {
	if clientID == "localhost" {
		return true
	}
	ip := net.ParseIP(clientID)
	return ip != nil && ip.IsLoopback()
}

type Decision struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}

// Backend performs one atomic check-and-increment for key.
type Backend interface {
	Take(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Decision, error)
}

type RateLimiter struct {
	backend Backend
	policy  Policy
	now     func() time.Time
}

func NewRateLimiter(backend Backend, policy Policy) *RateLimiter {
	return &RateLimiter{
		backend: backend,
		policy:  policy,
		now:     time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) Policy() Policy {
	return rl.policy
}

// Check counts one request for clientID within its rolling window.
func (rl *RateLimiter) Check(ctx context.Context, clientID string) (Decision, error) {
	limit := rl.policy.LimitFor(clientID)
	key := "ratelimit:" + clientID

	d, err := rl.backend.Take(ctx, key, limit, rl.policy.window(), rl.now())
	if err != nil {
		return Decision{}, err
	}
	d.Limit = limit
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

func (rl *RateLimiter) Close() error {
	if c, ok := rl.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
