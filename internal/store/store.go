// Package store holds the string-keyed stores shared by the rate limiter and
// the result cache.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// KV is a minimal expiring key/value store. A ttl of zero means no expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
