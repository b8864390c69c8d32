package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/store"
)

const lockStripes = 64

// KVBackend keeps one RateLimitRecord per key in a store.KV. Check-and-increment
// is serialized per key through striped mutexes, so it is atomic within one
// process only; use RedisBackend when several processes share a quota.
type KVBackend struct {
	kv    store.KV
	locks [lockStripes]sync.Mutex
}

func NewKVBackend(kv store.KV) *KVBackend {
	return &KVBackend{kv: kv}
}

func (b *KVBackend) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &b.locks[h.Sum32()%lockStripes]
}

func (b *KVBackend) Take(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Decision, error) {
	mu := b.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	rec, err := b.load(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if rec == nil || !now.Before(rec.ResetAt) {
		rec = &models.RateLimitRecord{Count: 1, ResetAt: now.Add(window)}
		if err := b.save(ctx, key, rec, window); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: limit >= 1, Remaining: limit - 1, ResetAt: rec.ResetAt}, nil
	}

	if rec.Count >= limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: rec.ResetAt}, nil
	}

	rec.Count++
	if err := b.save(ctx, key, rec, rec.ResetAt.Sub(now)); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Remaining: limit - rec.Count, ResetAt: rec.ResetAt}, nil
}

func (b *KVBackend) load(ctx context.Context, key string) (*models.RateLimitRecord, error) {
	raw, err := b.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rate limit record: %w", err)
	}
	var rec models.RateLimitRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt record is treated as absent and overwritten.
		return nil, nil
	}
	return &rec, nil
}

func (b *KVBackend) save(ctx context.Context, key string, rec *models.RateLimitRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := b.kv.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("save rate limit record: %w", err)
	}
	return nil
}
