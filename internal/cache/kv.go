package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/store"
)

// KVBackend keeps JSON entries in a store.KV with the entry's expiry as TTL.
// Hit counting is a read-modify-write and may lose increments under
// concurrent hits.
type KVBackend struct {
	kv  store.KV
	now func() time.Time
}

func NewKVBackend(kv store.KV) *KVBackend {
	return &KVBackend{kv: kv, now: time.Now}
}

func (b *KVBackend) WithClock(now func() time.Time) *KVBackend {
	b.now = now
	return b
}

func key(fingerprint string) string {
	return "urlcache:" + fingerprint
}

func (b *KVBackend) Get(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error) {
	raw, err := b.kv.Get(ctx, key(fingerprint))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	if entry.Expired(now) {
		return nil, ErrMiss
	}
	return &entry, nil
}

func (b *KVBackend) Put(ctx context.Context, entry *models.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(entry.CreatedAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, key(entry.Fingerprint), raw, ttl)
}

func (b *KVBackend) IncrementHits(ctx context.Context, fingerprint string) error {
	now := b.now()
	entry, err := b.Get(ctx, fingerprint, now)
	if err != nil {
		return err
	}
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	entry.HitCount++
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, key(fingerprint), raw, ttl)
}

func (b *KVBackend) Top(context.Context, time.Time, int) ([]models.CacheStat, error) {
	return nil, ErrStatsUnsupported
}
