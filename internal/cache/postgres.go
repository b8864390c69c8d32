package cache

import (
	"context"
	"errors"
	"time"

	"github.com/HanTheDev/phish-guard/internal/db"
	"github.com/HanTheDev/phish-guard/internal/models"
)

type PostgresBackend struct {
	db *db.DB
}

func NewPostgresBackend(database *db.DB) *PostgresBackend {
	return &PostgresBackend{db: database}
}

func (b *PostgresBackend) Get(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error) {
	entry, err := b.db.GetURLCache(ctx, fingerprint, now)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrMiss
	}
	return entry, err
}

func (b *PostgresBackend) Put(ctx context.Context, entry *models.CacheEntry) error {
	return b.db.UpsertURLCache(ctx, entry)
}

func (b *PostgresBackend) IncrementHits(ctx context.Context, fingerprint string) error {
	return b.db.IncrementURLCacheHits(ctx, fingerprint)
}

func (b *PostgresBackend) Top(ctx context.Context, now time.Time, limit int) ([]models.CacheStat, error) {
	return b.db.TopURLCache(ctx, now, limit)
}
