package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HanTheDev/phish-guard/internal/models"
)

var ErrNotFound = errors.New("db: not found")

// GetURLCache returns the live entry for fingerprint. Expired rows are
// reported as ErrNotFound.
func (db *DB) GetURLCache(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error) {
	query := `
        SELECT fingerprint, domain, score, highlights, summary, created_at, expires_at, hit_count
        FROM url_cache
        WHERE fingerprint = $1 AND expires_at > $2
    `

	var (
		entry      models.CacheEntry
		score      string
		highlights []byte
	)
	err := db.Pool.QueryRow(ctx, query, fingerprint, now).Scan(
		&entry.Fingerprint,
		&entry.Domain,
		&score,
		&highlights,
		&entry.Result.Summary,
		&entry.CreatedAt,
		&entry.ExpiresAt,
		&entry.HitCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.Result.Score, err = models.ParseRiskLevel(score)
	if err != nil {
		return nil, fmt.Errorf("url_cache row %s: %w", fingerprint, err)
	}
	if err := json.Unmarshal(highlights, &entry.Result.Highlights); err != nil {
		return nil, fmt.Errorf("url_cache row %s highlights: %w", fingerprint, err)
	}
	if entry.Result.Highlights == nil {
		entry.Result.Highlights = []models.Highlight{}
	}

	return &entry, nil
}

func (db *DB) IncrementURLCacheHits(ctx context.Context, fingerprint string) error {
	query := `
        UPDATE url_cache
        SET hit_count = hit_count + 1
        WHERE fingerprint = $1
    `

	_, err := db.Pool.Exec(ctx, query, fingerprint)
	return err
}

func (db *DB) UpsertURLCache(ctx context.Context, entry *models.CacheEntry) error {
	highlights, err := json.Marshal(entry.Result.Highlights)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO url_cache (fingerprint, domain, score, highlights, summary, created_at, expires_at, hit_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
        ON CONFLICT (fingerprint) DO UPDATE
        SET domain = EXCLUDED.domain,
            score = EXCLUDED.score,
            highlights = EXCLUDED.highlights,
            summary = EXCLUDED.summary,
            created_at = EXCLUDED.created_at,
            expires_at = EXCLUDED.expires_at
    `

	_, err = db.Pool.Exec(ctx, query,
		entry.Fingerprint,
		entry.Domain,
		entry.Result.Score.String(),
		string(highlights),
		entry.Result.Summary,
		entry.CreatedAt,
		entry.ExpiresAt,
	)

	return err
}

func (db *DB) TopURLCache(ctx context.Context, now time.Time, limit int) ([]models.CacheStat, error) {
	query := `
        SELECT domain, score, hit_count, created_at
        FROM url_cache
        WHERE expires_at > $1
        ORDER BY hit_count DESC
        LIMIT $2
    `

	rows, err := db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.CacheStat{}
	for rows.Next() {
		var (
			stat  models.CacheStat
			score string
		)
		if err := rows.Scan(&stat.Domain, &score, &stat.HitCount, &stat.CreatedAt); err != nil {
			return nil, err
		}
		if stat.Score, err = models.ParseRiskLevel(score); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// DeleteExpiredURLCache removes rows that expired before now.
func (db *DB) DeleteExpiredURLCache(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM url_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
