package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/globaltime"
	"horse.fit/whittle/internal/keyword"
)

// KeywordStore is the persisted scored-keyword vocabulary.
type KeywordStore struct {
	pool   *Pool
	logger zerolog.Logger
}

func NewKeywordStore(pool *Pool, logger zerolog.Logger) *KeywordStore {
	return &KeywordStore{pool: pool, logger: logger}
}

// Upsert inserts or updates one vocabulary entry.
func (s *KeywordStore) Upsert(ctx context.Context, kw keyword.Keyword) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("keyword store is not initialized")
	}

	const q = `
INSERT INTO keywords (keyword, category, weight, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (keyword) DO UPDATE
SET
	category = excluded.category,
	weight = excluded.weight,
	updated_at = excluded.updated_at
`
	now := globaltime.UTC()
	if _, err := s.pool.Exec(ctx, q, kw.Keyword, kw.Category, kw.Weight, now, now); err != nil {
		return fmt.Errorf("upsert keyword %q: %w", kw.Keyword, err)
	}

	s.logger.Info().Str("keyword", kw.Keyword).Str("category", kw.Category).Int("weight", kw.Weight).Msg("keyword stored")
	return nil
}

// Remove deletes a keyword and reports whether it existed.
func (s *KeywordStore) Remove(ctx context.Context, raw string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("keyword store is not initialized")
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM keywords WHERE keyword = ?`, keyword.Normalize(raw))
	if err != nil {
		return false, fmt.Errorf("delete keyword %q: %w", raw, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the full vocabulary in stable order.
func (s *KeywordStore) List(ctx context.Context) ([]keyword.Keyword, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("keyword store is not initialized")
	}

	const q = `
SELECT keyword, category, weight
FROM keywords
ORDER BY category, weight DESC, keyword
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []keyword.Keyword
	for rows.Next() {
		var kw keyword.Keyword
		if err := rows.Scan(&kw.Keyword, &kw.Category, &kw.Weight); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword rows: %w", err)
	}
	return keywords, nil
}

// Count reports the vocabulary size.
func (s *KeywordStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("keyword store is not initialized")
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM keywords`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	return count, nil
}

// Import upserts a batch in one transaction and returns how many
// entries were written.
func (s *KeywordStore) Import(ctx context.Context, keywords []keyword.Keyword) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("keyword store is not initialized")
	}
	if len(keywords) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
INSERT INTO keywords (keyword, category, weight, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (keyword) DO UPDATE
SET
	category = excluded.category,
	weight = excluded.weight,
	updated_at = excluded.updated_at
`
	now := globaltime.UTC()
	for _, kw := range keywords {
		if _, err := tx.Exec(ctx, q, kw.Keyword, kw.Category, kw.Weight, now, now); err != nil {
			return 0, fmt.Errorf("import keyword %q: %w", kw.Keyword, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().Int("count", len(keywords)).Msg("keyword import completed")
	return len(keywords), nil
}
