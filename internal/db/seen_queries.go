package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/post"
)

// SeenStore is the persisted registry of emitted posts. Insertion
// happens only on emission; a post that merely scored too low stays
// eligible for later runs.
type SeenStore struct {
	pool   *Pool
	logger zerolog.Logger
}

func NewSeenStore(pool *Pool, logger zerolog.Logger) *SeenStore {
	return &SeenStore{pool: pool, logger: logger}
}

// FilterSeen reports which of the given keys already have a registry
// row, in one round trip.
func (s *SeenStore) FilterSeen(ctx context.Context, keys []post.Key) (map[post.Key]bool, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("seen store is not initialized")
	}
	if len(keys) == 0 {
		return map[post.Key]bool{}, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT source, native_id FROM seen_posts WHERE (source, native_id) IN (`)
	args := make([]any, 0, len(keys)*2)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?)")
		args = append(args, key.Source, key.NativeID)
	}
	sb.WriteString(")")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query seen posts: %w", err)
	}
	defer rows.Close()

	seen := make(map[post.Key]bool, len(keys))
	for rows.Next() {
		var key post.Key
		if err := rows.Scan(&key.Source, &key.NativeID); err != nil {
			return nil, fmt.Errorf("scan seen post row: %w", err)
		}
		seen[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen post rows: %w", err)
	}
	return seen, nil
}

// MarkEmitted records a run's emissions atomically: registry rows plus
// their score breakdowns commit together or not at all. Re-inserting
// an existing key is a no-op, so retries after a failed run are safe.
func (s *SeenStore) MarkEmitted(ctx context.Context, emitted []post.Scored, processedAt time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("seen store is not initialized")
	}
	if len(emitted) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertSeen = `
INSERT INTO seen_posts (source, native_id, title, author, url, score, post_created_at, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, native_id) DO NOTHING
RETURNING seen_post_id
`
	const insertBreakdown = `
INSERT INTO score_breakdowns (seen_post_id, matched_keywords, base_score, recency_bonus, link_penalty, final_score, scored_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

	for _, sp := range emitted {
		var seenPostID int64
		err := tx.QueryRow(
			ctx,
			insertSeen,
			sp.Post.Source,
			sp.Post.NativeID,
			sp.Post.Title,
			sp.Post.Author,
			sp.Post.URL,
			sp.FinalScore,
			sp.Post.CreatedAt,
			processedAt,
		).Scan(&seenPostID)
		if err != nil {
			if IsNoRows(err) {
				// Already registered by an earlier run; idempotent skip.
				continue
			}
			return fmt.Errorf("insert seen post %s: %w", sp.Post.Key(), err)
		}

		matched, err := json.Marshal(sp.MatchedKeywords())
		if err != nil {
			return fmt.Errorf("marshal matched keywords for %s: %w", sp.Post.Key(), err)
		}
		if _, err := tx.Exec(
			ctx,
			insertBreakdown,
			seenPostID,
			string(matched),
			sp.BaseScore,
			sp.RecencyBonus,
			sp.LinkPenalty,
			sp.FinalScore,
			processedAt,
		); err != nil {
			return fmt.Errorf("insert score breakdown for %s: %w", sp.Post.Key(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().Int("count", len(emitted)).Msg("emitted posts registered")
	return nil
}

// CleanupBefore removes registry rows, breakdowns, and execution
// records older than the cutoff. Purely a storage bound; dedup only
// needs the retention window intact.
func (s *SeenStore) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("seen store is not initialized")
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var removed int64

	tag, err := tx.Exec(ctx, `
DELETE FROM score_breakdowns
WHERE seen_post_id IN (SELECT seen_post_id FROM seen_posts WHERE processed_at < ?)
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old score breakdowns: %w", err)
	}
	removed += tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM seen_posts WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old seen posts: %w", err)
	}
	removed += tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM execution_records WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old execution records: %w", err)
	}
	removed += tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("retention cleanup completed")
	return removed, nil
}

// RecentEmitted lists registry rows processed since the given time
// with at least the given score, best first.
func (s *SeenStore) RecentEmitted(ctx context.Context, since time.Time, minScore, limit int) ([]SeenPost, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("seen store is not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	const q = `
SELECT seen_post_id, source, native_id, title, author, url, score, post_created_at, processed_at
FROM seen_posts
WHERE processed_at >= ? AND score >= ?
ORDER BY score DESC, post_created_at DESC, source, native_id
LIMIT ?
`
	rows, err := s.pool.Query(ctx, q, since, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent emitted posts: %w", err)
	}
	defer rows.Close()

	var posts []SeenPost
	for rows.Next() {
		var row SeenPost
		if err := rows.Scan(
			&row.SeenPostID,
			&row.Source,
			&row.NativeID,
			&row.Title,
			&row.Author,
			&row.URL,
			&row.Score,
			&row.PostCreatedAt,
			&row.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan seen post row: %w", err)
		}
		posts = append(posts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen post rows: %w", err)
	}
	return posts, nil
}
