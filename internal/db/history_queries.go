package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/globaltime"
)

// HistoryStore is the append-only execution ledger. One row per run,
// written exactly once during finalization, never updated.
type HistoryStore struct {
	pool   *Pool
	logger zerolog.Logger
}

func NewHistoryStore(pool *Pool, logger zerolog.Logger) *HistoryStore {
	return &HistoryStore{pool: pool, logger: logger}
}

// SaveExecution appends one run record and returns its id.
func (s *HistoryStore) SaveExecution(ctx context.Context, record ExecutionRecord) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("history store is not initialized")
	}

	const q = `
INSERT INTO execution_records (started_at, finished_at, posts_seen, posts_scored, posts_emitted, deadline_forced, errors, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING execution_record_id
`
	errorsJSON := "[]"
	if len(record.Errors) > 0 {
		errorsJSON = string(record.Errors)
	}

	var id int64
	err := s.pool.QueryRow(
		ctx,
		q,
		record.StartedAt,
		record.FinishedAt,
		record.PostsSeen,
		record.PostsScored,
		record.PostsEmitted,
		record.DeadlineForced,
		errorsJSON,
		globaltime.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert execution record: %w", err)
	}

	s.logger.Info().
		Int64("execution_record_id", id).
		Int("posts_emitted", record.PostsEmitted).
		Bool("deadline_forced", record.DeadlineForced).
		Msg("execution record written")
	return id, nil
}

// ListExecutions returns the most recent run records, newest first.
func (s *HistoryStore) ListExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("history store is not initialized")
	}
	if limit <= 0 {
		limit = 25
	}

	const q = `
SELECT execution_record_id, started_at, finished_at, posts_seen, posts_scored, posts_emitted, deadline_forced, errors, created_at
FROM execution_records
ORDER BY started_at DESC, execution_record_id DESC
LIMIT ?
`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution records: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		var errorsJSON string
		if err := rows.Scan(
			&record.ExecutionRecordID,
			&record.StartedAt,
			&record.FinishedAt,
			&record.PostsSeen,
			&record.PostsScored,
			&record.PostsEmitted,
			&record.DeadlineForced,
			&errorsJSON,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution record row: %w", err)
		}
		record.Errors = []byte(errorsJSON)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution record rows: %w", err)
	}
	return records, nil
}
