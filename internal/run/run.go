package run

import (
	"context"
	"time"

	"horse.fit/whittle/internal/post"
)

// Stage names the controller's position in a run. DeadlineExceeded is
// reachable from any non-terminal stage and always leads to
// Finalizing.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageCollecting       Stage = "collecting"
	StageScoring          Stage = "scoring"
	StageFiltering        Stage = "filtering"
	StageEmitting         Stage = "emitting"
	StageFinalizing       Stage = "finalizing"
	StageDeadlineExceeded Stage = "deadline_exceeded"
)

// Record is the append-only summary of one run. Exactly one is written
// per execution, however the run ended.
type Record struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	PostsSeen      int
	PostsScored    int
	PostsEmitted   int
	DeadlineForced bool
	Errors         []string
}

// Result carries the ranked emissions plus the run record for digest
// rendering and downstream consumers.
type Result struct {
	Emitted []post.Scored
	Record  Record
}

// Collector is one external source adapter. Implementations must honor
// the context deadline so a slow source cannot stall the run.
type Collector interface {
	Name() string
	Collect(ctx context.Context, limit int) ([]post.Normalized, error)
}

// Registry is the controller's view of the seen store: batch
// registration on emission and retention cleanup. Registration must be
// atomic as a batch or individually idempotent.
type Registry interface {
	MarkEmitted(ctx context.Context, emitted []post.Scored, processedAt time.Time) error
	CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistorySink persists run records.
type HistorySink interface {
	SaveExecution(ctx context.Context, record Record) error
}
