package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/whittle/internal/dedup"
	"horse.fit/whittle/internal/globaltime"
	"horse.fit/whittle/internal/pipeline"
	"horse.fit/whittle/internal/post"
	"horse.fit/whittle/internal/scoring"
)

// ErrRunInProgress is returned when Execute is called while another
// run holds the controller. The persisted stores are not safe for
// concurrent runs.
var ErrRunInProgress = errors.New("a run is already in progress")

const defaultCollectConcurrency = 4

// Options bound a single execution.
type Options struct {
	Budget             time.Duration
	MarginPct          int
	CollectTimeout     time.Duration
	PostsPerSource     int
	CollectConcurrency int
	Retention          time.Duration
}

// Controller orchestrates one execution: collect, dedup, score,
// filter, emit, finalize. The wall-clock budget is checked
// cooperatively at stage boundaries; stages themselves run to
// completion.
type Controller struct {
	mu         sync.Mutex
	collectors []Collector
	dedup      *dedup.Deduplicator
	engine     *scoring.Engine
	filter     *pipeline.Service
	registry   Registry
	history    HistorySink
	opts       Options
	logger     zerolog.Logger
}

func NewController(
	collectors []Collector,
	deduplicator *dedup.Deduplicator,
	engine *scoring.Engine,
	filter *pipeline.Service,
	registry Registry,
	history HistorySink,
	opts Options,
	logger zerolog.Logger,
) *Controller {
	if opts.CollectConcurrency <= 0 {
		opts.CollectConcurrency = defaultCollectConcurrency
	}
	return &Controller{
		collectors: collectors,
		dedup:      deduplicator,
		engine:     engine,
		filter:     filter,
		registry:   registry,
		history:    history,
		opts:       opts,
		logger:     logger,
	}
}

// execution tracks the mutable state of one run.
type execution struct {
	deadline time.Time
	margin   time.Duration
	record   Record
	stage    Stage
}

// Execute performs one run. It never returns an error for input or
// source defects; those are recorded in the run record. The returned
// error covers only failures to start (another run in flight) or to
// finalize (history sink unavailable).
func (c *Controller) Execute(ctx context.Context) (Result, error) {
	if c == nil {
		return Result{}, fmt.Errorf("controller is not initialized")
	}
	if !c.mu.TryLock() {
		return Result{}, ErrRunInProgress
	}
	defer c.mu.Unlock()

	start := globaltime.UTC()
	exec := &execution{
		deadline: start.Add(c.opts.Budget),
		margin:   c.opts.Budget * time.Duration(c.opts.MarginPct) / 100,
		record:   Record{StartedAt: start},
		stage:    StageIdle,
	}

	emitted := c.execute(ctx, exec)

	exec.record.FinishedAt = globaltime.UTC()
	exec.record.PostsEmitted = len(emitted)

	// Finalizing always writes exactly one record, whatever happened.
	if err := c.history.SaveExecution(ctx, exec.record); err != nil {
		return Result{Emitted: emitted, Record: exec.record}, fmt.Errorf("write execution record: %w", err)
	}

	c.logger.Info().
		Int("seen", exec.record.PostsSeen).
		Int("scored", exec.record.PostsScored).
		Int("emitted", exec.record.PostsEmitted).
		Bool("deadline_forced", exec.record.DeadlineForced).
		Int("errors", len(exec.record.Errors)).
		Msg("run finalized")

	return Result{Emitted: emitted, Record: exec.record}, nil
}

// execute walks the stages and returns the emitted posts. Fatal
// resource errors and deadline pressure both route here to an early
// return; the caller owns Finalizing.
func (c *Controller) execute(ctx context.Context, exec *execution) []post.Scored {
	c.enter(exec, StageCollecting)
	collected := c.collect(ctx, exec)
	exec.record.PostsSeen = len(collected)
	if c.shortCircuit(ctx, exec) {
		return nil
	}

	c.enter(exec, StageScoring)
	batch, err := c.dedup.Dedup(ctx, collected)
	if err != nil {
		// Registry unavailable is fatal for the run: drop everything,
		// record, and let the next scheduled run retry cleanly.
		exec.record.Errors = append(exec.record.Errors, fmt.Sprintf("dedup: %v", err))
		return nil
	}
	scored := c.engine.ScoreAll(batch, globaltime.UTC())
	exec.record.PostsScored = len(scored)
	if c.shortCircuit(ctx, exec) {
		return nil
	}

	c.enter(exec, StageFiltering)
	ranked := c.filter.Apply(scored, globaltime.UTC())
	if c.shortCircuit(ctx, exec) {
		return nil
	}

	c.enter(exec, StageEmitting)
	if err := c.registry.MarkEmitted(ctx, ranked, globaltime.UTC()); err != nil {
		exec.record.Errors = append(exec.record.Errors, fmt.Sprintf("register emissions: %v", err))
		return nil
	}

	c.enter(exec, StageFinalizing)
	c.cleanup(ctx, exec)
	return ranked
}

// collect fans out across sources with a per-source timeout. A source
// failure empties that source's contribution for the run and is
// recorded; it never aborts collection.
func (c *Controller) collect(ctx context.Context, exec *execution) []post.Normalized {
	var (
		mu        sync.Mutex
		collected []post.Normalized
		failures  []string
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.CollectConcurrency)

	for _, collector := range c.collectors {
		collector := collector
		g.Go(func() error {
			collectCtx, cancel := context.WithTimeout(groupCtx, c.opts.CollectTimeout)
			defer cancel()

			posts, err := collector.Collect(collectCtx, c.opts.PostsPerSource)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("collect %s: %v", collector.Name(), err))
				return nil
			}
			collected = append(collected, posts...)
			return nil
		})
	}
	_ = g.Wait()

	// Goroutine completion order must not leak into the output.
	sort.Strings(failures)
	exec.record.Errors = append(exec.record.Errors, failures...)
	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].Source != collected[j].Source {
			return collected[i].Source < collected[j].Source
		}
		return collected[i].NativeID < collected[j].NativeID
	})

	c.logger.Info().Int("posts", len(collected)).Int("failed_sources", len(failures)).Msg("collection completed")
	return collected
}

// shortCircuit is the cooperative deadline check made before leaving
// each stage. Once the remaining margin drops below the safety
// threshold the run jumps straight to Finalizing with whatever has
// been processed, and the record is marked deadline-forced. External
// cancellation is treated the same way.
func (c *Controller) shortCircuit(ctx context.Context, exec *execution) bool {
	if err := ctx.Err(); err != nil {
		exec.record.Errors = append(exec.record.Errors, fmt.Sprintf("run canceled: %v", err))
		c.enter(exec, StageFinalizing)
		return true
	}

	remaining := exec.deadline.Sub(globaltime.UTC())
	if remaining >= exec.margin {
		return false
	}

	exec.record.DeadlineForced = true
	c.enter(exec, StageDeadlineExceeded)
	c.logger.Warn().Dur("remaining", remaining).Dur("margin", exec.margin).Msg("execution budget nearly exhausted, finalizing early")
	c.enter(exec, StageFinalizing)
	return true
}

func (c *Controller) cleanup(ctx context.Context, exec *execution) {
	if c.opts.Retention <= 0 {
		return
	}
	cutoff := globaltime.UTC().Add(-c.opts.Retention)
	removed, err := c.registry.CleanupBefore(ctx, cutoff)
	if err != nil {
		exec.record.Errors = append(exec.record.Errors, fmt.Sprintf("retention cleanup: %v", err))
		return
	}
	if removed > 0 {
		c.logger.Info().Int64("removed", removed).Msg("retention cleanup removed old rows")
	}
}

func (c *Controller) enter(exec *execution, stage Stage) {
	exec.stage = stage
	c.logger.Debug().Str("stage", string(stage)).Msg("stage transition")
}
